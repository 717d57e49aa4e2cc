// Package version exposes the build version of towercollector.
package version

// version is overridden at build time with
// -ldflags "-X github.com/rshade/towercollector/pkg/version.version=1.2.3".
//
//nolint:gochecknoglobals // Set via ldflags.
var version = "0.1.0-dev"

// GetVersion returns the build version string.
func GetVersion() string {
	return version
}
