// Package format serializes measurements to the OpenCellID CSV upload format
// and to GPX tracks.
package format
