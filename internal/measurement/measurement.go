// Package measurement defines the cell-tower observations recorded on a
// device and the aggregates computed over a backlog of them.
package measurement

import (
	"fmt"
	"strings"
	"time"
)

// NetworkType is the radio access technology of an observed cell.
type NetworkType int

// Known network types. The numeric values are persisted; do not reorder.
const (
	NetworkUnknown NetworkType = iota
	NetworkGSM
	NetworkUMTS
	NetworkLTE
	NetworkCDMA
	NetworkNR
)

//nolint:gochecknoglobals // Lookup table.
var networkNames = [...]string{
	NetworkUnknown: "UNKNOWN",
	NetworkGSM:     "GSM",
	NetworkUMTS:    "UMTS",
	NetworkLTE:     "LTE",
	NetworkCDMA:    "CDMA",
	NetworkNR:      "NR",
}

// String returns the OpenCellID radio name ("GSM", "LTE", ...).
func (n NetworkType) String() string {
	if n < 0 || int(n) >= len(networkNames) {
		return networkNames[NetworkUnknown]
	}
	return networkNames[n]
}

// ParseNetworkType parses a radio name, case-insensitively.
func ParseNetworkType(s string) (NetworkType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range networkNames {
		if name == s {
			return NetworkType(i), nil
		}
	}
	return NetworkUnknown, fmt.Errorf("unknown network type %q", s)
}

// Location is the GPS fix attached to a measurement.
type Location struct {
	Latitude  float64
	Longitude float64
	// Accuracy in meters.
	Accuracy float64
	// Altitude in meters above the WGS84 ellipsoid.
	Altitude float64
	// Speed in m/s.
	Speed float64
	// Bearing in degrees.
	Bearing float64
}

// Cell identifies an observed cell.
type Cell struct {
	MCC int
	MNC int
	// LAC holds the LAC for GSM/UMTS and the TAC for LTE/NR.
	LAC int64
	CID int64
	// PSC holds the PSC for UMTS and the PCI for LTE/NR, -1 when unknown.
	PSC         int
	NetworkType NetworkType
	Neighboring bool
}

// Signal is the radio measurement for the cell.
type Signal struct {
	ASU int
	DBM int
	// TA is the timing advance, -1 when unknown.
	TA int
}

// Measurement is one recorded observation. RowID is assigned by the store
// and is the deletion key; it is zero for measurements not yet persisted.
type Measurement struct {
	RowID      int64
	MeasuredAt time.Time
	Location   Location
	Cell       Cell
	Signal     Signal
}

// IDs returns the row ids of ms in order.
func IDs(ms []Measurement) []int64 {
	ids := make([]int64, len(ms))
	for i, m := range ms {
		ids[i] = m.RowID
	}
	return ids
}
