package measurement

import "math"

// Statistics summarizes a backlog of pending measurements.
type Statistics struct {
	// Locations is the number of distinct location fixes.
	Locations int
	// Cells is the number of distinct cells.
	Cells int
	// Days is the number of distinct UTC days with measurements.
	Days int
}

// Sub returns s minus other, field by field. Used to compute what a run
// removed from the backlog.
func (s Statistics) Sub(other Statistics) Statistics {
	return Statistics{
		Locations: s.Locations - other.Locations,
		Cells:     s.Cells - other.Cells,
		Days:      s.Days - other.Days,
	}
}

// IsZero reports whether all counters are zero.
func (s Statistics) IsZero() bool {
	return s == Statistics{}
}

// Boundaries is the bounding box of a set of locations.
type Boundaries struct {
	MinLatitude  float64
	MinLongitude float64
	MaxLatitude  float64
	MaxLongitude float64
}

// EmptyBoundaries returns boundaries that any location extends.
func EmptyBoundaries() Boundaries {
	return Boundaries{
		MinLatitude:  math.Inf(1),
		MinLongitude: math.Inf(1),
		MaxLatitude:  math.Inf(-1),
		MaxLongitude: math.Inf(-1),
	}
}

// Extend grows b to include loc.
func (b Boundaries) Extend(loc Location) Boundaries {
	b.MinLatitude = math.Min(b.MinLatitude, loc.Latitude)
	b.MinLongitude = math.Min(b.MinLongitude, loc.Longitude)
	b.MaxLatitude = math.Max(b.MaxLatitude, loc.Latitude)
	b.MaxLongitude = math.Max(b.MaxLongitude, loc.Longitude)
	return b
}

// Valid reports whether b encloses at least one location.
func (b Boundaries) Valid() bool {
	return b.MinLatitude <= b.MaxLatitude && b.MinLongitude <= b.MaxLongitude
}
