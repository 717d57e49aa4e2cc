package format

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/rshade/towercollector/internal/measurement"
)

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	gpxSchema    = "http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd"
	gpxTrackName = "TowerCollector track"
)

// GPXHeader is the document metadata written before the first point.
type GPXHeader struct {
	// Creator is the application name and version, e.g. "towercollector 1.2.0".
	Creator string
	First   time.Time
	Last    time.Time
	Bounds  measurement.Boundaries
}

type gpxBounds struct {
	MinLat float64 `xml:"minlat,attr"`
	MinLon float64 `xml:"minlon,attr"`
	MaxLat float64 `xml:"maxlat,attr"`
	MaxLon float64 `xml:"maxlon,attr"`
}

type gpxMetadata struct {
	XMLName xml.Name   `xml:"metadata"`
	Name    string     `xml:"name"`
	Desc    string     `xml:"desc,omitempty"`
	Time    string     `xml:"time"`
	Bounds  *gpxBounds `xml:"bounds,omitempty"`
}

type gpxPoint struct {
	XMLName xml.Name `xml:"trkpt"`
	Lat     float64  `xml:"lat,attr"`
	Lon     float64  `xml:"lon,attr"`
	Ele     float64  `xml:"ele"`
	Time    string   `xml:"time"`
	Name    string   `xml:"name"`
	Desc    string   `xml:"desc"`
}

// GPXWriter streams a single-track GPX 1.1 document. A track segment is
// open between WriteHeader and WriteFooter; NewSegment closes it and starts
// another.
type GPXWriter struct {
	w   io.Writer
	enc *xml.Encoder
}

// NewGPXWriter wraps w.
func NewGPXWriter(w io.Writer) *GPXWriter {
	enc := xml.NewEncoder(w)
	enc.Indent("  ", "  ")
	return &GPXWriter{w: w, enc: enc}
}

// WriteHeader writes the XML prolog, metadata and opens the first segment.
func (g *GPXWriter) WriteHeader(h GPXHeader) error {
	if _, err := fmt.Fprintf(g.w,
		"%s<gpx version=\"1.1\" creator=%q xmlns=%q xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\" xsi:schemaLocation=%q>\n",
		xml.Header, h.Creator, gpxNamespace, gpxSchema); err != nil {
		return err
	}

	meta := gpxMetadata{
		Name: gpxTrackName,
		Time: formatGPXTime(h.Last),
	}
	if !h.First.IsZero() {
		meta.Desc = fmt.Sprintf("Measurements from %s to %s", formatGPXTime(h.First), formatGPXTime(h.Last))
	}
	if h.Bounds.Valid() {
		meta.Bounds = &gpxBounds{
			MinLat: h.Bounds.MinLatitude,
			MinLon: h.Bounds.MinLongitude,
			MaxLat: h.Bounds.MaxLatitude,
			MaxLon: h.Bounds.MaxLongitude,
		}
	}
	if err := g.enc.Encode(meta); err != nil {
		return fmt.Errorf("writing gpx metadata: %w", err)
	}
	if err := g.enc.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(g.w, "\n  <trk>\n    <name>%s</name>\n    <trkseg>", gpxTrackName)
	return err
}

// NewSegment closes the current track segment and opens a new one.
func (g *GPXWriter) NewSegment() error {
	if err := g.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(g.w, "\n    </trkseg>\n    <trkseg>")
	return err
}

// Write writes one track point.
func (g *GPXWriter) Write(m measurement.Measurement) error {
	pt := gpxPoint{
		Lat:  m.Location.Latitude,
		Lon:  m.Location.Longitude,
		Ele:  m.Location.Altitude,
		Time: formatGPXTime(m.MeasuredAt),
		Name: cellName(m.Cell),
		Desc: signalDesc(m.Signal),
	}
	if err := g.enc.Encode(pt); err != nil {
		return fmt.Errorf("writing gpx point: %w", err)
	}
	return nil
}

// WriteFooter closes the segment, the track and the document.
func (g *GPXWriter) WriteFooter() error {
	if err := g.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(g.w, "\n    </trkseg>\n  </trk>\n</gpx>\n")
	return err
}

func formatGPXTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func cellName(c measurement.Cell) string {
	return fmt.Sprintf("%s %d-%d %d %d", c.NetworkType, c.MCC, c.MNC, c.LAC, c.CID)
}

func signalDesc(s measurement.Signal) string {
	if s.TA >= 0 {
		return fmt.Sprintf("%d dBm, %d asu, ta %d", s.DBM, s.ASU, s.TA)
	}
	return fmt.Sprintf("%d dBm, %d asu", s.DBM, s.ASU)
}
