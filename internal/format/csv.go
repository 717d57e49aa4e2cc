package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rshade/towercollector/internal/measurement"
)

// CSVHeader is the column layout accepted by the OpenCellID upload endpoint.
//
//nolint:gochecknoglobals // Fixed column layout.
var CSVHeader = []string{
	"mcc", "mnc", "lac", "cellid", "lon", "lat", "signal", "measured_at",
	"rating", "speed", "direction", "act", "ta", "psc",
}

// Column indexes into CSVHeader.
const (
	colMCC = iota
	colMNC
	colLAC
	colCID
	colLon
	colLat
	colSignal
	colMeasuredAt
	colRating
	colSpeed
	colDirection
	colAct
	colTA
	colPSC
	colCount
)

// ErrMalformedCSV is returned by DecodeCSV for rows that cannot be parsed.
var ErrMalformedCSV = errors.New("malformed measurements csv")

// CSVWriter streams measurements as OpenCellID CSV rows.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter wraps w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// WriteHeader writes the column header line.
func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(CSVHeader)
}

// Write writes one measurement row.
func (c *CSVWriter) Write(m measurement.Measurement) error {
	return c.w.Write(csvRecord(m))
}

// Flush flushes buffered rows and returns any write error.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// CSVEncoder produces the upload payload for one part.
type CSVEncoder struct{}

// Encode writes the header line followed by one line per measurement.
func (CSVEncoder) Encode(w io.Writer, ms []measurement.Measurement) error {
	cw := NewCSVWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, m := range ms {
		if err := cw.Write(m); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	return cw.Flush()
}

func csvRecord(m measurement.Measurement) []string {
	rec := make([]string, colCount)
	rec[colMCC] = strconv.Itoa(m.Cell.MCC)
	rec[colMNC] = strconv.Itoa(m.Cell.MNC)
	rec[colLAC] = strconv.FormatInt(m.Cell.LAC, 10)
	rec[colCID] = strconv.FormatInt(m.Cell.CID, 10)
	rec[colLon] = formatFloat(m.Location.Longitude)
	rec[colLat] = formatFloat(m.Location.Latitude)
	rec[colSignal] = strconv.Itoa(m.Signal.DBM)
	rec[colMeasuredAt] = strconv.FormatInt(m.MeasuredAt.UnixMilli(), 10)
	rec[colRating] = formatFloat(m.Location.Accuracy)
	rec[colSpeed] = formatFloat(m.Location.Speed)
	rec[colDirection] = formatFloat(m.Location.Bearing)
	rec[colAct] = m.Cell.NetworkType.String()
	rec[colTA] = optionalInt(m.Signal.TA)
	rec[colPSC] = optionalInt(m.Cell.PSC)
	return rec
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// optionalInt renders -1 (unknown) as an empty field.
func optionalInt(v int) string {
	if v < 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// DecodeCSV parses OpenCellID CSV produced by CSVEncoder. The header line is
// required; columns are matched by name so their order may differ.
func DecodeCSV(r io.Reader) ([]measurement.Measurement, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading header: %w", ErrMalformedCSV, err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var out []measurement.Measurement
	for line := 2; ; line++ {
		rec, readErr := cr.Read()
		if errors.Is(readErr, io.EOF) {
			return out, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, readErr)
		}
		fields := make([]string, colCount)
		for col, at := range index {
			if at >= 0 && at < len(rec) {
				fields[col] = strings.TrimSpace(rec[at])
			}
		}
		m, parseErr := parseRecord(fields)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, parseErr)
		}
		out = append(out, m)
	}
}

func headerIndex(header []string) ([]int, error) {
	index := make([]int, colCount)
	for i := range index {
		index[i] = -1
	}
	for at, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for col, want := range CSVHeader {
			if name == want {
				index[col] = at
			}
		}
	}
	for _, required := range []int{colMCC, colMNC, colLAC, colCID, colLon, colLat, colMeasuredAt} {
		if index[required] < 0 {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedCSV, CSVHeader[required])
		}
	}
	return index, nil
}

func parseRecord(f []string) (measurement.Measurement, error) {
	p := fieldParser{fields: f}
	var m measurement.Measurement

	m.Cell.MCC = p.int(colMCC, 0)
	m.Cell.MNC = p.int(colMNC, 0)
	m.Cell.LAC = p.int64(colLAC)
	m.Cell.CID = p.int64(colCID)
	m.Cell.PSC = p.int(colPSC, -1)
	m.Location.Longitude = p.float(colLon)
	m.Location.Latitude = p.float(colLat)
	m.Location.Accuracy = p.float(colRating)
	m.Location.Speed = p.float(colSpeed)
	m.Location.Bearing = p.float(colDirection)
	m.Signal.DBM = p.int(colSignal, 0)
	m.Signal.TA = p.int(colTA, -1)
	m.MeasuredAt = time.UnixMilli(p.int64(colMeasuredAt)).UTC()

	if f[colAct] != "" {
		nt, err := measurement.ParseNetworkType(f[colAct])
		if err != nil {
			return m, err
		}
		m.Cell.NetworkType = nt
	}
	return m, p.err
}

// fieldParser records the first conversion error and keeps going so callers
// can check once.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) fail(col int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", CSVHeader[col], err)
	}
}

func (p *fieldParser) int(col, empty int) int {
	if p.fields[col] == "" {
		return empty
	}
	v, err := strconv.Atoi(p.fields[col])
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *fieldParser) int64(col int) int64 {
	if p.fields[col] == "" {
		return 0
	}
	v, err := strconv.ParseInt(p.fields[col], 10, 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *fieldParser) float(col int) float64 {
	if p.fields[col] == "" {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[col], 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}
