package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/rshade/towercollector/internal/format"
	"github.com/rshade/towercollector/internal/measurement"
)

// Supported export formats.
const (
	FormatGPX  = "gpx"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ErrUnsupportedFormat is returned by NewWriter for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Formats lists the supported formats.
func Formats() []string {
	return []string{FormatGPX, FormatCSV, FormatXLSX, FormatPDF}
}

// Header is the document-level information written before any entry.
type Header struct {
	Creator string
	First   time.Time
	Last    time.Time
	Count   int
	Bounds  measurement.Boundaries
}

// Writer receives the exported document in order: header, entries with
// optional segment breaks, footer.
type Writer interface {
	WriteHeader(h Header) error
	NewSegment() error
	Write(m measurement.Measurement) error
	WriteFooter() error
}

// ValidateFormat reports whether name is a supported format.
func ValidateFormat(name string) error {
	for _, f := range Formats() {
		if f == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// NewWriter returns a writer for the named format that writes to w.
func NewWriter(name string, w io.Writer) (Writer, error) {
	switch name {
	case FormatGPX:
		return &gpxWriter{g: format.NewGPXWriter(w)}, nil
	case FormatCSV:
		return &csvWriter{c: format.NewCSVWriter(w)}, nil
	case FormatXLSX:
		return &xlsxWriter{out: w}, nil
	case FormatPDF:
		return &pdfWriter{out: w}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

type gpxWriter struct {
	g *format.GPXWriter
}

func (w *gpxWriter) WriteHeader(h Header) error {
	return w.g.WriteHeader(format.GPXHeader{Creator: h.Creator, First: h.First, Last: h.Last, Bounds: h.Bounds})
}
func (w *gpxWriter) NewSegment() error { return w.g.NewSegment() }
func (w *gpxWriter) Write(m measurement.Measurement) error { return w.g.Write(m) }
func (w *gpxWriter) WriteFooter() error { return w.g.WriteFooter() }

type csvWriter struct {
	c *format.CSVWriter
}

func (w *csvWriter) WriteHeader(Header) error { return w.c.WriteHeader() }
func (w *csvWriter) NewSegment() error { return nil }
func (w *csvWriter) Write(m measurement.Measurement) error { return w.c.Write(m) }
func (w *csvWriter) WriteFooter() error { return w.c.Flush() }

// tableColumns are shared by the spreadsheet and PDF listings.
//
//nolint:gochecknoglobals // Fixed column layout.
var tableColumns = []string{
	"Measured at", "Latitude", "Longitude", "Accuracy", "Network", "MCC", "MNC", "LAC", "CID", "PSC", "dBm", "ASU", "TA",
}

func tableRow(m measurement.Measurement) []string {
	return []string{
		m.MeasuredAt.UTC().Format(time.RFC3339),
		strconv.FormatFloat(m.Location.Latitude, 'f', 6, 64),
		strconv.FormatFloat(m.Location.Longitude, 'f', 6, 64),
		strconv.FormatFloat(m.Location.Accuracy, 'f', 1, 64),
		m.Cell.NetworkType.String(),
		strconv.Itoa(m.Cell.MCC),
		strconv.Itoa(m.Cell.MNC),
		strconv.FormatInt(m.Cell.LAC, 10),
		strconv.FormatInt(m.Cell.CID, 10),
		optional(m.Cell.PSC),
		strconv.Itoa(m.Signal.DBM),
		strconv.Itoa(m.Signal.ASU),
		optional(m.Signal.TA),
	}
}

func optional(v int) string {
	if v < 0 {
		return ""
	}
	return strconv.Itoa(v)
}

const (
	xlsxDataSheet    = "Measurements"
	xlsxSummarySheet = "Summary"
)

// xlsxWriter streams rows into a workbook and writes it out on WriteFooter.
type xlsxWriter struct {
	out io.Writer
	f   *excelize.File
	sw  *excelize.StreamWriter
	row int
}

func (w *xlsxWriter) WriteHeader(h Header) error {
	w.f = excelize.NewFile()
	if err := w.f.SetSheetName("Sheet1", xlsxDataSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := w.f.NewSheet(xlsxSummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	summary := [][2]any{
		{"Creator", h.Creator},
		{"Measurements", h.Count},
		{"First measurement", h.First.UTC().Format(time.RFC3339)},
		{"Last measurement", h.Last.UTC().Format(time.RFC3339)},
	}
	for i, kv := range summary {
		_ = w.f.SetCellValue(xlsxSummarySheet, "A"+strconv.Itoa(i+1), kv[0])
		_ = w.f.SetCellValue(xlsxSummarySheet, "B"+strconv.Itoa(i+1), kv[1])
	}

	sw, err := w.f.NewStreamWriter(xlsxDataSheet)
	if err != nil {
		return fmt.Errorf("creating stream writer: %w", err)
	}
	w.sw = sw
	return w.writeRow(tableColumns)
}

func (w *xlsxWriter) NewSegment() error { return nil }

func (w *xlsxWriter) Write(m measurement.Measurement) error {
	return w.writeRow(tableRow(m))
}

func (w *xlsxWriter) writeRow(values []string) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return w.sw.SetRow(cell, row)
}

func (w *xlsxWriter) WriteFooter() error {
	defer w.f.Close()
	if err := w.sw.Flush(); err != nil {
		return fmt.Errorf("flushing rows: %w", err)
	}
	if err := w.f.Write(w.out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

//nolint:gochecknoglobals // Column widths in mm, matching tableColumns.
var pdfWidths = []float64{40, 22, 22, 16, 16, 12, 12, 18, 26, 12, 14, 12, 10}

// pdfWriter renders a paginated table and writes the document on WriteFooter.
type pdfWriter struct {
	out io.Writer
	pdf *gofpdf.Fpdf
}

func (w *pdfWriter) WriteHeader(h Header) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("TowerCollector measurements", false)
	pdf.SetCreator(h.Creator, false)
	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 8)
		for i, col := range tableColumns {
			pdf.CellFormat(pdfWidths[i], 6, col, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	})
	pdf.AddPage()
	w.pdf = pdf
	return pdf.Error()
}

func (w *pdfWriter) NewSegment() error { return nil }

func (w *pdfWriter) Write(m measurement.Measurement) error {
	for i, v := range tableRow(m) {
		align := "R"
		if i == 0 || i == 4 {
			align = "L"
		}
		w.pdf.CellFormat(pdfWidths[i], 5, v, "1", 0, align, false, 0, "")
	}
	w.pdf.Ln(-1)
	return w.pdf.Error()
}

func (w *pdfWriter) WriteFooter() error {
	if err := w.pdf.Output(w.out); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
