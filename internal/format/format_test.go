package format

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/towercollector/internal/measurement"
)

func sample(ts time.Time) measurement.Measurement {
	return measurement.Measurement{
		RowID:      1,
		MeasuredAt: ts,
		Location: measurement.Location{
			Latitude: 52.2297, Longitude: 21.0122, Accuracy: 12.5,
			Altitude: 110, Speed: 3.25, Bearing: 90,
		},
		Cell: measurement.Cell{
			MCC: 260, MNC: 2, LAC: 58140, CID: 21570083, PSC: 301,
			NetworkType: measurement.NetworkLTE,
		},
		Signal: measurement.Signal{ASU: 40, DBM: -100, TA: 3},
	}
}

func TestCSVEncoderEncode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := sample(ts)
	unknown := sample(ts)
	unknown.Signal.TA = -1
	unknown.Cell.PSC = -1

	var buf bytes.Buffer
	require.NoError(t, CSVEncoder{}.Encode(&buf, []measurement.Measurement{m, unknown}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mcc,mnc,lac,cellid,lon,lat,signal,measured_at,rating,speed,direction,act,ta,psc", lines[0])
	assert.Equal(t, "260,2,58140,21570083,21.0122,52.2297,-100,1714564800000,12.5,3.25,90,LTE,3,301", lines[1])
	assert.Equal(t, "260,2,58140,21570083,21.0122,52.2297,-100,1714564800000,12.5,3.25,90,LTE,,", lines[2])
}

func TestCSVEncoderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVEncoder{}.Encode(&buf, nil))
	assert.Equal(t, strings.Join(CSVHeader, ",")+"\n", buf.String())
}

func TestDecodeCSVRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := sample(ts)
	var buf bytes.Buffer
	require.NoError(t, CSVEncoder{}.Encode(&buf, []measurement.Measurement{in}))

	out, err := DecodeCSV(&buf)
	require.NoError(t, err)
	require.Len(t, out, 1)

	want := in
	want.RowID = 0
	want.Location.Altitude = 0
	want.Signal.ASU = 0
	assert.Equal(t, want, out[0])
}

func TestDecodeCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{name: "empty input", input: "", wantLen: 0},
		{name: "header only", input: strings.Join(CSVHeader, ",") + "\n", wantLen: 0},
		{
			name:    "reordered minimal columns",
			input:   "lat,lon,mcc,mnc,lac,cellid,measured_at\n52.1,21.0,260,3,100,200,1714564800000\n",
			wantLen: 1,
		},
		{name: "missing required column", input: "mcc,mnc\n260,3\n", wantErr: true},
		{
			name:    "bad number",
			input:   "mcc,mnc,lac,cellid,lon,lat,measured_at\nabc,3,1,2,3,4,5\n",
			wantErr: true,
		},
		{
			name:    "bad network type",
			input:   "mcc,mnc,lac,cellid,lon,lat,measured_at,act\n260,3,1,2,3,4,5,WIMAX\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeCSV(strings.NewReader(tt.input))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedCSV)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out, tt.wantLen)
		})
	}
}

func TestDecodeCSVDefaults(t *testing.T) {
	out, err := DecodeCSV(strings.NewReader("mcc,mnc,lac,cellid,lon,lat,measured_at\n260,3,1,2,3,4,5\n"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, -1, out[0].Signal.TA)
	assert.Equal(t, -1, out[0].Cell.PSC)
	assert.Equal(t, measurement.NetworkUnknown, out[0].Cell.NetworkType)
}

type parsedGPX struct {
	Creator  string `xml:"creator,attr"`
	Metadata struct {
		Time   string `xml:"time"`
		Bounds struct {
			MinLat float64 `xml:"minlat,attr"`
			MaxLon float64 `xml:"maxlon,attr"`
		} `xml:"bounds"`
	} `xml:"metadata"`
	Segments []struct {
		Points []struct {
			Lat  float64 `xml:"lat,attr"`
			Name string  `xml:"name"`
			Desc string  `xml:"desc"`
		} `xml:"trkpt"`
	} `xml:"trk>trkseg"`
}

func TestGPXWriter(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := sample(ts)
	b := sample(ts.Add(time.Minute))
	b.Signal.TA = -1
	c := sample(ts.Add(2 * time.Hour))

	bounds := measurement.EmptyBoundaries().Extend(a.Location)

	var buf bytes.Buffer
	g := NewGPXWriter(&buf)
	require.NoError(t, g.WriteHeader(GPXHeader{Creator: "towercollector 1.0.0", First: ts, Last: c.MeasuredAt, Bounds: bounds}))
	require.NoError(t, g.Write(a))
	require.NoError(t, g.Write(b))
	require.NoError(t, g.NewSegment())
	require.NoError(t, g.Write(c))
	require.NoError(t, g.WriteFooter())

	var doc parsedGPX
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc), buf.String())
	assert.Equal(t, "towercollector 1.0.0", doc.Creator)
	assert.Equal(t, "2024-05-01T14:00:00Z", doc.Metadata.Time)
	assert.InDelta(t, 52.2297, doc.Metadata.Bounds.MinLat, 1e-9)
	assert.InDelta(t, 21.0122, doc.Metadata.Bounds.MaxLon, 1e-9)
	require.Len(t, doc.Segments, 2)
	require.Len(t, doc.Segments[0].Points, 2)
	require.Len(t, doc.Segments[1].Points, 1)
	assert.Equal(t, "LTE 260-2 58140 21570083", doc.Segments[0].Points[0].Name)
	assert.Equal(t, "-100 dBm, 40 asu, ta 3", doc.Segments[0].Points[0].Desc)
	assert.Equal(t, "-100 dBm, 40 asu", doc.Segments[0].Points[1].Desc)
}
