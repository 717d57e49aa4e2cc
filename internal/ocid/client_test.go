package ocid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/upload"
)

func testConfig(serverURL string) config.UploadConfig {
	return config.UploadConfig{
		URL:            serverURL,
		APIKey:         "secret-key",
		AppID:          "towercollector",
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
	}
}

func TestUploadMeasurementsSendsMultipartForm(t *testing.T) {
	payload := []byte("mcc,mnc,lac,cellid\n260,2,1,2\n")
	var gotKey, gotFile, gotFilename, gotAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		gotAgent = r.UserAgent()
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotKey = r.FormValue("key")
		f, hdr, err := r.FormFile("datafile")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotFile = string(data)
		gotFilename = hdr.Filename
		_, _ = w.Write([]byte("0,OK"))
	}))
	defer server.Close()

	rec := &diagnostics.Recorder{}
	c := New(testConfig(server.URL), WithReporter(rec))

	outcome := c.UploadMeasurements(context.Background(), payload)
	assert.Equal(t, upload.OutcomeSuccess, outcome)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, string(payload), gotFile)
	assert.Equal(t, "measurements.csv", gotFilename)
	assert.True(t, strings.HasPrefix(gotAgent, "towercollector/"), gotAgent)
	assert.Empty(t, rec.Errors())
}

func TestUploadMeasurementsStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       upload.Outcome
		wantReport bool
	}{
		{"ok", http.StatusOK, "0,OK", upload.OutcomeSuccess, false},
		{"unauthorized", http.StatusUnauthorized, "", upload.OutcomeInvalidAPIKey, false},
		{"forbidden", http.StatusForbidden, "", upload.OutcomeInvalidAPIKey, false},
		{"bad key in body", http.StatusBadRequest, "Invalid API key", upload.OutcomeInvalidAPIKey, false},
		{"bad payload", http.StatusBadRequest, "missing column lat", upload.OutcomeInvalidData, true},
		{"server error", http.StatusInternalServerError, "", upload.OutcomeServerError, false},
		{"unavailable", http.StatusServiceUnavailable, "", upload.OutcomeServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rec := &diagnostics.Recorder{}
			c := New(testConfig(server.URL), WithReporter(rec))
			assert.Equal(t, tt.want, c.UploadMeasurements(context.Background(), []byte("x")))
			if tt.wantReport {
				assert.Len(t, rec.Errors(), 1)
			} else {
				assert.Empty(t, rec.Errors())
			}
		})
	}
}

func TestUploadMeasurementsConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serverURL := server.URL
	server.Close()

	rec := &diagnostics.Recorder{}
	c := New(testConfig(serverURL), WithReporter(rec))
	assert.Equal(t, upload.OutcomeConnectionError, c.UploadMeasurements(context.Background(), []byte("x")))
	assert.Empty(t, rec.Errors(), "connection errors are suppressed")
}

func TestUploadMeasurementsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.ReadTimeout = 50 * time.Millisecond
	rec := &diagnostics.Recorder{}
	c := New(cfg, WithReporter(rec))
	assert.Equal(t, upload.OutcomeConnectionError, c.UploadMeasurements(context.Background(), []byte("x")))
	assert.Empty(t, rec.Errors())
}

func TestUploadMeasurementsDefaultsAppID(t *testing.T) {
	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AppID = ""
	c := New(cfg, WithHTTPClient(server.Client()))
	assert.Equal(t, upload.OutcomeSuccess, c.UploadMeasurements(context.Background(), nil))
	assert.True(t, strings.HasPrefix(agent, config.DefaultAppID+"/"))
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, upload.OutcomeSuccess, ClassifyStatus(http.StatusNoContent, ""))
	assert.Equal(t, upload.OutcomeInvalidData, ClassifyStatus(http.StatusRequestEntityTooLarge, "too big"))
	assert.Equal(t, upload.OutcomeInvalidAPIKey, ClassifyStatus(http.StatusBadRequest, "bad TOKEN"))
	assert.Equal(t, upload.OutcomeServerError, ClassifyStatus(http.StatusBadGateway, ""))
	assert.Equal(t, upload.OutcomeFailure, ClassifyStatus(http.StatusFound, ""))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want upload.Outcome
	}{
		{"nil", nil, upload.OutcomeSuccess},
		{"permission", &url.Error{Op: "Post", URL: "u", Err: &net.OpError{Op: "dial", Err: syscall.EACCES}}, upload.OutcomePermissionDenied},
		{"eperm", fmt.Errorf("socket: %w", syscall.EPERM), upload.OutcomePermissionDenied},
		{"dns", &url.Error{Op: "Post", URL: "u", Err: &net.DNSError{Err: "no such host"}}, upload.OutcomeConnectionError},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), upload.OutcomeConnectionError},
		{"eof", &url.Error{Op: "Post", URL: "u", Err: io.EOF}, upload.OutcomeConnectionError},
		{"other", errors.New("x509: certificate signed by unknown authority"), upload.OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestMultipartBodyIsParseable(t *testing.T) {
	c := New(testConfig("http://unused"))
	body, contentType, err := c.multipartBody([]byte("a,b\n"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(1<<20))
	assert.Equal(t, "secret-key", req.FormValue("key"))
}
