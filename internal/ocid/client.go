// Package ocid uploads measurement payloads to the OpenCellID CSV endpoint.
package ocid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/diagnostics"
	"github.com/rshade/towercollector/internal/logging"
	"github.com/rshade/towercollector/internal/upload"
	"github.com/rshade/towercollector/pkg/version"
)

const (
	fieldAPIKey   = "key"
	fieldDataFile = "datafile"
	dataFileName  = "measurements.csv"

	// maxBodyBytes bounds how much of a response is read for classification.
	maxBodyBytes = 4096
)

// Client performs one HTTP request per uploaded part.
type Client struct {
	url        string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	reporter   diagnostics.Reporter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithReporter sets the sink for unexpected errors.
func WithReporter(r diagnostics.Reporter) Option {
	return func(c *Client) { c.reporter = r }
}

// New creates a client from the upload configuration.
func New(cfg config.UploadConfig, opts ...Option) *Client {
	appID := cfg.AppID
	if appID == "" {
		appID = config.DefaultAppID
	}
	c := &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		userAgent:  appID + "/" + version.GetVersion(),
		httpClient: newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout),
		reporter:   diagnostics.Nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	if connect <= 0 {
		connect = config.DefaultConnectTimeout
	}
	if read <= 0 {
		read = config.DefaultReadTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{
		Transport: transport,
		Timeout:   connect + read,
	}
}

// UploadMeasurements posts payload as the data file of a multipart form and
// classifies the response.
func (c *Client) UploadMeasurements(ctx context.Context, payload []byte) upload.Outcome {
	logger := logging.FromContext(ctx).With().Str(logging.FieldComponent, "ocid").Logger()

	body, contentType, err := c.multipartBody(payload)
	if err != nil {
		c.reporter.Report(ctx, err)
		return upload.OutcomeFailure
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		c.reporter.Report(ctx, fmt.Errorf("building upload request: %w", err))
		return upload.OutcomeFailure
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome := ClassifyError(err)
		logger.Warn().Err(err).Str("outcome", outcome.String()).Msg("upload request failed")
		if outcome == upload.OutcomeFailure && !errors.Is(err, context.Canceled) {
			c.reporter.Report(ctx, fmt.Errorf("uploading measurements: %w", err))
		}
		return outcome
	}
	defer resp.Body.Close()

	snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		logger.Debug().Err(readErr).Msg("reading upload response body")
	}
	outcome := ClassifyStatus(resp.StatusCode, string(snippet))
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("outcome", outcome.String()).
		Dur("duration", time.Since(start)).
		Int("payload_bytes", len(payload)).
		Msg("upload response")

	if outcome == upload.OutcomeInvalidData ||
		(outcome == upload.OutcomeFailure && resp.StatusCode >= http.StatusBadRequest) {
		c.reporter.Report(ctx, fmt.Errorf("upload rejected with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return outcome
}

func (c *Client) multipartBody(payload []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField(fieldAPIKey, c.apiKey); err != nil {
		return nil, "", fmt.Errorf("writing api key field: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldDataFile, dataFileName))
	h.Set("Content-Type", "text/csv")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating data file part: %w", err)
	}
	if _, err = part.Write(payload); err != nil {
		return nil, "", fmt.Errorf("writing data file part: %w", err)
	}
	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// ClassifyStatus maps an HTTP response to an outcome.
func ClassifyStatus(status int, body string) upload.Outcome {
	switch {
	case status >= 200 && status < 300:
		return upload.OutcomeSuccess
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return upload.OutcomeInvalidAPIKey
	case status >= 400 && status < 500:
		if mentionsAPIKey(body) {
			return upload.OutcomeInvalidAPIKey
		}
		return upload.OutcomeInvalidData
	case status >= 500:
		return upload.OutcomeServerError
	default:
		return upload.OutcomeFailure
	}
}

func mentionsAPIKey(body string) bool {
	lower := strings.ToLower(body)
	for _, hint := range []string{"api key", "apikey", "api_key", "invalid key", "token"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// ClassifyError maps a transport error to an outcome.
func ClassifyError(err error) upload.Outcome {
	switch {
	case err == nil:
		return upload.OutcomeSuccess
	case errors.Is(err, fs.ErrPermission):
		return upload.OutcomePermissionDenied
	case diagnostics.IsSuppressed(err):
		return upload.OutcomeConnectionError
	default:
		return upload.OutcomeFailure
	}
}
