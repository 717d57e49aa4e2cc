package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rshade/towercollector/internal/export"
	"github.com/rshade/towercollector/internal/logging"
	"github.com/rshade/towercollector/internal/upload"
)

// uploadWorker is the part of upload.Worker the HTTP API drives.
type uploadWorker interface {
	Trigger() bool
	Cancel() bool
	Status() upload.Status
}

// exportFunc writes an export in the given format.
type exportFunc func(ctx context.Context, format string) export.Result

// exportResponse is the JSON body of POST /export.
type exportResponse struct {
	Status   string `json:"status"`
	Format   string `json:"format"`
	Path     string `json:"path,omitempty"`
	Exported int    `json:"exported"`
	Error    string `json:"error,omitempty"`
}

// newServeMux builds the serve HTTP API:
//
//	GET  /metrics        Prometheus metrics
//	GET  /status         upload worker state
//	POST /upload         queue an upload run
//	POST /upload/cancel  cancel the queued or active run
//	POST /export         write an export (?format=gpx|csv|xlsx|pdf)
func newServeMux(
	worker uploadWorker,
	exporter exportFunc,
	onExport func(export.Result),
	gatherer prometheus.Gatherer,
) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, worker.Status())
	})

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if !worker.Trigger() {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "already running or queued"})
			return
		}
		logging.FromContext(r.Context()).Info().Msg("upload requested")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	})

	mux.HandleFunc("POST /upload/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !worker.Cancel() {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "no upload running"})
			return
		}
		logging.FromContext(r.Context()).Info().Msg("upload cancel requested")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	})

	mux.HandleFunc("POST /export", func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = export.FormatGPX
		}
		if err := export.ValidateFormat(format); err != nil {
			writeJSON(w, http.StatusBadRequest, exportResponse{
				Status: export.StatusFailed.String(), Format: format, Error: err.Error(),
			})
			return
		}

		res := exporter(r.Context(), format)
		if onExport != nil {
			onExport(res)
		}
		body := exportResponse{
			Status:   res.Status.String(),
			Format:   res.Format,
			Exported: res.Exported,
		}
		code := http.StatusOK
		switch res.Status {
		case export.StatusSucceeded:
			body.Path = res.Path
		case export.StatusFailed:
			code = http.StatusInternalServerError
			if res.Err != nil {
				body.Error = res.Err.Error()
			}
		case export.StatusNoData, export.StatusCancelled:
		}
		writeJSON(w, code, body)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
