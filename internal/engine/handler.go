package engine

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"

	"stream-telemetry/internal/platform/metrics"
	"stream-telemetry/internal/updates"
)

const recordingContentType = "video/avi"

// Handler exposes the engine's HTTP endpoints using go-chi.
type Handler struct {
	registry   *Registry
	buffer     *Buffer
	catalog    *Catalog
	compositor *Compositor
	hub        *updates.Hub
	cfg        Config
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewHandler returns a Handler over the engine's components. hub and metrics
// may be nil (e.g. in tests) to disable fan-out and metric recording.
func NewHandler(registry *Registry, buffer *Buffer, catalog *Catalog, compositor *Compositor, hub *updates.Hub, cfg Config, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		registry:   registry,
		buffer:     buffer,
		catalog:    catalog,
		compositor: compositor,
		hub:        hub,
		cfg:        cfg,
		log:        log,
		metrics:    m,
	}
}

// Routes mounts all engine endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/ingest", h.Ingest)
	r.Get("/ws/updates", h.Updates)
	r.Post("/detections", h.IngestDetections)
	r.Get("/clients", h.ListClients)
	r.Route("/clients/{client_id}", func(r chi.Router) {
		r.Get("/metrics", h.ClientMetrics)
		r.Get("/stream", h.LiveStream)
	})
	r.Get("/recordings", h.ListRecordings)
	r.Get("/recordings/{filename}", h.DownloadRecording)
}

// ListClients handles GET /clients: the ids of currently connected sessions.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": h.registry.ActiveIDs(),
	})
}

// ClientMetrics handles GET /clients/{client_id}/metrics. Unknown or
// disconnected ids return the fixed zero-metrics shape with status 200, not
// an error.
func (h *Handler) ClientMetrics(w http.ResponseWriter, r *http.Request) {
	id := ClientID(chi.URLParam(r, "client_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.registry.MetricsSnapshot(id))
}

// LiveStream handles GET /clients/{client_id}/stream?heatmap=true|false.
// The response is an infinite MJPEG multipart stream; it ends only when the
// viewer disconnects. Unsupported heatmap values degrade to "off" rather
// than erroring.
func (h *Handler) LiveStream(w http.ResponseWriter, r *http.Request) {
	id := ClientID(chi.URLParam(r, "client_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	heatmapEnabled := strings.EqualFold(r.URL.Query().Get("heatmap"), "true")
	h.compositor.Stream(r.Context(), w, id, heatmapEnabled)
}

// IngestDetections handles POST /detections: a JSON array of detection
// batches from the external inference producer. Batches are appended to the
// buffer in arrival order and fanned out to dashboard websocket clients.
// Content validation beyond the decoded shape is the upstream cleaning
// layer's concern.
func (h *Handler) IngestDetections(w http.ResponseWriter, r *http.Request) {
	var batches []DetectionBatch
	if err := gojson.NewDecoder(r.Body).Decode(&batches); err != nil {
		h.log.Debug("invalid detection payload", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "body must be a JSON array of detection batches",
		})
		return
	}
	if len(batches) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "empty batch array",
		})
		return
	}

	for _, b := range batches {
		h.buffer.Append(b)
	}
	if h.metrics != nil {
		h.metrics.IncDetectionBatches(len(batches))
	}
	if h.hub != nil {
		h.hub.Broadcast(updates.Message{Type: updates.MessageTypeDetections, Data: batches})
	}

	h.log.Debug("detection batches appended", slog.Int("count", len(batches)))
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success", "message": "detection batches accepted",
	})
}

// ListRecordings handles GET /recordings: catalog entries, most recent
// first.
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"recordings": h.catalog.List(),
	})
}

// DownloadRecording handles GET /recordings/{filename}: the raw file bytes
// for a recording known to the catalog, or 404. The filename is reduced to
// its base so the catalog, not the request, decides what paths exist.
func (h *Handler) DownloadRecording(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if filename == "" || filename == "." {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if _, ok := h.catalog.Get(filename); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	path := filepath.Join(h.cfg.RecordingDir, filename)
	f, err := os.Open(path)
	if err != nil {
		h.log.Warn("recording file missing",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", recordingContentType)
	fi, err := f.Stat()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, filename, fi.ModTime(), f)
}

// writeJSON writes v as a JSON response body. Small control-plane responses
// use encoding/json; the hot detection path decodes with goccy/go-json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
