package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"stream-telemetry/internal/platform/metrics"
)

// streamBoundary is the fixed multipart boundary marker of the live stream.
const streamBoundary = "frame"

// streamContentType is the response content type of the live stream.
const streamContentType = "multipart/x-mixed-replace; boundary=" + streamBoundary

// Compositor produces annotated MJPEG streams for dashboard viewers. Each
// viewer gets an independent streaming loop with its own heatmap state and
// detection cursor; the shared inputs (registry, buffer) are only read.
type Compositor struct {
	registry *Registry
	buffer   *Buffer
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewCompositor wires a compositor over the given registry and detection
// buffer. metrics may be nil.
func NewCompositor(registry *Registry, buffer *Buffer, cfg Config, log *slog.Logger, m *metrics.Metrics) *Compositor {
	return &Compositor{
		registry: registry,
		buffer:   buffer,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Stream writes an MJPEG multipart stream for id to w until ctx is
// canceled. The stream is infinite and self-healing: a missing frame emits a
// placeholder, an encode failure skips the cycle, and a bad detection batch
// is simply folded for whatever it contains. Only viewer cancellation or a
// broken connection ends it.
func (c *Compositor) Stream(ctx context.Context, w http.ResponseWriter, id ClientID, heatmapEnabled bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")

	if c.metrics != nil {
		c.metrics.AddActiveViewers(1)
		defer c.metrics.AddActiveViewers(-1)
	}
	c.log.Info("viewer stream started",
		slog.String("client_id", string(id)),
		slog.Bool("heatmap", heatmapEnabled))
	defer c.log.Info("viewer stream ended", slog.String("client_id", string(id)))

	placeholder, err := placeholderJPEG(c.cfg.StreamWidth, c.cfg.StreamHeight)
	if err != nil {
		// Without a placeholder the stream can still serve real frames.
		c.log.Warn("placeholder encode failed", slog.String("error", err.Error()))
	}

	heat := NewHeatmap(c.cfg.StreamWidth, c.cfg.StreamHeight, c.cfg.HeatmapCellSize)
	var cursor uint64

	interval := c.cfg.StreamInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		jpeg, skip := c.renderCycle(id, heatmapEnabled, heat, &cursor)
		if jpeg == nil && !skip {
			jpeg = placeholder
		}
		if jpeg != nil {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// encodeStream is swappable so tests can force the encode path to fail.
var encodeStream = encodeJPEG

// renderCycle performs one compositor cycle. A nil jpeg with skip unset
// means "no frame yet" and the caller falls back to the placeholder; skip
// set means the cycle produced nothing presentable (encode failure) and the
// caller emits nothing at all.
func (c *Compositor) renderCycle(id ClientID, heatmapEnabled bool, heat *Heatmap, cursor *uint64) (jpeg []byte, skip bool) {
	frame, ok := c.registry.LatestFrame(id)
	if !ok {
		// Keep the viewer's cursor parked; detections without a frame
		// have nothing to annotate.
		return nil, false
	}
	defer frame.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Resize(frame, &out, image.Pt(c.cfg.StreamWidth, c.cfg.StreamHeight), 0, 0, gocv.InterpolationLinear)

	if heatmapEnabled {
		heat.Decay(c.cfg.HeatmapDecay)
		c.foldDetections(heat, cursor)
		if err := c.overlayHeatmap(&out, heat); err != nil {
			c.log.Debug("heatmap overlay failed", slog.String("error", err.Error()))
		}
	}

	jpeg, err := encodeStream(out)
	if err != nil {
		// Never yield a partial or stand-in frame; skip the cycle.
		c.log.Debug("frame encode failed",
			slog.String("client_id", string(id)),
			slog.String("error", err.Error()))
		return nil, true
	}
	return jpeg, false
}

// foldDetections advances the viewer's cursor through at most
// HeatmapMaxBatches pending batches, accumulating boxes above the confidence
// threshold. Bounding the per-cycle work keeps latency flat even when the
// buffer has run far ahead; the cursor resumes next cycle, never resets.
func (c *Compositor) foldDetections(heat *Heatmap, cursor *uint64) {
	for i := 0; i < c.cfg.HeatmapMaxBatches; i++ {
		batch, next, ok := c.buffer.ReadNext(*cursor)
		if !ok {
			*cursor = next
			return
		}
		*cursor = next
		for _, det := range batch.Detections {
			if det.Confidence > c.cfg.HeatmapConfidence {
				heat.Add(det.BoundingBox)
			}
		}
	}
}

// overlayHeatmap normalizes the grid, upsamples it to the output resolution,
// applies the JET color map, and alpha-blends it over dst in place. An
// all-zero grid produces an all-zero overlay, which blends to a dimmed frame
// exactly like any other zero-intensity map.
func (c *Compositor) overlayHeatmap(dst *gocv.Mat, heat *Heatmap) error {
	cols, rows := heat.Dims()
	gray, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, heat.Normalized())
	if err != nil {
		return fmt.Errorf("engine: build heatmap mat: %w", err)
	}
	defer gray.Close()

	up := gocv.NewMat()
	defer up.Close()
	gocv.Resize(gray, &up, image.Pt(c.cfg.StreamWidth, c.cfg.StreamHeight), 0, 0, gocv.InterpolationLinear)

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(up, &colored, gocv.ColormapJet)

	gocv.AddWeighted(*dst, 1-c.cfg.HeatmapAlpha, colored, c.cfg.HeatmapAlpha, 0, dst)
	return nil
}

// writePart emits one multipart image part in the stream's framing.
func writePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
