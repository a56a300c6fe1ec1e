package engine

import (
	"log/slog"
	"testing"

	"gocv.io/x/gocv"

	"stream-telemetry/internal/platform/logger"
)

// testLogger only emits errors so test output stays readable.
func testLogger() *slog.Logger {
	return logger.Discard()
}

// encodeTestJPEG builds a valid compressed frame payload of the given pixel
// dimensions.
func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()
	payload, err := encodeJPEG(mat)
	if err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return payload
}

// newTestRegistry builds a registry recording into a per-test temp dir.
func newTestRegistry(t *testing.T) (*Registry, *Catalog, Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RecordingDir = t.TempDir()
	catalog := NewCatalog()
	return NewRegistry(cfg, catalog, testLogger(), nil), catalog, cfg
}
