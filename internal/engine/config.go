package engine

import "time"

// Config carries the tunable parameters of the engine. Zero values are
// replaced by the defaults below where it matters; DefaultConfig returns a
// fully populated value.
type Config struct {
	// RecordingDir is the directory recordings are written under.
	RecordingDir string
	// RecordingFPS is the fixed encode rate for recordings.
	RecordingFPS float64
	// RecordingEnabled turns disk recording off entirely; sessions still
	// serve live streams and metrics.
	RecordingEnabled bool

	// StreamInterval is the compositor's output cadence.
	StreamInterval time.Duration
	// StreamWidth and StreamHeight fix the composited output resolution.
	StreamWidth  int
	StreamHeight int

	// HeatmapCellSize is the edge length in pixels of one heatmap cell.
	HeatmapCellSize int
	// HeatmapDecay is the multiplicative fade applied each cycle (< 1).
	HeatmapDecay float32
	// HeatmapAlpha is the overlay blend weight.
	HeatmapAlpha float64
	// HeatmapConfidence is the minimum confidence (exclusive) for a
	// detection to contribute to the heatmap. Observed deployments used
	// both 0.3 and 0.5; it is a knob, not a constant.
	HeatmapConfidence float64
	// HeatmapMaxBatches bounds how many pending detection batches one
	// compositor cycle folds in, trading staleness for bounded latency.
	HeatmapMaxBatches int

	// BufferLimit bounds the detection buffer's retained batches.
	BufferLimit int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RecordingDir:      "streaming_video",
		RecordingFPS:      DefaultRecordingFPS,
		RecordingEnabled:  true,
		StreamInterval:    time.Second,
		StreamWidth:       640,
		StreamHeight:      480,
		HeatmapCellSize:   40,
		HeatmapDecay:      0.95,
		HeatmapAlpha:      0.4,
		HeatmapConfidence: 0.3,
		HeatmapMaxBatches: 10,
		BufferLimit:       DefaultBufferLimit,
	}
}
