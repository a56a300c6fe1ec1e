package engine

import (
	"fmt"
	"sync"
	"time"
)

// fpsWindow is the minimum width of the trailing FPS window. The rate is
// recomputed each time the window closes; a window with no arrivals reads
// as 0 rather than holding the last value.
const fpsWindow = time.Second

// Accumulator keeps rolling ingest counters for one session. OnFrame is
// called by the session's ingest goroutine; Snapshot may be called from any
// goroutine serving a metrics request.
type Accumulator struct {
	mu sync.Mutex

	startTime  time.Time
	frameCount uint64
	byteCount  uint64
	width      int
	height     int

	windowStart time.Time
	windowCount int
	fps         float64
	lastFrame   time.Time

	now func() time.Time
}

// NewAccumulator returns an accumulator whose session clock starts now.
func NewAccumulator() *Accumulator {
	return newAccumulatorAt(time.Now)
}

// newAccumulatorAt injects the clock; used by tests to drive the FPS window
// deterministically.
func newAccumulatorAt(now func() time.Time) *Accumulator {
	start := now()
	return &Accumulator{
		startTime:   start,
		windowStart: start,
		now:         now,
	}
}

// OnFrame records one successfully decoded frame of the given compressed
// payload length and pixel dimensions. The resolution is fixed by the first
// frame; later dimensions are ignored here (the recorder conforms them).
func (a *Accumulator) OnFrame(byteLen, width, height int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.frameCount++
	a.byteCount += uint64(byteLen)
	a.lastFrame = now
	if a.width == 0 && a.height == 0 {
		a.width = width
		a.height = height
	}

	a.windowCount++
	if elapsed := now.Sub(a.windowStart); elapsed >= fpsWindow {
		a.fps = float64(a.windowCount) / elapsed.Seconds()
		a.windowCount = 0
		a.windowStart = now
	}
}

// StatsSnapshot is a read-only view of the accumulator at one instant.
type StatsSnapshot struct {
	FrameCount uint64
	ByteCount  uint64
	FPS        float64
	Width      int
	Height     int
	Duration   time.Duration
	Bitrate    float64 // kbps, cumulative average since session start
}

// Snapshot returns the current counters. It has no side effects: calling it
// twice without an intervening frame yields identical values (modulo the
// wall-clock duration and bitrate denominators).
func (a *Accumulator) Snapshot() StatsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	fps := a.fps
	if a.lastFrame.IsZero() || now.Sub(a.lastFrame) >= fpsWindow {
		fps = 0
	}

	duration := now.Sub(a.startTime)
	var kbps float64
	if sec := duration.Seconds(); sec > 0 {
		kbps = float64(a.byteCount) * 8 / 1024 / sec
	}

	return StatsSnapshot{
		FrameCount: a.frameCount,
		ByteCount:  a.byteCount,
		FPS:        fps,
		Width:      a.width,
		Height:     a.height,
		Duration:   duration,
		Bitrate:    kbps,
	}
}

// Resolution returns the "WxH" display string, or "N/A" before the first
// frame fixes the dimensions.
func (s StatsSnapshot) Resolution() string {
	if s.Width <= 0 || s.Height <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
