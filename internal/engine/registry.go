package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"stream-telemetry/internal/platform/metrics"
)

// ErrUnknownClient is returned for operations on a client id that is not
// currently connected.
var ErrUnknownClient = errors.New("engine: unknown client id")

// errNoFreeID signals that id allocation failed; in practice this means the
// id space is nearly saturated.
var errNoFreeID = errors.New("engine: could not allocate a free client id")

// clientIDDigits is the width of generated client ids.
const clientIDDigits = 5

// session is the live state for one connected ingest device. mu serializes
// ingest against teardown: Receive runs its whole post-decode path under mu,
// and Disconnect marks the session closed under mu before touching the
// recorder, so an in-flight Receive can never write to a closed recorder or
// repopulate state after cleanup. The latest-frame slot is additionally read
// by compositors and is guarded by frameMu so replacement is atomic.
type session struct {
	id          ClientID
	connectedAt time.Time
	stats       *Accumulator

	frameMu  sync.RWMutex
	latest   gocv.Mat
	hasFrame bool

	mu     sync.Mutex
	closed bool
	rec    *Recorder
}

// setLatest replaces the latest-frame slot, closing the previous Mat. The
// session takes ownership of frame.
func (s *session) setLatest(frame gocv.Mat) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.hasFrame {
		s.latest.Close()
	}
	s.latest = frame
	s.hasFrame = true
}

// releaseLatest frees the slot's Mat, if any.
func (s *session) releaseLatest() {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.hasFrame {
		s.latest.Close()
		s.hasFrame = false
	}
}

// Registry is the single source of truth for connected ingest sessions. It
// owns the session map, the lazily opened per-session recorders, and the
// per-session accumulators; the recording catalog is shared with the HTTP
// layer for listing and download.
//
// The registry is an explicitly constructed object, not process state: its
// lifetime is the engine's lifetime and tests build as many as they need.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ClientID]*session

	catalog *Catalog
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry constructs a registry. metrics may be nil (e.g. in tests).
func NewRegistry(cfg Config, catalog *Catalog, log *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[ClientID]*session),
		catalog:  catalog,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Connect allocates a fresh client id, collision-checked against active ids,
// and inserts empty session state. Safe under concurrent connects.
func (r *Registry) Connect() (ClientID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const maxAttempts = 1000
	for i := 0; i < maxAttempts; i++ {
		id := ClientID(fmt.Sprintf("%05d", rand.IntN(100000)))
		if _, taken := r.sessions[id]; taken {
			continue
		}
		r.sessions[id] = &session{
			id:          id,
			connectedAt: time.Now(),
			stats:       NewAccumulator(),
		}
		r.log.Info("client connected", slog.String("client_id", string(id)))
		return id, nil
	}
	return "", errNoFreeID
}

// Disconnect tears down a session: the recorder (if open) is finalized and
// its catalog entry stamped, the latest-frame slot is released, and the
// session is removed from the registry. Every step runs even if an earlier
// one fails; cleanup is best-effort and total. Disconnecting an unknown id
// is a no-op.
func (r *Registry) Disconnect(id ClientID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	// Marking the session closed under its own lock fences out any
	// in-flight Receive: once we hold mu, no Receive is past its closed
	// check, and every later one drops out before touching the recorder.
	s.mu.Lock()
	s.closed = true
	rec := s.rec
	s.mu.Unlock()

	if rec != nil {
		end, size, err := rec.Close()
		if err != nil && !errors.Is(err, ErrRecorderClosed) {
			r.log.Warn("recorder close failed",
				slog.String("client_id", string(id)),
				slog.String("error", err.Error()))
		}
		if !errors.Is(err, ErrRecorderClosed) {
			r.catalog.Finalize(rec.Filename(), end, size)
			if r.metrics != nil {
				r.metrics.IncRecordingsClosed()
			}
			r.log.Info("recording finalized",
				slog.String("client_id", string(id)),
				slog.String("filename", rec.Filename()),
				slog.Int64("size", size))
		}
	}

	s.releaseLatest()
	r.log.Info("client disconnected", slog.String("client_id", string(id)))
}

// Receive ingests one raw payload for a session. Payloads that do not decode
// are dropped silently; decode failures are expected on lossy links and must
// not disturb session state. On success the latest-frame slot is replaced,
// stats are updated, and the frame is mirrored to the recorder, which opens
// lazily on the first decoded frame.
//
// Receive is safe against a concurrent Disconnect: the post-decode path is
// serialized per session, and a frame arriving after teardown is dropped
// with ErrUnknownClient.
func (r *Registry) Receive(id ClientID, payload []byte) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownClient
	}

	frame, err := decodeFrame(payload)
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncFramesDropped()
		}
		r.log.Debug("dropped undecodable frame",
			slog.String("client_id", string(id)),
			slog.Int("payload_len", len(payload)))
		return nil
	}
	defer frame.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Disconnect won the race; dropping the frame here is what keeps
		// the recorder closed exactly once and the slot released.
		return ErrUnknownClient
	}

	s.stats.OnFrame(len(payload), frame.Cols(), frame.Rows())
	if r.metrics != nil {
		r.metrics.IncFramesIngested(len(payload))
	}

	s.setLatest(frame.Clone())

	if s.rec == nil && r.cfg.RecordingEnabled {
		rec, err := OpenRecorder(r.cfg.RecordingDir, id, s.connectedAt, frame.Cols(), frame.Rows(), r.cfg.RecordingFPS)
		if err != nil {
			// The next frame retries; a missing recording must not end
			// the session.
			r.log.Warn("recorder open failed",
				slog.String("client_id", string(id)),
				slog.String("error", err.Error()))
		} else {
			s.rec = rec
			r.catalog.Add(RecordingMetadata{
				Filename:  rec.Filename(),
				ClientID:  id,
				StartTime: s.connectedAt,
			})
			if r.metrics != nil {
				r.metrics.IncRecordingsStarted()
			}
			r.log.Info("recording started",
				slog.String("client_id", string(id)),
				slog.String("filename", rec.Filename()))
		}
	}

	if s.rec != nil {
		if err := s.rec.Write(frame); err != nil {
			r.log.Warn("recorder write failed",
				slog.String("client_id", string(id)),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// LatestFrame returns an owned clone of the most recent decoded frame for
// id. The caller must Close it. ok is false when the client is unknown or
// has not produced a frame yet.
func (r *Registry) LatestFrame(id ClientID) (frame gocv.Mat, ok bool) {
	r.mu.RLock()
	s, found := r.sessions[id]
	r.mu.RUnlock()
	if !found {
		return gocv.Mat{}, false
	}

	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	if !s.hasFrame {
		return gocv.Mat{}, false
	}
	return s.latest.Clone(), true
}

// IsActive reports whether id is a currently connected session.
func (r *Registry) IsActive(id ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// ActiveIDs returns the connected client ids, sorted for stable output.
func (r *Registry) ActiveIDs() []ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ClientID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ActiveCount returns the number of connected sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// MetricsSnapshot returns the health shape for id. Connection status is
// derived from current registry membership at read time; unknown or
// disconnected ids get the fixed zero-metrics shape, never an error.
func (r *Registry) MetricsSnapshot(id ClientID) MetricsSnapshot {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return DisconnectedSnapshot(id)
	}

	snap := s.stats.Snapshot()
	return MetricsSnapshot{
		ClientID:   id,
		Status:     "connected",
		FPS:        math.Round(snap.FPS*100) / 100,
		Resolution: snap.Resolution(),
		Duration:   fmt.Sprintf("%ds", int(snap.Duration.Seconds())),
		Bitrate:    fmt.Sprintf("%.2f kbps", snap.Bitrate),
	}
}
