package engine

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// DefaultRecordingFPS is the fixed frame rate recordings are encoded at.
// Arrival-rate variance becomes playback-speed variance; the recorder does
// not rate-adapt.
const DefaultRecordingFPS = 15.0

// recordingCodec is the FourCC used for on-disk recordings.
const recordingCodec = "XVID"

// ErrRecorderClosed is returned when writing to or closing a recorder that
// has already been finalized.
var ErrRecorderClosed = errors.New("engine: recorder is closed")

// Recorder mirrors one session's frames to a video file. The dimensions of
// the first frame fix the recording's dimensions; later frames of other sizes
// are conformed by resizing, never written raw.
//
// A Recorder is owned by its session's ingest goroutine; it is not safe for
// concurrent use.
type Recorder struct {
	path     string
	filename string
	width    int
	height   int
	openedAt time.Time
	writer   *gocv.VideoWriter
	closed   bool
}

// OpenRecorder creates the output file for a session. The filename is
// derived from the client id, the connect timestamp at second precision, and
// a short random disambiguator so rapid reconnects of the same device never
// collide.
func OpenRecorder(dir string, id ClientID, connectedAt time.Time, width, height int, fps float64) (*Recorder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("engine: invalid recording dimensions %dx%d", width, height)
	}
	if fps <= 0 {
		fps = DefaultRecordingFPS
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create recording dir: %w", err)
	}

	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	filename := fmt.Sprintf("client_%s_%s_%s.avi", id, connectedAt.Format("20060102_150405"), suffix)
	path := filepath.Join(dir, filename)

	writer, err := gocv.VideoWriterFile(path, recordingCodec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("engine: open video writer %s: %w", path, err)
	}

	return &Recorder{
		path:     path,
		filename: filename,
		width:    width,
		height:   height,
		openedAt: time.Now(),
		writer:   writer,
	}, nil
}

// Filename returns the catalog key for this recording.
func (r *Recorder) Filename() string {
	return r.filename
}

// Path returns the on-disk location of the recording.
func (r *Recorder) Path() string {
	return r.path
}

// Write appends a frame to the recording. Frames whose dimensions differ
// from the first frame are resized to fit rather than corrupting the file.
// Writing after Close is caller misuse and returns ErrRecorderClosed.
func (r *Recorder) Write(frame gocv.Mat) error {
	if r.closed {
		return ErrRecorderClosed
	}
	if frame.Cols() != r.width || frame.Rows() != r.height {
		conformed := gocv.NewMat()
		defer conformed.Close()
		gocv.Resize(frame, &conformed, image.Pt(r.width, r.height), 0, 0, gocv.InterpolationLinear)
		return r.writer.Write(conformed)
	}
	return r.writer.Write(frame)
}

// Close finalizes the recording exactly once and returns the end time and
// on-disk size. If the file cannot be stat'ed the size defaults to 0; the
// close itself still completes. A second Close returns ErrRecorderClosed.
func (r *Recorder) Close() (end time.Time, size int64, err error) {
	if r.closed {
		return time.Time{}, 0, ErrRecorderClosed
	}
	r.closed = true

	closeErr := r.writer.Close()
	end = time.Now()

	if fi, statErr := os.Stat(r.path); statErr == nil {
		size = fi.Size()
	}

	if closeErr != nil {
		return end, size, fmt.Errorf("engine: close video writer %s: %w", r.path, closeErr)
	}
	return end, size, nil
}
