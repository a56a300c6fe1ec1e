package engine

import "time"

// ClientID uniquely identifies a connected ingest device for the lifetime of
// its connection.
type ClientID string

// ImageSize holds the pixel dimensions of the source image a detection batch
// was computed on.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoundingBox is an axis-aligned box in source pixel coordinates.
type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Center is the center point of a detected object.
type Center struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Detection is one detected object within a batch.
type Detection struct {
	ClassID     int         `json:"class_id"`
	ClassName   string      `json:"class_name"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Area        float64     `json:"area"`
	Center      Center      `json:"center"`
}

// DetectionBatch is one timestamped group of object-detection results
// supplied by the external inference producer. The engine only reads the
// confidence and bounding box fields; the rest is carried for fan-out and
// for the out-of-scope detection store.
type DetectionBatch struct {
	Timestamp     string      `json:"timestamp"`
	InferenceTime float64     `json:"inference_time"`
	FrameID       string      `json:"frame_id"`
	Model         string      `json:"model"`
	Device        string      `json:"device"`
	Zone          string      `json:"zone"`
	ImageSize     ImageSize   `json:"image_size"`
	Detections    []Detection `json:"detections"`
}

// RecordingMetadata describes one completed or in-progress recording.
// EndTime is nil and Filesize is 0 while the recording is still open.
type RecordingMetadata struct {
	Filename  string     `json:"filename"`
	ClientID  ClientID   `json:"client_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Filesize  int64      `json:"filesize"`
}

// MetricsSnapshot is the per-client health shape served by the metrics
// endpoint. Field formatting (resolution string, duration, bitrate) matches
// what the dashboard consumes.
type MetricsSnapshot struct {
	ClientID   ClientID `json:"client_id"`
	Status     string   `json:"status"`
	FPS        float64  `json:"fps"`
	Resolution string   `json:"resolution"`
	Duration   string   `json:"duration"`
	Bitrate    string   `json:"bitrate"`
}

// DisconnectedSnapshot is the fixed zero-metrics shape returned for ids that
// are unknown or no longer connected.
func DisconnectedSnapshot(id ClientID) MetricsSnapshot {
	return MetricsSnapshot{
		ClientID:   id,
		Status:     "disconnected",
		FPS:        0.0,
		Resolution: "N/A",
		Duration:   "0s",
		Bitrate:    "0.00 kbps",
	}
}
