package engine

import (
	"errors"

	"gocv.io/x/gocv"
)

// errNoFrame is returned by decodeFrame for payloads OpenCV cannot decode.
// Malformed frames are expected on lossy links; callers drop them silently.
var errNoFrame = errors.New("engine: payload did not decode to a frame")

// decodeFrame turns a raw compressed payload into a BGR Mat. The caller owns
// the returned Mat and must Close it.
func decodeFrame(payload []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(payload, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, errNoFrame
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, errNoFrame
	}
	return mat, nil
}

// encodeJPEG compresses a frame to JPEG bytes. The returned slice is an
// owned copy; gocv's NativeByteBuffer is released before returning.
func encodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// placeholderJPEG encodes a solid black frame of the given size, emitted to
// viewers while a device has no current frame.
func placeholderJPEG(width, height int) ([]byte, error) {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()
	return encodeJPEG(mat)
}
