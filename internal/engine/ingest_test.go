package engine

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func dialIngest(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/ingest"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func TestIngest_session_lifecycle(t *testing.T) {
	h, reg, catalog := newTestHandler(t)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialIngest(t, srv)
	defer conn.Close()

	if !waitFor(t, 2*time.Second, func() bool { return reg.ActiveCount() == 1 }) {
		t.Fatal("session never registered")
	}
	id := reg.ActiveIDs()[0]

	frame := encodeTestJPEG(t, 320, 240)
	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}

	framesArrived := func() bool {
		return reg.MetricsSnapshot(id).Resolution == "320x240"
	}
	if !waitFor(t, 2*time.Second, framesArrived) {
		t.Fatal("frames never reached the session")
	}

	// A normal close tears down the whole session: recorder finalized,
	// session gone, metrics fall back to the disconnected shape.
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	if !waitFor(t, 2*time.Second, func() bool { return reg.ActiveCount() == 0 }) {
		t.Fatal("session never cleaned up after close")
	}
	if catalog.Len() != 1 {
		t.Fatalf("catalog entries = %d, want 1", catalog.Len())
	}
	if catalog.List()[0].EndTime == nil {
		t.Error("recording not finalized on disconnect")
	}
	if snap := reg.MetricsSnapshot(id); snap.Status != "disconnected" {
		t.Errorf("Status = %q, want disconnected", snap.Status)
	}
}

func TestIngest_text_messages_ignored(t *testing.T) {
	h, reg, _ := newTestHandler(t)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialIngest(t, srv)
	defer conn.Close()

	if !waitFor(t, 2*time.Second, func() bool { return reg.ActiveCount() == 1 }) {
		t.Fatal("session never registered")
	}
	id := reg.ActiveIDs()[0]

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeTestJPEG(t, 64, 48)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	arrived := func() bool {
		return reg.MetricsSnapshot(id).Resolution == "64x48"
	}
	if !waitFor(t, 2*time.Second, arrived) {
		t.Fatal("frame after text message never arrived")
	}
	if snap := reg.MetricsSnapshot(id); snap.Status != "connected" {
		t.Errorf("Status = %q, want connected", snap.Status)
	}
}

func TestIngest_undecodable_frames_keep_connection(t *testing.T) {
	h, reg, _ := newTestHandler(t)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialIngest(t, srv)
	defer conn.Close()

	if !waitFor(t, 2*time.Second, func() bool { return reg.ActiveCount() == 1 }) {
		t.Fatal("session never registered")
	}
	id := reg.ActiveIDs()[0]

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeTestJPEG(t, 128, 96)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	arrived := func() bool {
		return reg.MetricsSnapshot(id).Resolution == "128x96"
	}
	if !waitFor(t, 2*time.Second, arrived) {
		t.Fatal("valid frame after garbage never arrived")
	}
}

func TestUpdates_unavailable_without_hub(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/updates"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded, want handshake failure")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("resp = %+v, want 503", resp)
	}
}
