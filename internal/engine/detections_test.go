package engine

import (
	"fmt"
	"testing"
)

func makeBatch(frameID string) DetectionBatch {
	return DetectionBatch{
		FrameID:   frameID,
		Timestamp: "2026-03-01T12:00:00Z",
		ImageSize: ImageSize{Width: 640, Height: 480},
		Detections: []Detection{
			{
				ClassName:   "person",
				Confidence:  0.9,
				BoundingBox: BoundingBox{XMin: 10, YMin: 10, XMax: 30, YMax: 30},
			},
		},
	}
}

func TestBuffer_reads_in_arrival_order(t *testing.T) {
	buf := NewBuffer(0)
	for i := 0; i < 5; i++ {
		buf.Append(makeBatch(fmt.Sprintf("frame_%d", i)))
	}

	var cursor uint64
	for i := 0; i < 5; i++ {
		batch, next, ok := buf.ReadNext(cursor)
		if !ok {
			t.Fatalf("ReadNext(%d) hit end of buffer early", cursor)
		}
		if want := fmt.Sprintf("frame_%d", i); batch.FrameID != want {
			t.Errorf("batch %d = %q, want %q", i, batch.FrameID, want)
		}
		if next != cursor+1 {
			t.Errorf("next cursor = %d, want %d", next, cursor+1)
		}
		cursor = next
	}

	if _, _, ok := buf.ReadNext(cursor); ok {
		t.Error("expected end-of-buffer after draining")
	}
}

func TestBuffer_end_of_buffer_cursor_is_resumable(t *testing.T) {
	buf := NewBuffer(0)
	buf.Append(makeBatch("frame_0"))

	_, cursor, _ := buf.ReadNext(0)
	if _, next, ok := buf.ReadNext(cursor); ok || next != cursor {
		t.Fatalf("ReadNext at end = (ok=%v, next=%d), want (false, %d)", ok, next, cursor)
	}

	buf.Append(makeBatch("frame_1"))
	batch, _, ok := buf.ReadNext(cursor)
	if !ok || batch.FrameID != "frame_1" {
		t.Errorf("resumed read = (%q, %v), want (frame_1, true)", batch.FrameID, ok)
	}
}

func TestBuffer_independent_cursors(t *testing.T) {
	buf := NewBuffer(0)
	for i := 0; i < 4; i++ {
		buf.Append(makeBatch(fmt.Sprintf("frame_%d", i)))
	}

	// Viewer A drains everything; viewer B must still see the start.
	var a uint64
	for {
		_, next, ok := buf.ReadNext(a)
		if !ok {
			break
		}
		a = next
	}

	batch, _, ok := buf.ReadNext(0)
	if !ok || batch.FrameID != "frame_0" {
		t.Errorf("second cursor read = (%q, %v), want (frame_0, true)", batch.FrameID, ok)
	}
}

func TestBuffer_retention_trims_oldest(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(makeBatch(fmt.Sprintf("frame_%d", i)))
	}

	if got := buf.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	// A cursor behind the retained window resumes at the oldest retained
	// batch without re-reading or going backwards.
	batch, next, ok := buf.ReadNext(0)
	if !ok {
		t.Fatal("ReadNext(0) should resume at oldest retained batch")
	}
	if batch.FrameID != "frame_2" {
		t.Errorf("resumed batch = %q, want frame_2", batch.FrameID)
	}
	if next != 3 {
		t.Errorf("next cursor = %d, want 3", next)
	}
}

func TestBuffer_cursor_monotonic_across_trim(t *testing.T) {
	buf := NewBuffer(2)
	var cursor uint64
	var prev uint64

	for i := 0; i < 20; i++ {
		buf.Append(makeBatch(fmt.Sprintf("frame_%d", i)))
		if i%3 == 0 {
			_, next, ok := buf.ReadNext(cursor)
			if ok {
				if next <= prev && prev != 0 {
					t.Fatalf("cursor went backwards: %d after %d", next, prev)
				}
				prev = next
				cursor = next
			}
		}
	}
}
