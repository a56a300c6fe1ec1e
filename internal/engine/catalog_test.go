package engine

import (
	"testing"
	"time"
)

func TestCatalog_add_and_get(t *testing.T) {
	c := NewCatalog()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Add(RecordingMetadata{Filename: "client_12345_20260301_120000_ab12.avi", ClientID: "12345", StartTime: start})

	m, ok := c.Get("client_12345_20260301_120000_ab12.avi")
	if !ok {
		t.Fatal("Get returned false for known filename")
	}
	if m.ClientID != "12345" || !m.StartTime.Equal(start) {
		t.Errorf("entry = %+v", m)
	}
	if m.EndTime != nil {
		t.Error("EndTime should be nil while recording")
	}
	if m.Filesize != 0 {
		t.Errorf("Filesize = %d, want 0 until finalized", m.Filesize)
	}
}

func TestCatalog_finalize(t *testing.T) {
	c := NewCatalog()
	c.Add(RecordingMetadata{Filename: "a.avi", ClientID: "1"})

	end := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	c.Finalize("a.avi", end, 2048)

	m, _ := c.Get("a.avi")
	if m.EndTime == nil || !m.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", m.EndTime, end)
	}
	if m.Filesize != 2048 {
		t.Errorf("Filesize = %d, want 2048", m.Filesize)
	}
}

func TestCatalog_finalize_unknown_is_noop(t *testing.T) {
	c := NewCatalog()
	c.Finalize("ghost.avi", time.Now(), 1)
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCatalog_list_sorted_by_start_desc(t *testing.T) {
	c := NewCatalog()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Add(RecordingMetadata{Filename: "old.avi", StartTime: base})
	c.Add(RecordingMetadata{Filename: "new.avi", StartTime: base.Add(time.Hour)})
	c.Add(RecordingMetadata{Filename: "mid.avi", StartTime: base.Add(time.Minute)})

	list := c.List()
	want := []string{"new.avi", "mid.avi", "old.avi"}
	if len(list) != len(want) {
		t.Fatalf("List length = %d, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Filename != name {
			t.Errorf("List[%d] = %q, want %q", i, list[i].Filename, name)
		}
	}
}

func TestCatalog_get_unknown(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Get("missing.avi"); ok {
		t.Error("Get returned true for unknown filename")
	}
}

func TestCatalog_get_returns_copy(t *testing.T) {
	c := NewCatalog()
	c.Add(RecordingMetadata{Filename: "a.avi", Filesize: 0})

	m, _ := c.Get("a.avi")
	m.Filesize = 999

	again, _ := c.Get("a.avi")
	if again.Filesize != 0 {
		t.Error("mutating a returned entry leaked into the catalog")
	}
}
