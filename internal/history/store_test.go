package history

import (
	"strings"
	"testing"
	"time"

	"video-chapters/internal/domain"
)

// newTestStore builds a store with a controllable clock.
func newTestStore(capacity int) (*Store, *time.Time) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(capacity, nil)
	s.now = func() time.Time { return now }
	return s, &now
}

// TestAddAppendsOldestFirst checks insertion order.
func TestAddAppendsOldestFirst(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add("first")
	s.Add("second")

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Content != "first" || entries[1].Content != "second" {
		t.Fatalf("order = %v", entries)
	}
}

// TestAddIgnoresBlankContent checks trim-empty no-op behavior.
func TestAddIgnoresBlankContent(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add("   \n\t ")
	if len(s.Entries()) != 0 {
		t.Fatal("blank content should not be stored")
	}
}

// TestAddDeduplicatesAndPromotes checks reuse moves an entry to the end
// with a refreshed timestamp.
func TestAddDeduplicatesAndPromotes(t *testing.T) {
	s, now := newTestStore(10)
	s.Add("a")
	s.Add("b")

	*now = now.Add(time.Hour)
	s.Add("a")

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Content != "b" || entries[1].Content != "a" {
		t.Fatalf("order = %v, want [b a]", entries)
	}
	if entries[1].Timestamp != now.Format(time.RFC3339) {
		t.Fatalf("timestamp = %q, want refreshed", entries[1].Timestamp)
	}
}

// TestAddEvictsOldestBeyondCapacity checks front eviction.
func TestAddEvictsOldestBeyondCapacity(t *testing.T) {
	s, _ := newTestStore(2)
	s.Add("a")
	s.Add("b")
	s.Add("c")

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Content != "b" || entries[1].Content != "c" {
		t.Fatalf("entries = %v, want [b c]", entries)
	}
}

// TestSetCapacityTrimsImmediately checks shrink keeps the most recent.
func TestSetCapacityTrimsImmediately(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add("a")
	s.Add("b")
	s.Add("c")

	s.SetCapacity(1)
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Content != "c" {
		t.Fatalf("entries = %v, want [c]", entries)
	}
}

// TestSetCapacityClampsRange checks the [1,50] bounds.
func TestSetCapacityClampsRange(t *testing.T) {
	s, _ := newTestStore(10)
	s.SetCapacity(-3)
	if s.Capacity() != MinCapacity {
		t.Fatalf("capacity = %d, want %d", s.Capacity(), MinCapacity)
	}
	s.SetCapacity(500)
	if s.Capacity() != MaxCapacity {
		t.Fatalf("capacity = %d, want %d", s.Capacity(), MaxCapacity)
	}
}

// TestDeleteAtIgnoresOutOfRange checks range-checked no-op deletes.
func TestDeleteAtIgnoresOutOfRange(t *testing.T) {
	s, _ := newTestStore(10)
	s.Add("a")
	s.Add("b")

	s.DeleteAt(-1)
	s.DeleteAt(5)
	if len(s.Entries()) != 2 {
		t.Fatal("out-of-range delete should be a no-op")
	}

	s.DeleteAt(0)
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Content != "b" {
		t.Fatalf("entries = %v, want [b]", entries)
	}
}

// TestPreviewTruncation checks the 100-char preview with ellipsis.
func TestPreviewTruncation(t *testing.T) {
	s, _ := newTestStore(10)
	long := strings.Repeat("x", 150)
	s.Add(long)
	s.Add("short")

	entries := s.Entries()
	if entries[0].Preview != strings.Repeat("x", 100)+"..." {
		t.Fatalf("preview = %q", entries[0].Preview)
	}
	if entries[1].Preview != "short" {
		t.Fatalf("short preview = %q", entries[1].Preview)
	}
}

// TestNewStoreDropsMalformedEntriesAndTrims checks persisted-data loading.
func TestNewStoreDropsMalformedEntriesAndTrims(t *testing.T) {
	persisted := []domain.InstructionEntry{
		{Content: ""},
		{Content: "old", Timestamp: "2026-01-01T00:00:00Z"},
		{Content: "newer", Timestamp: "2026-02-01T00:00:00Z"},
	}

	s := NewStore(1, persisted)
	entries := s.Entries()
	if len(entries) != 1 || entries[0].Content != "newer" {
		t.Fatalf("entries = %v, want [newer]", entries)
	}
}

// TestNewStoreDefaultsCapacity checks the unpersisted-limit default.
func TestNewStoreDefaultsCapacity(t *testing.T) {
	s := NewStore(0, nil)
	if s.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", s.Capacity(), DefaultCapacity)
	}
}
