// Package history keeps the ordered, capacity-bounded list of previously
// used custom instructions. Entries are deduplicated by exact content; a
// reused entry moves to the most-recent position with a fresh timestamp.
package history

import (
	"strings"
	"sync"
	"time"

	"video-chapters/internal/domain"
)

const (
	// MinCapacity and MaxCapacity bound the configurable history size.
	MinCapacity = 1
	MaxCapacity = 50

	// DefaultCapacity is used when no limit has been persisted.
	DefaultCapacity = 10

	previewLength = 100
)

// Store is a bounded dedup list of instruction entries, oldest first.
// All operations are total; invalid inputs degrade to no-ops.
type Store struct {
	mu       sync.Mutex
	capacity int
	entries  []domain.InstructionEntry
	now      func() time.Time
}

// NewStore builds a store from persisted entries, clamping capacity and
// trimming oldest entries that exceed it.
func NewStore(capacity int, entries []domain.InstructionEntry) *Store {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: ClampCapacity(capacity),
		now:      time.Now,
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		if entry.Preview == "" {
			entry.Preview = makePreview(entry.Content)
		}
		s.entries = append(s.entries, entry)
	}
	s.trim()
	return s
}

// ClampCapacity forces a capacity into the supported range.
func ClampCapacity(n int) int {
	if n < MinCapacity {
		return MinCapacity
	}
	if n > MaxCapacity {
		return MaxCapacity
	}
	return n
}

// Add appends content as the most recent entry. Blank content is ignored;
// identical existing content is promoted instead of duplicated.
func (s *Store) Add(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.entries {
		if entry.Content == content {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}

	s.entries = append(s.entries, domain.InstructionEntry{
		Content:   content,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Preview:   makePreview(content),
	})
	s.trim()
}

// SetCapacity changes the bound, trimming oldest entries immediately.
func (s *Store) SetCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = ClampCapacity(n)
	s.trim()
}

// Capacity returns the current bound.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// DeleteAt removes the entry at the given position; out-of-range indexes
// are ignored.
func (s *Store) DeleteAt(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
}

// Entries returns a copy of the stored entries, oldest first. Callers that
// display newest-first reverse at the presentation layer.
func (s *Store) Entries() []domain.InstructionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.InstructionEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// trim drops oldest entries beyond capacity. Callers hold the lock.
func (s *Store) trim() {
	if len(s.entries) > s.capacity {
		keep := s.entries[len(s.entries)-s.capacity:]
		s.entries = append([]domain.InstructionEntry(nil), keep...)
	}
}

// makePreview returns the first 100 characters with an ellipsis marker.
func makePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
