package history

import (
	"context"
	"sync"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

// Append implements Store. Entries must arrive in sequence.
func (m *Memory) Append(_ context.Context, entry Entry) error {
	if entry.GameID == "" {
		return ErrGameIDRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[entry.GameID]
	if want := uint64(len(entries)) + 1; entry.Seq != want {
		return SequenceGap(entry.GameID, want, entry.Seq)
	}
	m.entries[entry.GameID] = append(entries, entry)
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, gameID string, afterSeq uint64, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entries[gameID]
	if afterSeq >= uint64(len(entries)) {
		return nil, nil
	}
	tail := entries[afterSeq:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Entry, len(tail))
	copy(out, tail)
	return out, nil
}

// Last implements Store.
func (m *Memory) Last(_ context.Context, gameID string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entries[gameID]
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// SequenceGap reports an entry whose sequence number does not follow its
// predecessor.
func SequenceGap(gameID string, want, got uint64) error {
	return apperrors.WithMetadata(apperrors.CodeHistorySequenceGap, "history sequence gap", map[string]string{
		"game":     gameID,
		"expected": formatSeq(want),
		"actual":   formatSeq(got),
	})
}
