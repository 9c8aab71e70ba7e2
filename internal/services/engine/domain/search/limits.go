package search

import (
	"encoding/json"
	"strings"
	"time"
)

// Limits bound one search.
type Limits struct {
	// Depth is the number of choices explored along a line, the root
	// included. Deeper positions are scored as they stand.
	Depth int `json:"depth"`
	// Candidates caps how many root candidates are explored. Zero means all.
	Candidates int `json:"candidates"`
	// Movetime caps wall time. Zero means none.
	Movetime time.Duration `json:"movetime"`
	// Threads is the number of parallel workers.
	Threads int `json:"threads"`
}

func (l Limits) String() string {
	builder := strings.Builder{}
	_ = json.NewEncoder(&builder).Encode(l)
	return strings.TrimSpace(builder.String())
}

// DefaultLimits explores every root candidate one choice deep on one thread.
func DefaultLimits() *Limits {
	return &Limits{Depth: 1, Threads: 1}
}

// SetDepth sets the search depth.
func (l *Limits) SetDepth(depth int) *Limits {
	l.Depth = max(depth, 1)
	return l
}

// SetCandidates caps the root candidates explored.
func (l *Limits) SetCandidates(n int) *Limits {
	l.Candidates = max(n, 0)
	return l
}

// SetMovetime caps wall time.
func (l *Limits) SetMovetime(d time.Duration) *Limits {
	l.Movetime = max(d, 0)
	return l
}

// SetThreads sets the number of parallel workers.
func (l *Limits) SetThreads(n int) *Limits {
	l.Threads = max(n, 1)
	return l
}
