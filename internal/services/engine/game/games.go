package game

import (
	"fmt"
	"slices"
	"sync"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
)

// Games indexes live sessions by id.
type Games struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewGames creates an empty index.
func NewGames() *Games {
	return &Games{sessions: make(map[string]*Session)}
}

// Add registers s. Ids must be unique.
func (g *Games) Add(s *Session) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[s.ID()]; exists {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "game already exists", map[string]string{"game": s.ID()})
	}
	g.sessions[s.ID()] = s
	return nil
}

// Get returns the session for id.
func (g *Games) Get(id string) (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "game not found", map[string]string{"game": id})
	}
	return s, nil
}

// Remove forgets id.
func (g *Games) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return false
	}
	delete(g.sessions, id)
	return true
}

// IDs lists registered game ids in sorted order.
func (g *Games) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
