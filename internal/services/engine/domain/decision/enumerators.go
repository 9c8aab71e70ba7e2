package decision

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Enumerator lists the candidate answers of one choice in a stable order.
type Enumerator func(view View, choice Choice) []any

// Enumerators maps choice kinds to enumerators. It is built at startup and
// handed to the components that need it.
type Enumerators struct {
	mu     sync.RWMutex
	byKind map[Kind]Enumerator
}

// NewEnumerators creates an empty table.
func NewEnumerators() *Enumerators {
	return &Enumerators{byKind: make(map[Kind]Enumerator)}
}

// Register adds an enumerator for kind.
func (e *Enumerators) Register(kind Kind, fn Enumerator) error {
	if e == nil {
		return errors.New("enumerators is required")
	}
	kind = Kind(strings.TrimSpace(string(kind)))
	if kind == "" {
		return errors.New("choice kind is required")
	}
	if fn == nil {
		return fmt.Errorf("enumerator for %s is required", kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byKind == nil {
		e.byKind = make(map[Kind]Enumerator)
	}
	if _, exists := e.byKind[kind]; exists {
		return fmt.Errorf("choice kind already registered: %s", kind)
	}
	e.byKind[kind] = fn
	return nil
}

// Enumerate lists candidates for choice. ok is false when its kind has no
// registered enumerator.
func (e *Enumerators) Enumerate(view View, choice Choice) (candidates []any, ok bool) {
	if e == nil || choice == nil {
		return nil, false
	}
	e.mu.RLock()
	fn, ok := e.byKind[choice.Kind()]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(view, choice), true
}
