package history

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/journal"
)

// Recorder appends committed journal operations to a Store. Register it on a
// journal with Journal.Register.
//
// Listener callbacks cannot fail, so the first append error is kept in Err
// and nothing is recorded after it.
type Recorder struct {
	store    Store
	registry *command.Registry
	gameID   string
	now      func() time.Time

	mu       sync.Mutex
	seq      uint64
	lastHash string
	kind     journal.Kind
	pending  []command.Command
	err      error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder that continues the chain already stored for
// gameID.
func NewRecorder(ctx context.Context, store Store, registry *command.Registry, gameID string, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if gameID == "" {
		return nil, ErrGameIDRequired
	}
	r := &Recorder{
		store:    store,
		registry: registry,
		gameID:   gameID,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	last, ok, err := store.Last(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if ok {
		r.seq = last.Seq
		r.lastHash = last.Hash
	}
	return r, nil
}

// Err returns the first recording failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Seq returns the sequence number of the last recorded entry.
func (r *Recorder) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Record appends one committed operation.
func (r *Recorder) Record(ctx context.Context, kind journal.Kind, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(ctx, kind, cmd)
}

func (r *Recorder) record(ctx context.Context, kind journal.Kind, cmd command.Command) error {
	if r.err != nil {
		return r.err
	}
	env, err := r.registry.Encode(cmd)
	if err != nil {
		r.err = err
		return err
	}
	entry := Entry{
		GameID:     r.gameID,
		Seq:        r.seq + 1,
		Kind:       string(kind),
		Command:    env,
		PrevHash:   r.lastHash,
		RecordedAt: r.now().UTC().Truncate(time.Millisecond),
	}
	entry.Hash, err = ComputeHash(entry)
	if err != nil {
		r.err = err
		return err
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.err = err
		return err
	}
	r.seq = entry.Seq
	r.lastHash = entry.Hash
	return nil
}

// BeginTransaction implements journal.Listener.
func (r *Recorder) BeginTransaction(kind journal.Kind) {
	r.mu.Lock()
	r.kind = kind
	r.pending = r.pending[:0]
	r.mu.Unlock()
}

// Synchronize implements journal.Listener.
func (r *Recorder) Synchronize(cmd command.Command) {
	r.mu.Lock()
	r.pending = append(r.pending, cmd)
	r.mu.Unlock()
}

// EndCurrentTransaction implements journal.Listener.
func (r *Recorder) EndCurrentTransaction(rolledBack bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pending
	r.pending = nil
	if rolledBack || len(pending) == 0 {
		return
	}
	var cmd command.Command = pending[0]
	if len(pending) > 1 {
		cmd = &command.Multi{Commands: pending}
	}
	_ = r.record(context.Background(), r.kind, cmd)
}

func formatSeq(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}
