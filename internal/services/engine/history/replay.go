package history

import (
	"context"
	"errors"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/otel"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
)

const defaultPageSize = 256

// ErrManagerRequired indicates a missing target replica.
var ErrManagerRequired = errors.New("object manager is required")

// Options bounds a replay.
type Options struct {
	// UntilSeq stops after this entry. Zero replays everything.
	UntilSeq uint64
	// PageSize is the store read batch. Zero uses a default.
	PageSize int
}

// Result summarizes a replay or verification.
type Result struct {
	Applied  int
	LastSeq  uint64
	LastHash string
}

// Replay verifies the stored chain for gameID and applies each entry to m in
// order. Nothing past the first broken entry is applied.
func Replay(ctx context.Context, store Store, registry *command.Registry, gameID string, m *object.Manager, opts Options) (Result, error) {
	if registry == nil {
		return Result{}, ErrRegistryRequired
	}
	if m == nil {
		return Result{}, ErrManagerRequired
	}
	return walk(ctx, "history.Replay", store, gameID, opts, func(e Entry) error {
		cmd, err := registry.Decode(e.Command)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidArgument, "decode history entry", err)
		}
		cmd.Execute(m)
		return nil
	})
}

// Verify checks the stored chain for gameID without applying it.
func Verify(ctx context.Context, store Store, gameID string) (Result, error) {
	return walk(ctx, "history.Verify", store, gameID, Options{}, nil)
}

func walk(ctx context.Context, spanName string, store Store, gameID string, opts Options, apply func(Entry) error) (res Result, err error) {
	if store == nil {
		return Result{}, ErrStoreRequired
	}
	if gameID == "" {
		return Result{}, ErrGameIDRequired
	}
	ctx, span := otel.Tracer().Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("history.game_id", gameID))
	defer func() {
		span.SetAttributes(attribute.Int64("history.last_seq", int64(res.LastSeq)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
	}()

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := store.List(ctx, gameID, res.LastSeq, pageSize)
		if err != nil {
			return res, err
		}
		for _, e := range page {
			if opts.UntilSeq > 0 && e.Seq > opts.UntilSeq {
				return res, nil
			}
			if err := check(gameID, res, e); err != nil {
				return res, err
			}
			if apply != nil {
				if err := apply(e); err != nil {
					return res, err
				}
			}
			res.Applied++
			res.LastSeq = e.Seq
			res.LastHash = e.Hash
		}
		if len(page) < pageSize {
			return res, nil
		}
	}
}

func check(gameID string, prev Result, e Entry) error {
	if want := prev.LastSeq + 1; e.Seq != want {
		return SequenceGap(gameID, want, e.Seq)
	}
	if e.PrevHash != prev.LastHash {
		return chainBroken(gameID, e.Seq, "previous hash does not match")
	}
	hash, err := ComputeHash(e)
	if err != nil {
		return err
	}
	if hash != e.Hash {
		return chainBroken(gameID, e.Seq, "entry hash does not match content")
	}
	return nil
}

func chainBroken(gameID string, seq uint64, message string) error {
	return apperrors.WithMetadata(apperrors.CodeHistoryChainBroken, message, map[string]string{
		"game": gameID,
		"seq":  formatSeq(seq),
	})
}
