package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/grpc/pagination"
	"github.com/louisbranch/rulecore/internal/platform/otel"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/sequencer"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
)

const (
	watchBuffer = 128

	defaultHistoryPageSize = 100
	maxHistoryPageSize     = 1000
)

var errWatchOverflow = errors.New("watch buffer full")

// Service implements ObserverServer over the hosted games.
type Service struct {
	games   *game.Games
	history history.Store
}

// NewService creates the observer service. store may be nil when history is
// not persisted.
func NewService(games *game.Games, store history.Store) *Service {
	return &Service{games: games, history: store}
}

type request struct {
	gameID   string
	observer replication.Observer
	afterSeq uint64
	pageSize int64
}

func parseRequest(in *structpb.Struct, needObserver bool) (request, error) {
	fields := in.GetFields()
	req := request{
		gameID:   fields["game_id"].GetStringValue(),
		observer: replication.Observer(fields["observer"].GetStringValue()),
		afterSeq: uint64(fields["after_seq"].GetNumberValue()),
		pageSize: int64(fields["page_size"].GetNumberValue()),
	}
	if req.gameID == "" {
		return request{}, status.Error(codes.InvalidArgument, "game_id is required")
	}
	if needObserver && req.observer == "" {
		return request{}, status.Error(codes.InvalidArgument, "observer is required")
	}
	return req, nil
}

func (s *Service) session(gameID string) (*game.Session, error) {
	if s.games == nil {
		return nil, status.Error(codes.Unavailable, "no games are hosted")
	}
	session, err := s.games.Get(gameID)
	if err != nil {
		return nil, apperrors.HandleError(err, apperrors.DefaultLocale)
	}
	return session, nil
}

// Snapshot returns the marshaled bootstrap packet for the requested observer.
func (s *Service) Snapshot(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	req, err := parseRequest(in, true)
	if err != nil {
		return nil, err
	}
	_, span := startSpan(ctx, "observer.Snapshot", req)
	defer span.End()

	session, err := s.session(req.gameID)
	if err != nil {
		return nil, spanError(span, err)
	}
	pkt, err := session.Snapshot(req.observer)
	if err != nil {
		return nil, spanError(span, apperrors.HandleError(err, apperrors.DefaultLocale))
	}
	data, err := replication.MarshalPacket(session.Registry(), pkt)
	if err != nil {
		return nil, spanError(span, status.Errorf(codes.Internal, "marshal snapshot: %v", err))
	}
	return wrapperspb.Bytes(data), nil
}

// VerifyResult is the JSON body of a Verify response.
type VerifyResult struct {
	GameID   string `json:"game_id"`
	Entries  int    `json:"entries"`
	LastSeq  uint64 `json:"last_seq"`
	LastHash string `json:"last_hash"`
}

// Verify walks the stored chain of a game and reports its head.
func (s *Service) Verify(ctx context.Context, in *structpb.Struct) (*wrapperspb.BytesValue, error) {
	req, err := parseRequest(in, false)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, status.Error(codes.FailedPrecondition, "history is not persisted")
	}
	res, err := history.Verify(ctx, s.history, req.gameID)
	if err != nil {
		return nil, apperrors.HandleError(err, apperrors.DefaultLocale)
	}
	data, err := json.Marshal(VerifyResult{GameID: req.gameID, Entries: res.Applied, LastSeq: res.LastSeq, LastHash: res.LastHash})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshal verify result: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// Watch attaches the requested observer and streams its packets until the
// game completes, the client leaves, or the observer falls behind.
func (s *Service) Watch(in *structpb.Struct, stream grpc.ServerStream) error {
	req, err := parseRequest(in, true)
	if err != nil {
		return err
	}
	ctx, span := startSpan(stream.Context(), "observer.Watch", req)
	defer span.End()

	session, err := s.session(req.gameID)
	if err != nil {
		return spanError(span, err)
	}

	packets := make(chan []byte, watchBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once
	sink := replication.SinkFunc(func(pkt replication.Packet) error {
		data, err := replication.MarshalPacket(session.Registry(), pkt)
		if err != nil {
			return err
		}
		select {
		case packets <- data:
			return nil
		default:
			overflowOnce.Do(func() { close(overflow) })
			return errWatchOverflow
		}
	})
	if err := session.Join(req.observer, sink); err != nil {
		if errors.Is(err, replication.ErrObserverAttached) {
			return spanError(span, status.Errorf(codes.AlreadyExists, "observer %s is already watching", req.observer))
		}
		return spanError(span, apperrors.HandleError(err, apperrors.DefaultLocale))
	}
	attached := true
	defer func() {
		if attached {
			session.Leave(req.observer)
		}
	}()

	send := func(data []byte) error {
		return stream.SendMsg(wrapperspb.Bytes(data))
	}
	drain := func() error {
		for {
			select {
			case data := <-packets:
				if err := send(data); err != nil {
					return err
				}
			default:
				return nil
			}
		}
	}

	for {
		changed := session.Changed()
		if err := drain(); err != nil {
			return err
		}
		st, _, err := session.State()
		switch {
		case err == nil && st == sequencer.StatusCompleted:
			return drain()
		case err != nil && !errors.Is(err, game.ErrNotStarted):
			attached = false
			if derr := drain(); derr != nil {
				return derr
			}
			return spanError(span, apperrors.HandleError(err, apperrors.DefaultLocale))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-overflow:
			attached = false
			log.Printf("observer: %s dropped from %s: %v", req.observer, req.gameID, errWatchOverflow)
			return spanError(span, status.Errorf(codes.ResourceExhausted, "observer %s fell behind and was detached", req.observer))
		case data := <-packets:
			if err := send(data); err != nil {
				return err
			}
		case <-changed:
		}
	}
}

// History streams stored entries with seq > after_seq, paging through the
// store.
func (s *Service) History(in *structpb.Struct, stream grpc.ServerStream) error {
	req, err := parseRequest(in, false)
	if err != nil {
		return err
	}
	if s.history == nil {
		return status.Error(codes.FailedPrecondition, "history is not persisted")
	}
	ctx, span := startSpan(stream.Context(), "observer.History", req)
	defer span.End()

	pageSize := pagination.ClampPageSize(req.pageSize, pagination.PageSizeConfig{
		Default: defaultHistoryPageSize,
		Max:     maxHistoryPageSize,
	})
	after := req.afterSeq
	for {
		page, err := s.history.List(ctx, req.gameID, after, pageSize)
		if err != nil {
			return spanError(span, apperrors.HandleError(err, apperrors.DefaultLocale))
		}
		for _, entry := range page {
			data, err := json.Marshal(entry)
			if err != nil {
				return spanError(span, status.Errorf(codes.Internal, "marshal entry %d: %v", entry.Seq, err))
			}
			if err := stream.SendMsg(wrapperspb.Bytes(data)); err != nil {
				return err
			}
			after = entry.Seq
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

func startSpan(ctx context.Context, name string, req request) (context.Context, trace.Span) {
	ctx, span := otel.Tracer().Start(ctx, name)
	span.SetAttributes(attribute.String("game.id", req.gameID))
	if req.observer != "" {
		span.SetAttributes(attribute.String("replication.observer", string(req.observer)))
	}
	return ctx, span
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, fmt.Sprint(err))
	return err
}
