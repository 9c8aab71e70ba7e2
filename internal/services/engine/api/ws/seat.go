package ws

import (
	"context"
	"encoding/json"
	"log"
	"reflect"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
)

const (
	frameJoined = "seat.joined"
	frameChoice = "seat.choice"
	framePacket = "seat.packet"
	frameError  = "seat.error"
	frameAnswer = "seat.answer"
)

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type joinedPayload struct {
	GameID string    `json:"game_id"`
	Player object.ID `json:"player"`
}

type choicePayload struct {
	Kind         decision.Kind     `json:"kind"`
	Player       object.ID         `json:"player"`
	Candidates   []json.RawMessage `json:"candidates"`
	DefaultIndex int               `json:"default_index"`
	Deadline     time.Time         `json:"deadline"`
}

type answerPayload struct {
	Index int `json:"index"`
}

type errorPayload struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
}

type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newPeer(encoder *json.Encoder) *peer {
	return &peer{encoder: encoder}
}

func (p *peer) writeFrame(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(f)
}

func (p *peer) writeError(requestID string, code apperrors.Code, message string) error {
	return p.writeFrame(frame{
		Type:      frameError,
		RequestID: requestID,
		Payload:   mustJSON(errorPayload{Code: code, Message: message}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("seat: marshal frame payload: %v", err)
		return nil
	}
	return b
}

// remoteSeat is a decision maker that asks a websocket client. Clients answer
// with a candidate index; silence past the timeout, or a closed connection,
// yields the choice's default.
type remoteSeat struct {
	peer        *peer
	enumerators *decision.Enumerators
	timeout     time.Duration

	mu      sync.Mutex
	next    uint64
	pending map[string]*request
	closed  chan struct{}
	once    sync.Once
}

type request struct {
	candidates []any
	answers    chan int
}

func newRemoteSeat(p *peer, enumerators *decision.Enumerators, timeout time.Duration) *remoteSeat {
	return &remoteSeat{
		peer:        p,
		enumerators: enumerators,
		timeout:     timeout,
		pending:     make(map[string]*request),
		closed:      make(chan struct{}),
	}
}

// Decide implements decision.DecisionMaker.
func (s *remoteSeat) Decide(ctx context.Context, view decision.View, choice decision.Choice) (any, error) {
	candidates := s.candidates(view, choice)
	encoded := make([]json.RawMessage, len(candidates))
	for i, c := range candidates {
		encoded[i] = mustJSON(c)
	}
	defaultIndex := -1
	for i, c := range candidates {
		if reflect.DeepEqual(c, choice.Default()) {
			defaultIndex = i
			break
		}
	}

	req := &request{candidates: candidates, answers: make(chan int, 1)}
	s.mu.Lock()
	s.next++
	id := strconv.FormatUint(s.next, 10)
	s.pending[id] = req
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	if err := s.peer.writeFrame(frame{Type: frameChoice, RequestID: id, Payload: mustJSON(choicePayload{
		Kind:         choice.Kind(),
		Player:       choice.Player(),
		Candidates:   encoded,
		DefaultIndex: defaultIndex,
		Deadline:     time.Now().Add(s.timeout).UTC(),
	})}); err != nil {
		return choice.Default(), nil
	}

	select {
	case index := <-req.answers:
		return candidates[index], nil
	case <-timer.C:
		return choice.Default(), nil
	case <-s.closed:
		return choice.Default(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *remoteSeat) candidates(view decision.View, choice decision.Choice) []any {
	if s.enumerators != nil {
		if candidates, ok := s.enumerators.Enumerate(view, choice); ok && len(candidates) > 0 {
			return candidates
		}
	}
	return []any{choice.Default()}
}

// resolve delivers the client's answer to the waiting Decide.
func (s *remoteSeat) resolve(requestID string, index int) error {
	s.mu.Lock()
	req, ok := s.pending[requestID]
	s.mu.Unlock()
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "no choice is pending for this request", map[string]string{
			"request": requestID,
		})
	}
	if index < 0 || index >= len(req.candidates) {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "candidate index out of range", map[string]string{
			"index": strconv.Itoa(index),
		})
	}
	select {
	case req.answers <- index:
		return nil
	default:
		return apperrors.New(apperrors.CodeInvalidArgument, "choice already answered")
	}
}

func (s *remoteSeat) close() {
	s.once.Do(func() { close(s.closed) })
}
