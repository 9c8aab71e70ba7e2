package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/platform/id"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/search"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
)

const maxCreateBody = 1 << 16

// CreateRequest describes a new duel.
type CreateRequest struct {
	ID       string         `json:"id"`
	Names    [2]string      `json:"names"`
	Life     int            `json:"life"`
	Hands    [2][]duel.Card `json:"hands"`
	MaxTurns int            `json:"max_turns"`
	// AI lists the players seated with a search decision maker.
	AI []object.ID `json:"ai"`
}

// Lobby creates duel games and runs each one once its human seats are taken.
type Lobby struct {
	ctx         context.Context
	games       *game.Games
	history     history.Store
	enumerators *decision.Enumerators
	aiLimits    search.Limits

	wg sync.WaitGroup
}

// NewLobby creates a lobby. Games run until ctx ends.
func NewLobby(ctx context.Context, games *game.Games, store history.Store, enumerators *decision.Enumerators, aiLimits *search.Limits) *Lobby {
	limits := search.DefaultLimits()
	if aiLimits != nil {
		limits = aiLimits
	}
	return &Lobby{
		ctx:         ctx,
		games:       games,
		history:     store,
		enumerators: enumerators,
		aiLimits:    *limits,
	}
}

// Create hosts a new duel and starts waiting for its players.
func (l *Lobby) Create(ctx context.Context, req CreateRequest) (*game.Session, error) {
	if req.Life <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "life must be positive")
	}
	ai := make(map[object.ID]bool, len(req.AI))
	for _, player := range req.AI {
		if player != duel.PlayerOne && player != duel.PlayerTwo {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "unknown ai player", map[string]string{
				"player": fmt.Sprint(player),
			})
		}
		ai[player] = true
	}
	gameID := strings.TrimSpace(req.ID)
	if gameID == "" {
		generated, err := id.NewID()
		if err != nil {
			return nil, err
		}
		gameID = generated
	}

	setup := duel.Setup{Names: req.Names, Life: req.Life, Hands: req.Hands, MaxTurns: req.MaxTurns}
	session, err := game.New(ctx, game.Config{ID: gameID, Visibility: duel.Visibility, History: l.history}, duel.NewState(setup))
	if err != nil {
		return nil, err
	}
	if err := session.Start(duel.Start(req.MaxTurns)); err != nil {
		return nil, err
	}
	if err := l.games.Add(session); err != nil {
		return nil, err
	}

	var humans []object.ID
	for _, player := range []object.ID{duel.PlayerOne, duel.PlayerTwo} {
		if !ai[player] {
			humans = append(humans, player)
			continue
		}
		limits := l.aiLimits
		driver := search.NewDriver(l.enumerators, search.ScorerFunc(duel.LifeLead), &limits)
		session.Seat(player, search.AsDecisionMaker(driver))
	}

	l.wg.Add(1)
	go l.run(session, humans)
	log.Printf("lobby: created game %s (ai=%v)", gameID, req.AI)
	return session, nil
}

func (l *Lobby) run(session *game.Session, humans []object.ID) {
	defer l.wg.Done()
	if err := session.WaitSeated(l.ctx, humans...); err != nil {
		log.Printf("lobby: game %s abandoned: %v", session.ID(), err)
		return
	}
	res, err := session.Run(l.ctx)
	if err != nil {
		log.Printf("lobby: game %s stopped: %v", session.ID(), err)
		return
	}
	log.Printf("lobby: game %s finished: %+v", session.ID(), res)
}

// Wait blocks until every running game has returned.
func (l *Lobby) Wait() {
	l.wg.Wait()
}

type createResponse struct {
	GameID string `json:"game_id"`
}

type listResponse struct {
	Games []string `json:"games"`
}

// ServeHTTP serves POST /games to create a duel and GET /games to list them.
func (l *Lobby) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, listResponse{Games: l.games.IDs()})
	case http.MethodPost:
		var req CreateRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			http.Error(w, "invalid game request", http.StatusBadRequest)
			return
		}
		session, err := l.Create(r.Context(), req)
		if err != nil {
			switch apperrors.GetCode(err) {
			case apperrors.CodeInvalidArgument:
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				log.Printf("lobby: create game: %v", err)
				http.Error(w, "could not create game", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusCreated, createResponse{GameID: session.ID()})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("lobby: write response: %v", err)
	}
}
