// Package ws serves the seat endpoint: a websocket over which a remote
// client answers one player's choices and watches that player's view.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/rulecore/internal/platform/errors"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/seat"
)

const (
	maxDecodeErrorsPerConn = 3
	packetBuffer           = 64
	defaultDecisionTimeout = 30 * time.Second
)

// Config wires the seat endpoint.
type Config struct {
	Games       *game.Games
	Enumerators *decision.Enumerators
	// Grants verifies seat grants. When disabled, the player query parameter
	// is trusted; use that only for local play.
	Grants seat.Config
	// Observer names the replication observer for a seated player. Nil
	// disables packet streaming.
	Observer        func(player object.ID) replication.Observer
	DecisionTimeout time.Duration
}

type seatContextKey struct{}

type seatIdentity struct {
	session *game.Session
	player  object.ID
}

// NewHandler returns the seat routes.
func NewHandler(cfg Config) http.Handler {
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = defaultDecisionTimeout
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, cfg)
	})

	mux.HandleFunc("/seat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if cfg.Games == nil {
			http.Error(w, "no games are hosted", http.StatusServiceUnavailable)
			return
		}
		gameID := strings.TrimSpace(r.URL.Query().Get("game"))
		session, err := cfg.Games.Get(gameID)
		if err != nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		player, err := authenticate(r, gameID, cfg.Grants)
		if err != nil {
			log.Printf("seat: unauthorized game=%q remote=%s err=%v", gameID, r.RemoteAddr, err)
			http.Error(w, "seat grant required", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), seatContextKey{}, seatIdentity{session: session, player: player})
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
	return mux
}

func authenticate(r *http.Request, gameID string, grants seat.Config) (object.ID, error) {
	if !grants.Enabled() {
		n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("player")))
		if err != nil || n <= 0 {
			return 0, apperrors.New(apperrors.CodeInvalidArgument, "player is required")
		}
		return object.ID(n), nil
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("grant"))
	}
	claims, err := seat.Validate(token, gameID, grants)
	if err != nil {
		return 0, err
	}
	return claims.Player, nil
}

func handleConn(conn *websocket.Conn, cfg Config) {
	defer func() {
		_ = conn.Close()
	}()
	identity, ok := conn.Request().Context().Value(seatContextKey{}).(seatIdentity)
	if !ok {
		return
	}
	p := newPeer(json.NewEncoder(conn))
	remote := newRemoteSeat(p, cfg.Enumerators, cfg.DecisionTimeout)
	defer remote.close()

	release := identity.session.Seat(identity.player, remote)
	defer release()

	_ = p.writeFrame(frame{Type: frameJoined, Payload: mustJSON(joinedPayload{
		GameID: identity.session.ID(),
		Player: identity.player,
	})})

	if cfg.Observer != nil {
		observer := cfg.Observer(identity.player)
		stop := streamPackets(identity.session, observer, p)
		defer stop()
	}

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var in frame
		if err := decoder.Decode(&in); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = p.writeError("", apperrors.CodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		switch in.Type {
		case frameAnswer:
			var payload answerPayload
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				_ = p.writeError(in.RequestID, apperrors.CodeInvalidArgument, "invalid answer payload")
				continue
			}
			if err := remote.resolve(in.RequestID, payload.Index); err != nil {
				_ = p.writeError(in.RequestID, apperrors.GetCode(err), err.Error())
			}
		default:
			_ = p.writeError(in.RequestID, apperrors.CodeInvalidArgument, "unsupported frame type")
		}
	}
}

// streamPackets joins the session as observer and forwards packets to p from
// a separate goroutine. Sinks run under the session lock and must not block,
// so a full buffer drops the observer.
func streamPackets(session *game.Session, observer replication.Observer, p *peer) (stop func()) {
	packets := make(chan []byte, packetBuffer)
	done := make(chan struct{})
	sink := replication.SinkFunc(func(pkt replication.Packet) error {
		data, err := replication.MarshalPacket(session.Registry(), pkt)
		if err != nil {
			return err
		}
		select {
		case packets <- data:
			return nil
		default:
			return errors.New("packet buffer full")
		}
	})
	if err := session.Join(observer, sink); err != nil {
		log.Printf("seat: join %s as %s: %v", session.ID(), observer, err)
		return func() {}
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case data := <-packets:
				if err := p.writeFrame(frame{Type: framePacket, Payload: data}); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		session.Leave(observer)
	}
}
