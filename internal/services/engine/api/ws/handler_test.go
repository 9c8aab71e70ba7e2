package ws

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/game"
	"github.com/louisbranch/rulecore/internal/services/engine/rules/duel"
	"github.com/louisbranch/rulecore/internal/services/engine/seat"
)

var testSetup = duel.Setup{
	Life: 3,
	Hands: [2][]duel.Card{
		{{Name: "bolt", Power: 2}, {Name: "spark", Power: 1}},
		{{Name: "shock", Power: 1}},
	},
}

type testServer struct {
	srv     *httptest.Server
	session *game.Session
}

func newTestServer(t *testing.T, maxTurns int, grants seat.Config, timeout time.Duration) testServer {
	t.Helper()
	session, err := game.New(context.Background(), game.Config{ID: "g1", Visibility: duel.Visibility}, duel.NewState(testSetup))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := session.Start(duel.Start(maxTurns)); err != nil {
		t.Fatalf("start: %v", err)
	}
	games := game.NewGames()
	if err := games.Add(session); err != nil {
		t.Fatalf("add game: %v", err)
	}
	enumerators := decision.NewEnumerators()
	if err := duel.RegisterEnumerators(enumerators); err != nil {
		t.Fatalf("enumerators: %v", err)
	}
	srv := httptest.NewServer(NewHandler(Config{
		Games:           games,
		Enumerators:     enumerators,
		Grants:          grants,
		Observer:        duel.ObserverFor,
		DecisionTimeout: timeout,
	}))
	t.Cleanup(srv.Close)
	return testServer{srv: srv, session: session}
}

func dial(t *testing.T, httpURL, path string, header http.Header) (*websocket.Conn, error) {
	t.Helper()
	cfg, err := websocket.NewConfig("ws"+strings.TrimPrefix(httpURL, "http")+path, httpURL)
	if err != nil {
		t.Fatalf("ws config: %v", err)
	}
	cfg.Header = header
	conn, err := websocket.DialConfig(cfg)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got frame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

// nextChoice skips packets until a choice frame arrives.
func nextChoice(t *testing.T, conn *websocket.Conn) (frame, choicePayload) {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Type != frameChoice {
			continue
		}
		var payload choicePayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			t.Fatalf("decode choice: %v", err)
		}
		return f, payload
	}
}

func answer(t *testing.T, conn *websocket.Conn, requestID string, index int) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame{Type: frameAnswer, RequestID: requestID, Payload: mustJSON(answerPayload{Index: index})}); err != nil {
		t.Fatalf("encode answer: %v", err)
	}
}

func runGame(t *testing.T, session *game.Session) <-chan any {
	t.Helper()
	results := make(chan any, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.WaitSeated(ctx, duel.PlayerOne); err != nil {
			results <- err
			return
		}
		res, err := session.Run(ctx)
		if err != nil {
			results <- err
			return
		}
		results <- res
	}()
	return results
}

func TestSeatAnswersChoicesByIndex(t *testing.T) {
	ts := newTestServer(t, 0, seat.Config{}, time.Second)
	release := ts.session.Seat(duel.PlayerTwo, decision.NewScripted(duel.Pass))
	defer release()

	conn, err := dial(t, ts.srv.URL, "/seat?game=g1&player=1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if joined := readFrame(t, conn); joined.Type != frameJoined {
		t.Fatalf("first frame = %s, want %s", joined.Type, frameJoined)
	}
	results := runGame(t, ts.session)

	f, play := nextChoice(t, conn)
	if play.Kind != duel.ChoicePlay || len(play.Candidates) != 3 || play.DefaultIndex != 0 {
		t.Fatalf("play choice = %+v", play)
	}
	answer(t, conn, f.RequestID, 1) // card 4
	f, target := nextChoice(t, conn)
	if target.Kind != duel.ChoiceTarget {
		t.Fatalf("choice = %s, want target", target.Kind)
	}
	answer(t, conn, f.RequestID, 0) // opponent

	f, _ = nextChoice(t, conn)
	answer(t, conn, f.RequestID, 1) // card 5
	f, _ = nextChoice(t, conn)
	answer(t, conn, f.RequestID, 0)

	select {
	case got := <-results:
		res, ok := got.(duel.Result)
		if !ok {
			t.Fatalf("game ended with %v", got)
		}
		if res.Winner != duel.PlayerOne {
			t.Fatalf("winner = %d, want player one", res.Winner)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("game did not finish")
	}
}

func TestSeatTimeoutUsesDefault(t *testing.T) {
	ts := newTestServer(t, 1, seat.Config{}, 20*time.Millisecond)
	conn, err := dial(t, ts.srv.URL, "/seat?game=g1&player=1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	results := runGame(t, ts.session)
	nextChoice(t, conn)

	select {
	case got := <-results:
		res, ok := got.(duel.Result)
		if !ok || res.Winner != 0 || res.Turns != 1 {
			t.Fatalf("result = %v, want draw after one turn", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("game did not finish")
	}
}

func TestSeatRejectsOutOfRangeIndex(t *testing.T) {
	ts := newTestServer(t, 1, seat.Config{}, time.Second)
	conn, err := dial(t, ts.srv.URL, "/seat?game=g1&player=1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	runGame(t, ts.session)
	f, _ := nextChoice(t, conn)
	answer(t, conn, f.RequestID, 9)
	for {
		got := readFrame(t, conn)
		if got.Type != frameError {
			continue
		}
		var payload errorPayload
		if err := json.Unmarshal(got.Payload, &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if payload.Code != "INVALID_ARGUMENT" || got.RequestID != f.RequestID {
			t.Fatalf("error = %+v for %q", payload, got.RequestID)
		}
		return
	}
}

func TestSeatRequiresGrantWhenConfigured(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	grants := seat.Config{Issuer: "lobby", Audience: "engine", Key: pub}
	ts := newTestServer(t, 0, grants, time.Second)

	if _, err := dial(t, ts.srv.URL, "/seat?game=g1&player=1", nil); err == nil {
		t.Fatal("expected dial without grant to fail")
	}

	token, err := seat.Signer{Issuer: "lobby", Audience: "engine", Key: priv}.Issue("g1", duel.PlayerTwo)
	if err != nil {
		t.Fatalf("issue grant: %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, err := dial(t, ts.srv.URL, "/seat?game=g1", header)
	if err != nil {
		t.Fatalf("dial with grant: %v", err)
	}
	joined := readFrame(t, conn)
	var payload joinedPayload
	if err := json.Unmarshal(joined.Payload, &payload); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if payload.Player != duel.PlayerTwo || payload.GameID != "g1" {
		t.Fatalf("joined = %+v, want player two in g1", payload)
	}
}

func TestSeatUnknownGame(t *testing.T) {
	ts := newTestServer(t, 0, seat.Config{}, time.Second)
	resp, err := http.Get(ts.srv.URL + "/seat?game=nope&player=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

var _ decision.DecisionMaker = (*remoteSeat)(nil)

func TestRemoteSeatWithoutEnumeratorOffersDefault(t *testing.T) {
	s := newRemoteSeat(newPeer(json.NewEncoder(new(strings.Builder))), nil, time.Second)
	got := s.candidates(nil, decision.Base{ChoiceKind: "any", ForPlayer: 1, DefaultAnswer: object.ID(7)})
	if len(got) != 1 || got[0] != object.ID(7) {
		t.Fatalf("candidates = %v, want [7]", got)
	}
}
