// Package duel is a tiny two-player card game used to exercise the engine end
// to end. Each player starts with a life total and a private hand; on their
// turn a player may play one card at a target, dealing its power as damage.
package duel

import (
	"fmt"
	"slices"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/decision"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
)

// Object kinds.
const (
	KindGame   = "game"
	KindPlayer = "player"
	KindCard   = "card"
)

// Properties.
const (
	PropName   object.Property = "name"
	PropLife   object.Property = "life"
	PropTurn   object.Property = "turn"
	PropActive object.Property = "active"
	PropWinner object.Property = "winner"
	PropOwner  object.Property = "owner"
	PropZone   object.Property = "zone"
	PropPower  object.Property = "power"
)

// Zones.
const (
	ZoneHand      = "hand"
	ZoneGraveyard = "graveyard"
)

// Choice kinds.
const (
	ChoicePlay   decision.Kind = "play"
	ChoiceTarget decision.Kind = "target"
)

// Fixed ids. Cards are allocated after them.
const (
	PlayerOne object.ID = 1
	PlayerTwo object.ID = 2
	GameID    object.ID = 3
)

// Pass is the play answer that skips the turn.
const Pass object.ID = 0

// Card describes a card dealt at setup.
type Card struct {
	Name  string
	Power int
}

// Setup describes a new game.
type Setup struct {
	Names    [2]string
	Life     int
	Hands    [2][]Card
	MaxTurns int
}

// Result ends a game. Winner is zero for a draw.
type Result struct {
	Winner object.ID `json:"winner"`
	Turns  int       `json:"turns"`
}

// NewState builds the initial state for setup.
func NewState(setup Setup) *object.Manager {
	m := object.NewManager()
	for i, id := range []object.ID{PlayerOne, PlayerTwo} {
		name := setup.Names[i]
		if name == "" {
			name = fmt.Sprintf("player %d", id)
		}
		m.Insert(&object.Object{ID: id, Kind: KindPlayer, Props: map[object.Property]any{
			PropName: name,
			PropLife: setup.Life,
		}})
	}
	m.Insert(&object.Object{ID: GameID, Kind: KindGame, Props: map[object.Property]any{
		PropTurn:   0,
		PropActive: PlayerOne,
	}})
	for i, owner := range []object.ID{PlayerOne, PlayerTwo} {
		for _, card := range setup.Hands[i] {
			m.Insert(&object.Object{ID: m.NextID(), Kind: KindCard, Props: map[object.Property]any{
				PropName:  card.Name,
				PropPower: card.Power,
				PropOwner: owner,
				PropZone:  ZoneHand,
			}})
		}
	}
	return m
}

// Opponent returns the other player.
func Opponent(player object.ID) object.ID {
	if player == PlayerOne {
		return PlayerTwo
	}
	return PlayerOne
}

// Hand returns player's cards in hand in id order.
func Hand(m *object.Manager, player object.ID) []object.ID {
	var out []object.ID
	for _, id := range m.Find(KindCard) {
		obj, _ := m.Get(id)
		owner, _ := obj.Value(PropOwner)
		zone, _ := obj.Value(PropZone)
		if owner == player && zone == ZoneHand {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// ObserverFor names the replication observer seated as player.
func ObserverFor(player object.ID) replication.Observer {
	return replication.Observer(fmt.Sprintf("player-%d", player))
}

// Spectator is the observer that only sees public information.
const Spectator replication.Observer = "spectator"

// Visibility hides cards in hand from everyone but their owner.
var Visibility = replication.VisibilityFunc(func(obj *object.Object, observer replication.Observer) bool {
	if obj.Kind != KindCard {
		return true
	}
	if zone, _ := obj.Value(PropZone); zone != ZoneHand {
		return true
	}
	owner, _ := obj.Value(PropOwner)
	id, ok := owner.(object.ID)
	return ok && ObserverFor(id) == observer
})

// RegisterEnumerators adds the candidate lists for duel choices.
func RegisterEnumerators(e *decision.Enumerators) error {
	if err := e.Register(ChoicePlay, func(view decision.View, choice decision.Choice) []any {
		out := []any{Pass}
		for _, id := range Hand(view.Manager(), choice.Player()) {
			out = append(out, id)
		}
		return out
	}); err != nil {
		return err
	}
	return e.Register(ChoiceTarget, func(_ decision.View, choice decision.Choice) []any {
		return []any{Opponent(choice.Player()), choice.Player()}
	})
}

// LifeLead scores a position as the perspective player's life lead.
func LifeLead(m *object.Manager, perspective object.ID) float64 {
	return float64(m.Int(perspective, PropLife) - m.Int(Opponent(perspective), PropLife))
}
