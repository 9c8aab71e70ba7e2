package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
)

var (
	// ErrGameIDRequired indicates a missing game id.
	ErrGameIDRequired = errors.New("game id is required")
	// ErrStoreRequired indicates a missing history store.
	ErrStoreRequired = errors.New("history store is required")
	// ErrRegistryRequired indicates a missing command registry.
	ErrRegistryRequired = errors.New("command registry is required")
)

// Entry is one committed top-level operation of a game.
type Entry struct {
	GameID     string           `json:"game_id"`
	Seq        uint64           `json:"seq"`
	Kind       string           `json:"kind"`
	Command    command.Envelope `json:"command"`
	Hash       string           `json:"hash"`
	PrevHash   string           `json:"prev_hash"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// Store persists entries per game. Append must reject a sequence number that
// already exists for the game.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// List returns up to limit entries with Seq > afterSeq in ascending order.
	List(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]Entry, error)
	// Last returns the newest entry, or false when the game has none.
	Last(ctx context.Context, gameID string) (Entry, bool, error)
}

// hashEnvelope fixes field order for hashing.
type hashEnvelope struct {
	GameID   string          `json:"game_id"`
	Seq      uint64          `json:"seq"`
	Kind     string          `json:"kind"`
	Command  string          `json:"command"`
	Payload  json.RawMessage `json:"payload"`
	PrevHash string          `json:"prev_hash"`
	Recorded int64           `json:"recorded_at"`
}

// ComputeHash returns the chain hash of e. The Hash field itself is ignored.
func ComputeHash(e Entry) (string, error) {
	payload := e.Command.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, err := json.Marshal(hashEnvelope{
		GameID:   e.GameID,
		Seq:      e.Seq,
		Kind:     e.Kind,
		Command:  string(e.Command.Kind),
		Payload:  payload,
		PrevHash: e.PrevHash,
		Recorded: e.RecordedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal hash envelope: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
