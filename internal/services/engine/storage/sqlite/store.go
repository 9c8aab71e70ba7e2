package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/rulecore/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/history"
	"github.com/louisbranch/rulecore/internal/services/engine/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed history.Store.
type Store struct {
	sqlDB *sql.DB
}

var _ history.Store = (*Store)(nil)

// Open opens the history database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.HistoryFS, "history"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database. It is nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append implements history.Store. The entry must follow the newest stored
// entry of its game.
func (s *Store) Append(ctx context.Context, entry history.Entry) error {
	if entry.GameID == "" {
		return history.ErrGameIDRequired
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM history_entries WHERE game_id = ?", entry.GameID,
	).Scan(&last); err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}
	if want := uint64(last.Int64) + 1; entry.Seq != want {
		return history.SequenceGap(entry.GameID, want, entry.Seq)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO history_entries (game_id, seq, kind, command_kind, payload, hash, prev_hash, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.GameID,
		int64(entry.Seq),
		entry.Kind,
		string(entry.Command.Kind),
		[]byte(entry.Command.Payload),
		entry.Hash,
		entry.PrevHash,
		toMillis(entry.RecordedAt),
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]history.Entry, error) {
	query := `
SELECT game_id, seq, kind, command_kind, payload, hash, prev_hash, recorded_at
FROM history_entries
WHERE game_id = ? AND seq > ?
ORDER BY seq`
	args := []any{gameID, int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history entries: %w", err)
	}
	return entries, nil
}

// Last implements history.Store.
func (s *Store) Last(ctx context.Context, gameID string) (history.Entry, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT game_id, seq, kind, command_kind, payload, hash, prev_hash, recorded_at
FROM history_entries
WHERE game_id = ?
ORDER BY seq DESC
LIMIT 1`, gameID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Entry{}, false, nil
	}
	if err != nil {
		return history.Entry{}, false, err
	}
	return entry, true, nil
}

// GameIDs lists every game with recorded history.
func (s *Store) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT DISTINCT game_id FROM history_entries ORDER BY game_id")
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (history.Entry, error) {
	var (
		entry       history.Entry
		seq         int64
		commandKind string
		payload     []byte
		recordedAt  int64
	)
	if err := row.Scan(
		&entry.GameID,
		&seq,
		&entry.Kind,
		&commandKind,
		&payload,
		&entry.Hash,
		&entry.PrevHash,
		&recordedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, err
		}
		return history.Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	entry.Seq = uint64(seq)
	entry.Command = command.Envelope{Kind: command.Kind(commandKind), Payload: payload}
	entry.RecordedAt = fromMillis(recordedAt)
	return entry, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
