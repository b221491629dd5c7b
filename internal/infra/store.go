// Package infra implements infrastructure concerns (storage, pasteboard,
// snapshots, process, registry).
package infra

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
)

// timeLayout is the stored timestamp format. Timestamps are TEXT and SQLite
// compares them lexicographically, so the fractional part must be fixed-width:
// RFC3339Nano strips trailing zeros, which would make ".5Z" sort after ".52Z"
// and a whole-second value sort after every fraction in that second. Nine
// zero-padded digits keep string order identical to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryStore implements domain.HistoryStore backed by a SQLite database,
// optionally encrypted with SQLCipher.
type HistoryStore struct {
	db         *sql.DB
	dbPath     string
	maxEntries int
	logger     *zap.Logger
}

// NewHistoryStore opens (or creates) the history database. A non-nil key is
// used as the SQLCipher passphrase via PRAGMA key; nil opens the database as
// plain SQLite. On open, any pre-existing duplicate-content rows are
// collapsed so the content-uniqueness invariant holds even after a crash or
// an upgrade from an older version.
func NewHistoryStore(dbPath string, maxEntries int, key []byte, logger *zap.Logger) (*HistoryStore, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be positive, got %d", maxEntries)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := dbPath
	if len(key) > 0 {
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
			dbPath, hex.EncodeToString(key))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer: every transaction serializes on one connection, so
	// the watcher loop and HTTP handlers never contend inside SQLite.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &HistoryStore{
		db:         db,
		dbPath:     dbPath,
		maxEntries: maxEntries,
		logger:     logger,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.healDuplicates(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to collapse duplicate entries: %w", err)
	}

	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *HistoryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_entries_content ON entries(content);
	`
	_, err := s.db.Exec(schema)
	return err
}

// healDuplicates removes all but the latest-inserted row per content group.
// Older versions could leave duplicate content behind after a crash mid-upsert.
func (s *HistoryStore) healDuplicates() error {
	res, err := s.db.Exec(`
		DELETE FROM entries WHERE rowid NOT IN (
			SELECT MAX(rowid) FROM entries GROUP BY content
		)`)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Warn("collapsed duplicate history entries", zap.Int64("removed", n))
	}
	return nil
}

// DatabasePath returns the database file path (used by the snapshot manager).
func (s *HistoryStore) DatabasePath() string {
	return s.dbPath
}

// Upsert inserts the entry or refreshes the timestamp of the existing
// same-content row, then enforces the capacity cap. Runs in one transaction
// so no partial eviction is ever observable.
func (s *HistoryStore) Upsert(ctx context.Context, entry *domain.Entry) (domain.UpsertResult, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	ts := entry.Timestamp.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM entries WHERE content = ?`, entry.Content).Scan(&existingID)
	switch {
	case err == nil:
		// Same content already live: refresh timestamp, keep the original id.
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET timestamp = ? WHERE id = ?`, ts, existingID); err != nil {
			return domain.UpsertResult{}, fmt.Errorf("refresh timestamp: %w", err)
		}
		entry.ID = existingID
		if err := tx.Commit(); err != nil {
			return domain.UpsertResult{}, err
		}
		return domain.UpsertResult{IsNew: false}, nil

	case err != sql.ErrNoRows:
		return domain.UpsertResult{}, fmt.Errorf("lookup content: %w", err)
	}

	if entry.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("generate id: %w", err)
		}
		entry.ID = id
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, content, type, timestamp) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Content, entry.Type, ts); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("insert entry: %w", err)
	}

	// Evict oldest rows beyond the cap.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entries WHERE id NOT IN (
			SELECT id FROM entries ORDER BY timestamp DESC LIMIT ?
		)`, s.maxEntries); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("evict entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, err
	}
	return domain.UpsertResult{IsNew: true}, nil
}

// Search returns matching entries, newest first.
func (s *HistoryStore) Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Entry, error) {
	where, args := buildPredicate(filter)

	query := `SELECT id, content, type, timestamp FROM entries` + where +
		` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}
	// Offset without Limit is a caller contract violation; the HTTP layer
	// rejects it, the store simply ignores the offset.

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of live entries.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// DeleteByID removes one entry. A missing id is a normal outcome, not an error.
func (s *HistoryStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll unconditionally empties the store.
func (s *HistoryStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("delete all entries: %w", err)
	}
	return nil
}

// DeleteMatching removes entries matching the filter. With a positive Limit
// it deletes the most recent matches (timestamp DESC), mirroring eviction
// order. Counts are taken inside the same transaction, so deleted+remaining
// is consistent under concurrent upserts.
func (s *HistoryStore) DeleteMatching(ctx context.Context, filter domain.SearchFilter) (domain.DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeleteResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var before int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&before); err != nil {
		return domain.DeleteResult{}, fmt.Errorf("count before: %w", err)
	}

	where, args := buildPredicate(filter)

	var del string
	if filter.Limit > 0 {
		del = `DELETE FROM entries WHERE id IN (
			SELECT id FROM entries` + where + ` ORDER BY timestamp DESC LIMIT ?)`
		args = append(args, filter.Limit)
	} else {
		del = `DELETE FROM entries` + where
	}

	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return domain.DeleteResult{}, fmt.Errorf("delete entries: %w", err)
	}

	var after int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&after); err != nil {
		return domain.DeleteResult{}, fmt.Errorf("count after: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.DeleteResult{}, err
	}

	return domain.DeleteResult{Deleted: before - after, Remaining: after}, nil
}

// Close releases the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// buildPredicate translates a SearchFilter into a WHERE clause shared by
// Search and DeleteMatching.
func buildPredicate(filter domain.SearchFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	switch strings.ToLower(filter.Type) {
	case "":
		// no type constraint
	case "url":
		clauses = append(clauses, `type LIKE '%url%'`)
	case "text", "textual":
		clauses = append(clauses, `(type LIKE '%text%' OR type LIKE '%rtf%')`)
	default:
		clauses = append(clauses, `type = ?`)
		args = append(args, filter.Type)
	}

	if filter.Query != "" {
		clauses = append(clauses, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(filter.Query)+"%")
	}
	if !filter.Start.IsZero() {
		clauses = append(clauses, `timestamp >= ?`)
		args = append(args, filter.Start.UTC().Format(timeLayout))
	}
	if !filter.End.IsZero() {
		clauses = append(clauses, `timestamp <= ?`)
		args = append(args, filter.End.UTC().Format(timeLayout))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// scanEntries reads query results into Entry values.
func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	entries := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		var tsStr string
		if err := rows.Scan(&e.ID, &e.Content, &e.Type, &tsStr); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			return nil, err
		}
		e.Timestamp = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// parseTimestamp tries the stored layout plus common fallbacks, so databases
// written by earlier versions still read back.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano, // covers timeLayout and variable-width fractions
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// generateID creates a random UUID-shaped entry id.
func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

// Ensure HistoryStore implements domain.HistoryStore.
var _ domain.HistoryStore = (*HistoryStore)(nil)
