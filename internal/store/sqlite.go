// Package store persists the contact roster and the reply-index snapshot in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"checkinbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.RecordStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		name                 TEXT,
		phone                TEXT,
		last_delivery_status TEXT,
		last_reply_body      TEXT,
		last_reply_at        DATETIME,
		created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone);

	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ListAll returns the full roster in id order. The deterministic order is
// what makes index-collision behavior (last record wins) reproducible.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, last_delivery_status, last_reply_body, last_reply_at, created_at, updated_at
		 FROM contacts ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, last_delivery_status, last_reply_body, last_reply_at, created_at, updated_at
		 FROM contacts WHERE id = ?`, id,
	)
	c, err := scanContact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) Add(ctx context.Context, c domain.Contact) (int64, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, phone, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.Phone, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// updatableColumns whitelists the columns UpdateFields may touch.
var updatableColumns = map[string]bool{
	domain.FieldName:           true,
	domain.FieldPhone:          true,
	domain.FieldDeliveryStatus: true,
	domain.FieldReplyBody:      true,
	domain.FieldReplyAt:        true,
}

// UpdateFields applies a narrow per-row update so concurrent edits to other
// columns are never clobbered. All fields land in one statement.
func (s *SQLiteStore) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !updatableColumns[col] {
			return fmt.Errorf("column not updatable: %s", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
		args = append(args, fields[col])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contact %d not found", id)
	}
	return nil
}

// GetKV reads a key-value slot. Returns (nil, nil) when the key is absent.
func (s *SQLiteStore) GetKV(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutKV replaces a key-value slot in one statement, so readers see either
// the old or the new value, never a partial write.
func (s *SQLiteStore) PutKV(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanContact(scan func(...any) error) (domain.Contact, error) {
	var c domain.Contact
	var name, phone, status, body sql.NullString
	var replyAt sql.NullTime
	err := scan(&c.ID, &name, &phone, &status, &body, &replyAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.Name = name.String
	c.Phone = phone.String
	c.LastDeliveryStatus = status.String
	c.LastReplyBody = body.String
	if replyAt.Valid {
		c.LastReplyAt = &replyAt.Time
	}
	return c, nil
}
