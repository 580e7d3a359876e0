package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound          = errors.New("entry not found")
	ErrAlreadyConfigured = errors.New("entry already configured")
)

const (
	SourceUser   = "user"
	SourceImport = "import"
	SourceReauth = "reauth"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	entry_id   TEXT PRIMARY KEY,
	unique_id  TEXT NOT NULL UNIQUE,
	title      TEXT NOT NULL,
	host       TEXT NOT NULL,
	uuid       TEXT NOT NULL,
	local_uuid TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// Entry is one configured gateway.
type Entry struct {
	EntryID   string    `json:"entry_id"`
	UniqueID  string    `json:"unique_id"`
	Title     string    `json:"title"`
	Host      string    `json:"host"`
	UUID      string    `json:"uuid"`
	LocalUUID string    `json:"local_uuid"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

// Open opens (and creates) the sqlite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectEntries = `SELECT entry_id, unique_id, title, host, uuid, local_uuid, source, created_at FROM entries`

func scanEntry(row interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var created int64
	if err := row.Scan(&e.EntryID, &e.UniqueID, &e.Title, &e.Host, &e.UUID, &e.LocalUUID, &e.Source, &created); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(created, 0)
	return e, nil
}

func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries+` ORDER BY created_at, entry_id`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) get(ctx context.Context, where string, arg string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntries+` WHERE `+where+` = ?`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading entry %v: %w", arg, err)
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, entryID string) (Entry, error) {
	return s.get(ctx, "entry_id", entryID)
}

func (s *Store) GetByUniqueID(ctx context.Context, uniqueID string) (Entry, error) {
	return s.get(ctx, "unique_id", uniqueID)
}

// Add stores a new entry. An empty EntryID is generated.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (entry_id, unique_id, title, host, uuid, local_uuid, source, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.UniqueID, e.Title, e.Host, e.UUID, e.LocalUUID, e.Source, e.CreatedAt.Unix(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return Entry{}, fmt.Errorf("%w: %v", ErrAlreadyConfigured, e.UniqueID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateHost(ctx context.Context, entryID string, host string) error {
	return s.update(ctx, entryID, `UPDATE entries SET host = ? WHERE entry_id = ?`, host)
}

func (s *Store) update(ctx context.Context, entryID string, query string, value string) error {
	res, err := s.db.ExecContext(ctx, query, value, entryID)
	if err != nil {
		return fmt.Errorf("updating entry %v: %w", entryID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, entryID)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE entry_id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("removing entry %v: %w", entryID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, entryID)
	}
	return nil
}

// UniqueIDs returns the unique ids of every stored entry.
func (s *Store) UniqueIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT unique_id FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("listing unique ids: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
