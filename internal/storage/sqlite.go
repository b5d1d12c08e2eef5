// Package storage implements the durable settings store on SQLite.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/prefsets/internal/kv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store is a kv.Store backed by a SQLite database. String sets are stored
// natively, one row per member.
type Store struct {
	kv.Broadcaster

	db *sql.DB
}

var _ kv.Store = (*Store)(nil)

// Open opens (or creates) the database name.db in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir, name string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if name == "" {
			return nil, errors.New("empty store name")
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, name+".db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	// An in-memory database also lives only as long as its connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SupportsStringSets is always true: sets live in entry_set_members.
func (s *Store) SupportsStringSets() bool { return true }

func (s *Store) Get(key string) (kv.Value, bool, error) {
	var kind, raw string
	err := s.db.QueryRow(`SELECT kind, value FROM entries WHERE key = ?`, key).Scan(&kind, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Value{}, false, nil
	}
	if err != nil {
		return kv.Value{}, false, fmt.Errorf("reading %q: %w", key, err)
	}

	v, err := s.decode(key, kind, raw)
	if err != nil {
		return kv.Value{}, false, err
	}
	return v, true, nil
}

func (s *Store) decode(key, kindName, raw string) (kv.Value, error) {
	kind, err := kv.ParseKind(kindName)
	if err != nil {
		return kv.Value{}, fmt.Errorf("entry %q: %w", key, err)
	}
	if kind != kv.KindStringSet {
		v, err := kv.ParseValue(kind, raw)
		if err != nil {
			return kv.Value{}, fmt.Errorf("entry %q: %w", key, err)
		}
		return v, nil
	}
	members, err := s.members(key)
	if err != nil {
		return kv.Value{}, err
	}
	return kv.StringSet(members), nil
}

func (s *Store) members(key string) ([]string, error) {
	rows, err := s.db.Query(`SELECT member FROM entry_set_members WHERE key = ? ORDER BY member`, key)
	if err != nil {
		return nil, fmt.Errorf("reading members of %q: %w", key, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) All() (map[string]kv.Value, error) {
	rows, err := s.db.Query(`SELECT key, kind, value FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	type row struct{ key, kind, value string }
	var list []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.kind, &r.value); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Members are read after the cursor is closed: the pool has one connection.
	out := make(map[string]kv.Value, len(list))
	for _, r := range list {
		v, err := s.decode(r.key, r.kind, r.value)
		if err != nil {
			return nil, err
		}
		out[r.key] = v
	}
	return out, nil
}

// Commit applies cs in one transaction, then notifies subscribers of every
// mutated key, and of every key a clear removed.
func (s *Store) Commit(cs kv.ChangeSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning commit: %w", err)
	}

	var cleared []string
	if cs.Clear {
		if cleared, err = existingKeys(tx); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
			tx.Rollback()
			return fmt.Errorf("clearing entries: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	keys := cs.Keys()
	for _, key := range keys {
		if err := commitOne(tx, key, cs.Mutations[key], now); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	s.Notify(cs.Touched(cleared)...)
	return nil
}

func existingKeys(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query(`SELECT key FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func commitOne(tx *sql.Tx, key string, m kv.Mutation, now string) error {
	if m.Delete {
		if _, err := tx.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("deleting %q: %w", key, err)
		}
		return nil
	}

	value := m.Value.Format()
	if m.Value.Kind == kv.KindStringSet {
		value = ""
	}
	if _, err := tx.Exec(`
		INSERT INTO entries (key, kind, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value, updated_at = excluded.updated_at`,
		key, m.Value.Kind.String(), value, now,
	); err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}

	if _, err := tx.Exec(`DELETE FROM entry_set_members WHERE key = ?`, key); err != nil {
		return fmt.Errorf("resetting members of %q: %w", key, err)
	}
	if m.Value.Kind != kv.KindStringSet {
		return nil
	}
	for _, member := range kv.NormalizeSet(m.Value.Set) {
		if _, err := tx.Exec(`INSERT INTO entry_set_members (key, member) VALUES (?, ?)`, key, member); err != nil {
			return fmt.Errorf("writing member of %q: %w", key, err)
		}
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (s *Store) UpdatedAt(key string) (time.Time, error) {
	var raw string
	err := s.db.QueryRow(`SELECT updated_at FROM entries WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

// Stats summarises the store for status output.
type Stats struct {
	Entries    int
	SetMembers int
	LastUpdate time.Time
}

// Stats counts the stored entries.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	var last sql.NullString
	if err := s.db.QueryRow(`SELECT COUNT(*), MAX(updated_at) FROM entries`).Scan(&st.Entries, &last); err != nil {
		return Stats{}, fmt.Errorf("counting entries: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entry_set_members`).Scan(&st.SetMembers); err != nil {
		return Stats{}, fmt.Errorf("counting set members: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(time.RFC3339, last.String)
		if err != nil {
			return Stats{}, fmt.Errorf("parsing updated_at: %w", err)
		}
		st.LastUpdate = t
	}
	return st, nil
}
