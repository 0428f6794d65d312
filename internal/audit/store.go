// Package audit persists an append-only record of rename plans and their
// outcomes in a local sqlite database.
package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"resym/internal/plan"
)

const driverName = "sqlite"

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("audit path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("audit path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode and a
	// rename run concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db %q: %w", cleanPath, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audit schema %q: %w", cleanPath, err)
	}
	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Entry is one recorded plan.
type Entry struct {
	PlanID    string
	OldName   string
	NewName   string
	State     string
	CreatedAt time.Time
	Edits     int
	Warnings  int
	Conflicts int
	Files     []string
}

// Record stores a plan after planning or application. The same plan may
// be recorded again with a later state; both rows are kept.
func (s *Store) Record(p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := json.Marshal(p.Files())
	if err != nil {
		return fmt.Errorf("encode plan files: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO plans (plan_id, old_name, new_name, state, created_at_utc, edit_count, warning_count, conflict_count, files_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OldName, p.NewName, string(p.State),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		len(p.Edits), len(p.Warnings), len(p.Conflicts), string(files))
	if err != nil {
		return fmt.Errorf("record plan %s: %w", p.ID, err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
SELECT plan_id, old_name, new_name, state, created_at_utc, edit_count, warning_count, conflict_count, files_json
FROM plans ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created, files string
		if err := rows.Scan(&e.PlanID, &e.OldName, &e.NewName, &e.State, &created, &e.Edits, &e.Warnings, &e.Conflicts, &files); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if ts, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			e.CreatedAt = ts
		}
		if files != "" {
			_ = json.Unmarshal([]byte(files), &e.Files)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
