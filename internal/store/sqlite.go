package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists users and progress in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs
// migrations. The parent directory is created if it doesn't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// migrate creates the users and user_progress tables if they don't exist.
// AUTOINCREMENT keeps ids monotonic: a deleted user's id is never handed out
// again.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		pin TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_progress (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		content_key TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		correct_attempts INTEGER NOT NULL DEFAULT 0,
		total_attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at DATETIME,
		UNIQUE(user_id, content_key),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_user_progress_user_id ON user_progress(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateUser inserts a new account and returns its server-assigned id.
func (s *SQLiteStore) CreateUser(name, pin string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(
		`INSERT INTO users (name, pin, points, is_active, created_at, updated_at) VALUES (?, ?, 0, 1, ?, ?)`,
		name, pin, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return int(id), nil
}

// VerifyPIN checks a user id / PIN pair. It reports ok=false for both an
// unknown id and a wrong PIN so callers cannot tell which field was wrong.
func (s *SQLiteStore) VerifyPIN(userID int, pin string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name, storedPIN string
	err := s.db.QueryRow(`SELECT name, pin FROM users WHERE id = ? AND is_active = 1`, userID).Scan(&name, &storedPIN)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select user: %w", err)
	}
	if storedPIN != pin {
		return "", false, nil
	}
	return name, true, nil
}

// GetUser returns the account row for userID, or ErrNotFound.
func (s *SQLiteStore) GetUser(userID int) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u User
	var createdAt, updatedAt string
	var isActive int
	err := s.db.QueryRow(
		`SELECT id, name, pin, points, is_active, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.Name, &u.PIN, &u.Points, &isActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.IsActive = isActive != 0
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// UpdateUser applies the non-nil fields of upd to the account.
func (s *SQLiteStore) UpdateUser(userID int, upd UserUpdate) (*User, error) {
	s.mu.Lock()
	if upd.Name == nil && upd.PIN == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("no fields to update")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var res sql.Result
	var err error
	switch {
	case upd.Name != nil && upd.PIN != nil:
		res, err = s.db.Exec(`UPDATE users SET name = ?, pin = ?, updated_at = ? WHERE id = ?`, *upd.Name, *upd.PIN, now, userID)
	case upd.Name != nil:
		res, err = s.db.Exec(`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`, *upd.Name, now, userID)
	default:
		res, err = s.db.Exec(`UPDATE users SET pin = ?, updated_at = ? WHERE id = ?`, *upd.PIN, now, userID)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("update user: %w", err)
	}
	n, _ := res.RowsAffected()
	s.mu.Unlock()
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.GetUser(userID)
}

// RecordProgress upserts one attempt on contentKey for the user. A correct
// attempt on not-yet-completed content marks it completed and awards points.
func (s *SQLiteStore) RecordProgress(userID int, contentKey string, correct bool, points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check user: %w", err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	correctInc := 0
	if correct {
		correctInc = 1
	}
	_, err := s.db.Exec(`
	INSERT INTO user_progress (user_id, content_key, completed, correct_attempts, total_attempts, last_attempt_at)
	VALUES (?, ?, ?, ?, 1, ?)
	ON CONFLICT(user_id, content_key) DO UPDATE SET
		completed = MAX(completed, excluded.completed),
		correct_attempts = correct_attempts + excluded.correct_attempts,
		total_attempts = total_attempts + 1,
		last_attempt_at = excluded.last_attempt_at
	`, userID, contentKey, correctInc, correctInc, now)
	if err != nil {
		return 0, fmt.Errorf("upsert progress: %w", err)
	}

	if correct {
		if _, err := s.db.Exec(`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?`, points, now, userID); err != nil {
			return 0, fmt.Errorf("award points: %w", err)
		}
	}

	var total int
	if err := s.db.QueryRow(`SELECT points FROM users WHERE id = ?`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("read points: %w", err)
	}
	return total, nil
}

// ProgressFor lists the user's per-content progress rows.
func (s *SQLiteStore) ProgressFor(userID int) ([]Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT content_key, completed, correct_attempts, total_attempts, COALESCE(last_attempt_at, '') FROM user_progress WHERE user_id = ? ORDER BY content_key`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		var completed int
		var last string
		if err := rows.Scan(&p.ContentKey, &completed, &p.CorrectAttempts, &p.TotalAttempts, &last); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.Completed = completed != 0
		if last != "" {
			p.LastAttemptAt = parseTime(last)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
