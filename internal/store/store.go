package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
)

// Well-known settings keys.
const (
	KeyTenantID          = "tenant_id"
	KeyClientID          = "client_id"
	KeyAPIKey            = "api_key"
	KeyToken             = "token"
	KeyUser              = "user"
	KeyHeartbeatInterval = "heartbeat_interval"
	KeyEnvironment       = "environment"
	KeyAutoRegister      = "auto_register"
)

var ErrTokenMissing = errors.New("no token stored")

// Store is the agent's persistent settings: a single key/value table in a
// per-user SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init settings schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// GetOr returns the stored value or the fallback when the key is absent.
func (s *Store) GetOr(key, fallback string) string {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return fallback
	}
	return value
}

func (s *Store) GetBool(key string, fallback bool) bool {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

// TokenExpiry parses the stored JWT without verifying its signature (the
// backend owns verification) and reports its expiry.
func (s *Store) TokenExpiry() (time.Time, error) {
	token, ok, err := s.Get(KeyToken)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || token == "" {
		return time.Time{}, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return exp.Time, nil
}

// TokenExpired reports whether the stored token is past its expiry. A
// missing or unparsable token counts as expired.
func (s *Store) TokenExpired(now time.Time) bool {
	exp, err := s.TokenExpiry()
	if err != nil {
		return true
	}
	return exp.Before(now)
}
