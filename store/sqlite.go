package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amglabs/companion/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			ispremium INTEGER NOT NULL DEFAULT 0,
			nickname TEXT NOT NULL DEFAULT '',
			favorite_mood TEXT NOT NULL DEFAULT 'normal',
			relationship_level REAL NOT NULL DEFAULT 0,
			trust_score REAL NOT NULL DEFAULT 0,
			subscription_ref TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			turn_id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			role TEXT NOT NULL,
			message TEXT NOT NULL,
			blocked INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_email, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetUser retrieves a user record by email.
func (s *SQLiteStore) GetUser(ctx context.Context, email string) (*domain.EntitlementRecord, error) {
	var rec domain.EntitlementRecord
	var premium int
	err := s.db.QueryRowContext(ctx,
		`SELECT email, ispremium, nickname, favorite_mood, relationship_level, trust_score, subscription_ref, updated_at
		 FROM users WHERE email = ?`,
		email).Scan(&rec.Email, &premium, &rec.Nickname, &rec.FavoriteMood,
		&rec.RelationshipLevel, &rec.TrustScore, &rec.SubscriptionRef, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.IsPremium = premium != 0
	return &rec, nil
}

// UpsertUser writes a full user record, creating it if missing.
func (s *SQLiteStore) UpsertUser(ctx context.Context, rec *domain.EntitlementRecord) error {
	premium := 0
	if rec.IsPremium {
		premium = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, ispremium, nickname, favorite_mood, relationship_level, trust_score, subscription_ref, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			ispremium = excluded.ispremium,
			nickname = excluded.nickname,
			favorite_mood = excluded.favorite_mood,
			relationship_level = excluded.relationship_level,
			trust_score = excluded.trust_score,
			subscription_ref = excluded.subscription_ref,
			updated_at = excluded.updated_at`,
		rec.Email, premium, rec.Nickname, string(rec.FavoriteMood),
		rec.RelationshipLevel, rec.TrustScore, rec.SubscriptionRef, time.Now())
	return err
}

// CreateTurn appends a single chat turn.
func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *domain.ChatTurn) error {
	blocked := 0
	if turn.Blocked {
		blocked = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (turn_id, user_email, role, message, blocked, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.Email, string(turn.Role), turn.Text, blocked, turn.CreatedAt)
	return err
}

// AppendExchange persists a user/companion pair in one transaction so an
// exchange is never half-written.
func (s *SQLiteStore) AppendExchange(ctx context.Context, userTurn, companionTurn *domain.ChatTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, turn := range []*domain.ChatTurn{userTurn, companionTurn} {
		blocked := 0
		if turn.Blocked {
			blocked = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (turn_id, user_email, role, message, blocked, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			turn.TurnID, turn.Email, string(turn.Role), turn.Text, blocked, turn.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTurns retrieves chat turns for an identity, oldest first. History
// written by other code paths may not alternate roles; no ordering beyond
// created_at is assumed.
func (s *SQLiteStore) GetTurns(ctx context.Context, email string, limit int) ([]domain.ChatTurn, error) {
	query := `SELECT turn_id, user_email, role, message, blocked, created_at FROM messages WHERE user_email = ? ORDER BY created_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.ChatTurn
	for rows.Next() {
		var turn domain.ChatTurn
		var blocked int
		if err := rows.Scan(&turn.TurnID, &turn.Email, &turn.Role, &turn.Text, &blocked, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turn.Blocked = blocked != 0
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
