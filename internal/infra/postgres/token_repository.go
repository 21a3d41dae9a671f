package postgres

import (
	"context"
	"database/sql"
	"time"
)

const (
	tokensDDL = `CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		rate_limit INTEGER NOT NULL DEFAULT 60,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		comment TEXT
	);`
	tokensIndexDDL = `CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at);`
	selectTokens   = `SELECT token, rate_limit FROM tokens;`
)

const queryTimeout = 5 * time.Second

// TokenRepository loads API tokens and their rate limits.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, tokensDDL); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, tokensIndexDDL)
	return err
}

// LoadTokens creates the tokens table if needed and returns every token.
func (r *TokenRepository) LoadTokens(ctx context.Context) (map[string]int, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectTokens)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var token string
		var limit int
		if err := rows.Scan(&token, &limit); err != nil {
			return nil, err
		}
		out[token] = limit
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
