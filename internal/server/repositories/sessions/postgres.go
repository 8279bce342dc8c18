package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// ErrTokenTaken means the token already identifies another user's session.
var ErrTokenTaken = errors.New("session token already in use")

// PostgresRepository implements Repository over a dbx.Querier, so it works
// the same on the adapter and inside a transaction.
type PostgresRepository struct {
	db dbx.Querier
}

// NewPostgresRepository constructs a repository bound to the given Querier.
func NewPostgresRepository(db dbx.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s. The insert is idempotent for the same token and user, so
// a retry after a commit whose acknowledgement was lost succeeds instead of
// tripping over its own row. A token already held by another user yields
// ErrTokenTaken.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO auth_sessions (session_token, user_id, expires_at, last_accessed_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_token) DO UPDATE SET session_token = EXCLUDED.session_token
		WHERE auth_sessions.user_id = EXCLUDED.user_id
	`
	res, err := r.db.Exec(ctx, query, s.Token, s.UserID, s.ExpiresAt, s.LastAccessedAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.RowCount == 0 {
		return ErrTokenTaken
	}
	return nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, token string, now time.Time) (*models.SessionUser, error) {
	query := `
		SELECT s.session_token, s.user_id, s.expires_at, s.last_accessed_at, s.created_at,
		       u.email, u.created_at AS user_created_at
		FROM auth_sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_token = $1 AND s.expires_at > $2
	`
	row, err := r.db.QueryOne(ctx, query, token, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if row == nil {
		return nil, common.ErrorNotFound
	}

	userID := row.String("user_id")
	return &models.SessionUser{
		Session: models.Session{
			Token:          row.String("session_token"),
			UserID:         userID,
			ExpiresAt:      row.Time("expires_at"),
			LastAccessedAt: row.Time("last_accessed_at"),
			CreatedAt:      row.Time("created_at"),
		},
		User: models.User{
			ID:        userID,
			Email:     row.String("email"),
			CreatedAt: row.Time("user_created_at"),
		},
	}, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, token string, now time.Time) error {
	query := `
		UPDATE auth_sessions SET last_accessed_at = $2
		WHERE session_token = $1
	`
	if _, err := r.db.Exec(ctx, query, token, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM auth_sessions
		WHERE session_token = $1
	`
	if _, err := r.db.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
