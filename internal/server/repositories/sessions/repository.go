// Package sessions declares the server-side repository contract for
// authenticated sessions and its PostgreSQL implementation.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, resolving and revoking sessions.
type Repository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// FindActive resolves token to its session and user, provided the session
	// has not expired at now. Unknown and expired tokens both yield
	// common.ErrorNotFound.
	FindActive(ctx context.Context, token string, now time.Time) (*models.SessionUser, error)

	// Touch records an access to the session at now.
	Touch(ctx context.Context, token string, now time.Time) error

	// Delete removes a session by its token. Deleting a non-existent
	// session is not an error.
	Delete(ctx context.Context, token string) error
}
