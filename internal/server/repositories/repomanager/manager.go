package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a Querier: the adapter for
// single statements, or the handle of a running transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(q dbx.Querier) users.Repository
	Sessions(q dbx.Querier) sessions.Repository
}
