package sessions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const (
	insertQuery = `(?s)^\s*INSERT\s+INTO\s+auth_sessions\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s+ON\s+CONFLICT\s+\(session_token\)\s+DO\s+UPDATE\s+SET\s+session_token\s*=\s*EXCLUDED\.session_token\s+WHERE\s+auth_sessions\.user_id\s*=\s*EXCLUDED\.user_id\s*$`
	findQuery   = `(?s)^\s*SELECT\s+s\.session_token.*FROM\s+auth_sessions\s+s\s+JOIN\s+users\s+u\s+ON\s+u\.user_id\s*=\s*s\.user_id\s+WHERE\s+s\.session_token\s*=\s*\$1\s+AND\s+s\.expires_at\s*>\s*\$2\s*$`
	touchQuery  = `(?s)^\s*UPDATE\s+auth_sessions\s+SET\s+last_accessed_at\s*=\s*\$2\s+WHERE\s+session_token\s*=\s*\$1\s*$`
	deleteQuery = `(?s)^\s*DELETE\s+FROM\s+auth_sessions\s+WHERE\s+session_token\s*=\s*\$1\s*$`
)

var findColumns = []string{"session_token", "user_id", "expires_at", "last_accessed_at", "created_at", "email", "user_created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	a := dbx.NewAdapter(db, dbx.Options{DSN: "postgres://test", RetryBaseDelay: time.Millisecond}, logging.Discard())
	return NewPostgresRepository(a), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &models.Session{
		Token:          "tok123",
		UserID:         "u1",
		ExpiresAt:      now.Add(7 * 24 * time.Hour),
		LastAccessedAt: now,
		CreatedAt:      now,
	}

	mock.ExpectExec(insertQuery).
		WithArgs("tok123", "u1", s.ExpiresAt, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.Session{Token: "tok123", UserID: "u1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestCreate_RetryAfterLostCommitSucceeds(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s := &models.Session{Token: "tok123", UserID: "u1", ExpiresAt: now.Add(time.Hour), LastAccessedAt: now, CreatedAt: now}

	// first attempt committed but the connection dropped before the reply;
	// the retried insert finds its own row and matches it
	mock.ExpectExec(insertQuery).
		WithArgs("tok123", "u1", s.ExpiresAt, now, now).
		WillReturnError(syscall.ECONNRESET)
	mock.ExpectExec(insertQuery).
		WithArgs("tok123", "u1", s.ExpiresAt, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_TokenOwnedByAnotherUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &models.Session{Token: "tok123", UserID: "u2"})
	if !errors.Is(err, ErrTokenTaken) {
		t.Fatalf("want ErrTokenTaken, got %v", err)
	}
}

func TestFindActive_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	rows := sqlmock.NewRows(findColumns).
		AddRow("tok123", "u1", expires, now, now, "alice@example.com", now.Add(-time.Hour))

	mock.ExpectQuery(findQuery).
		WithArgs("tok123", now).
		WillReturnRows(rows)

	got, err := repo.FindActive(context.Background(), "tok123", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Session.UserID != "u1" || !got.Session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session: %+v", got.Session)
	}
	if got.User.ID != "u1" || got.User.Email != "alice@example.com" || got.User.PasswordHash != "" {
		t.Fatalf("unexpected user: %+v", got.User)
	}
}

func TestFindActive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(findQuery).
		WithArgs("expired", now).
		WillReturnRows(sqlmock.NewRows(findColumns))

	_, err := repo.FindActive(context.Background(), "expired", now)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindActive_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(findQuery).
		WillReturnError(errors.New("db err"))

	_, err := repo.FindActive(context.Background(), "tok123", time.Now())
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTouch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(touchQuery).
		WithArgs("tok123", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchQuery).
		WithArgs("tok123", now).
		WillReturnError(errors.New("db err"))

	if err := repo.Touch(context.Background(), "tok123", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Touch(context.Background(), "tok123", now); err == nil {
		t.Fatal("expected error")
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQuery).
		WithArgs("tok123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "tok123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQuery).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(deleteQuery).
		WithArgs("tok123").
		WillReturnError(errors.New("db err"))

	err := repo.Delete(context.Background(), "tok123")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
