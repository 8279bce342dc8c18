package services

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

// memStore is the shared state behind the fake repositories.
type memStore struct {
	mu       sync.Mutex
	users    map[string]models.User // by email
	sessions map[string]models.Session

	getUserErr       error
	createUserErr    error
	createSessionErr error
	findSessionErr   error
	touchErr         error
	deleteErr        error

	touchSingleAttempt []bool
}

func newMemStore() *memStore {
	return &memStore{users: map[string]models.User{}, sessions: map[string]models.Session{}}
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *memStore) session(token string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sessions[token]
	return v, ok
}

// fakeDB implements dbx.Access. Transaction snapshots the store and restores
// it when work fails, which is what a real rollback does.
type fakeDB struct {
	store *memStore

	transactions int
	rollbacks    int
}

var _ dbx.Access = (*fakeDB)(nil)

func (f *fakeDB) Query(context.Context, string, ...any) (*dbx.Result, error) { return &dbx.Result{}, nil }
func (f *fakeDB) QueryOne(context.Context, string, ...any) (dbx.Row, error)   { return nil, nil }
func (f *fakeDB) Exec(context.Context, string, ...any) (*dbx.Result, error)  { return &dbx.Result{}, nil }
func (f *fakeDB) BeginTransaction(context.Context) error                     { return nil }
func (f *fakeDB) CommitTransaction(context.Context) error                    { return nil }
func (f *fakeDB) RollbackTransaction(context.Context) error                  { return nil }
func (f *fakeDB) Close() error                                               { return nil }
func (f *fakeDB) HealthCheck(context.Context) bool                           { return true }

func (f *fakeDB) Transaction(ctx context.Context, work func(ctx context.Context, q dbx.Querier) error) error {
	f.transactions++

	f.store.mu.Lock()
	usersSnap := maps.Clone(f.store.users)
	sessionsSnap := maps.Clone(f.store.sessions)
	f.store.mu.Unlock()

	if err := work(ctx, f); err != nil {
		f.rollbacks++
		f.store.mu.Lock()
		f.store.users, f.store.sessions = usersSnap, sessionsSnap
		f.store.mu.Unlock()
		return err
	}
	return nil
}

type fakeUsersRepo struct{ store *memStore }

func (r *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUserErr != nil {
		return nil, s.createUserErr
	}
	if _, ok := s.users[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u.CreatedAt = time.Now()
	s.users[u.Email] = *u
	return u, nil
}

func (r *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	u, ok := s.users[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

type fakeSessionsRepo struct{ store *memStore }

func (r *fakeSessionsRepo) Create(ctx context.Context, sess *models.Session) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createSessionErr != nil {
		return s.createSessionErr
	}
	s.sessions[sess.Token] = *sess
	return nil
}

func (r *fakeSessionsRepo) FindActive(ctx context.Context, token string, now time.Time) (*models.SessionUser, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findSessionErr != nil {
		return nil, s.findSessionErr
	}
	sess, ok := s.sessions[token]
	if !ok || !sess.ActiveAt(now) {
		return nil, common.ErrorNotFound
	}
	for _, u := range s.users {
		if u.ID == sess.UserID {
			u.PasswordHash = ""
			return &models.SessionUser{Session: sess, User: u}, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeSessionsRepo) Touch(ctx context.Context, token string, now time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchSingleAttempt = append(s.touchSingleAttempt, dbx.IsSingleAttempt(ctx))
	if s.touchErr != nil {
		return s.touchErr
	}
	if sess, ok := s.sessions[token]; ok {
		sess.LastAccessedAt = now
		s.sessions[token] = sess
	}
	return nil
}

func (r *fakeSessionsRepo) Delete(ctx context.Context, token string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sessions, token)
	return nil
}

type fakeRepoManager struct{ store *memStore }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.Querier) users.Repository          { return &fakeUsersRepo{store: m.store} }
func (m *fakeRepoManager) Sessions(dbx.Querier) sessions.Repository    { return &fakeSessionsRepo{store: m.store} }

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
