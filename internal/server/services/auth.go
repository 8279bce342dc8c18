// Package services contains server-side business logic. This file implements
// AuthService, which registers users, checks credentials and issues,
// resolves and revokes opaque session tokens.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// dummyPassword is hashed once at startup. Login compares against that hash
// when the email is unknown so both failure paths cost one bcrypt run.
const dummyPassword = "authkeeper-timing-equalizer"

// AuthResult is what a successful register or login hands back: the
// account and the session just issued for it.
type AuthResult struct {
	User    models.User
	Session models.Session
}

// AuthService provides authentication operations:
//   - Register: create a user and a first session
//   - Login: verify credentials and issue a session
//   - Logout: revoke a session
//   - Me: resolve a session token to its user
type AuthService struct {
	db          dbx.Access
	repomanager repomanager.RepositoryManager
	logger      logging.Logger

	sessionTTL time.Duration
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

// NewAuthService constructs an AuthService over the given data access and
// repositories using session and hashing settings from cfg.
func NewAuthService(db dbx.Access, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) (*AuthService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "auth"),
		sessionTTL:  cfg.SessionTTL,
		bcryptCost:  cfg.BcryptCost,
		dummyHash:   dummy,
		now:         time.Now,
	}, nil
}

// Register creates a user and its first session in one transaction.
// A taken email yields common.ErrorAlreadyExists; blank input yields
// common.ErrValidation.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := tracing.Start(ctx, "auth.register", attribute.String("layer", "service"))
	defer span.End()

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	res, err := dbx.InTransaction(ctx, s.db, func(ctx context.Context, q dbx.Querier) (*AuthResult, error) {
		usersRepo := s.repomanager.Users(q)

		_, err := usersRepo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return nil, common.ErrorAlreadyExists
		case !errors.Is(err, common.ErrorNotFound):
			return nil, fmt.Errorf("error checking email: %w", err)
		}

		user, err := usersRepo.Create(ctx, &models.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
		})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return nil, err
			}
			return nil, fmt.Errorf("error creating user: %w", err)
		}

		session, err := s.issueSession(ctx, q, user.ID)
		if err != nil {
			return nil, err
		}
		return &AuthResult{User: *user, Session: *session}, nil
	})
	if err != nil {
		if !errors.Is(err, common.ErrorAlreadyExists) {
			tracing.Fail(span, err)
		}
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user.id", res.User.ID),
		attribute.Bool("registration.success", true),
	)
	s.logger.Info(ctx, "user registered", "user_id", res.User.ID)
	return res, nil
}

// Login checks email and password and issues a new session. Unknown email
// and wrong password both yield common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := tracing.Start(ctx, "auth.login", attribute.String("layer", "service"))
	defer span.End()

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			tracing.Fail(span, err)
			return nil, fmt.Errorf("error searching user: %w", err)
		}
		s.comparePassword(s.dummyHash, password)
		span.SetAttributes(attribute.Bool("auth.success", false))
		return nil, common.ErrorUnauthorized
	}

	if !s.comparePassword([]byte(user.PasswordHash), password) {
		span.SetAttributes(attribute.Bool("auth.success", false))
		return nil, common.ErrorUnauthorized
	}

	session, err := s.issueSession(ctx, s.db, user.ID)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	return &AuthResult{User: *user, Session: *session}, nil
}

// Logout revokes the session behind token. An empty or unknown token is not
// an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, span := tracing.Start(ctx, "auth.logout", attribute.String("layer", "service"))
	defer span.End()

	if token == "" {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, token); err != nil {
		tracing.Fail(span, err)
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

// Me resolves token to its user. A missing token yields common.ErrNoSession,
// an unknown or expired one common.ErrInvalidSession. The session's
// last-access time is refreshed on a best-effort basis.
func (s *AuthService) Me(ctx context.Context, token string) (*models.User, error) {
	ctx, span := tracing.Start(ctx, "auth.me", attribute.String("layer", "service"))
	defer span.End()

	if token == "" {
		return nil, common.ErrNoSession
	}

	now := s.now()
	repo := s.repomanager.Sessions(s.db)

	su, err := repo.FindActive(ctx, token, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidSession
		}
		tracing.Fail(span, err)
		return nil, fmt.Errorf("error searching session: %w", err)
	}

	if err := repo.Touch(dbx.SingleAttempt(ctx), token, now); err != nil {
		s.logger.Warn(ctx, "failed to update session access time", "user_id", su.User.ID, "error", err)
	}

	span.SetAttributes(attribute.String("user.id", su.User.ID))
	return &su.User, nil
}

// --- helpers below ---

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	hash, err := bcrypt.GenerateFromPassword(pw, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) comparePassword(hash []byte, password string) bool {
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	return bcrypt.CompareHashAndPassword(hash, pw) == nil
}

func (s *AuthService) issueSession(ctx context.Context, q dbx.Querier, userID string) (*models.Session, error) {
	token, err := common.MakeRandHexString(common.SessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("error generating session token: %w", err)
	}

	now := s.now()
	session := &models.Session{
		Token:          token,
		UserID:         userID,
		ExpiresAt:      now.Add(s.sessionTTL),
		LastAccessedAt: now,
		CreatedAt:      now,
	}
	if err := s.repomanager.Sessions(q).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return session, nil
}
