package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthService is the business logic behind the auth routes.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*models.User, error)
}

// EventRecorder counts auth outcomes.
type EventRecorder interface {
	AuthEvent(operation, outcome string)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	SessionToken string       `json:"session_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Stable client-facing messages. Internal error text is never sent.
const (
	msgMissingFields      = "email and password are required"
	msgUserExists         = "user already exists"
	msgInvalidCredentials = "invalid credentials"
	msgNoSession          = "no session"
	msgInvalidSession     = "invalid session"
	msgInternal           = "internal server error"
)

// Handler serves /auth/register, /auth/login, /auth/logout and /auth/me.
type Handler struct {
	auth          AuthService
	logger        logging.Logger
	events        EventRecorder
	secureCookies bool
}

func NewHandler(auth AuthService, logger logging.Logger, events EventRecorder, secureCookies bool) *Handler {
	return &Handler{
		auth:          auth,
		logger:        logger.With("module", "http_auth"),
		events:        events,
		secureCookies: secureCookies,
	}
}

// RegisterRoutes mounts the auth routes on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/register", h.Register)
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/logout", h.Logout)
	rg.GET("/auth/me", h.Me)
}

func (h *Handler) Register(c *gin.Context) {
	h.issue(c, "register", h.auth.Register)
}

func (h *Handler) Login(c *gin.Context) {
	h.issue(c, "login", h.auth.Login)
}

// issue runs a credentials flow that ends with a new session.
func (h *Handler) issue(c *gin.Context, op string, flow func(ctx context.Context, email, password string) (*services.AuthResult, error)) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, op, common.ErrValidation)
		return
	}

	res, err := flow(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, op, err)
		return
	}

	setSessionCookie(c.Writer, res.Session.Token, res.Session.ExpiresAt, h.secureCookies)
	h.record(op, metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, authResponse{
		User:         userResponse{UserID: res.User.ID, Email: res.User.Email},
		SessionToken: res.Session.Token,
	})
}

// Logout always clears the cookie, even when deleting the session fails.
func (h *Handler) Logout(c *gin.Context) {
	token := sessionToken(c)
	clearSessionCookie(c.Writer, h.secureCookies)

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		h.fail(c, "logout", err)
		return
	}

	h.record("logout", metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), sessionToken(c))
	if err != nil {
		h.fail(c, "me", err)
		return
	}

	h.record("me", metrics.OutcomeSuccess)
	c.JSON(http.StatusOK, userResponse{UserID: user.ID, Email: user.Email})
}

// fail is the single place where errors become status codes.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, msg := statusFor(err)

	if status >= http.StatusInternalServerError {
		h.record(op, metrics.OutcomeError)
		h.logger.Error(c.Request.Context(), "auth request failed",
			"operation", op,
			"request_id", c.GetString(requestIDKey),
			"error", err,
		)
	} else {
		h.record(op, metrics.OutcomeFailure)
	}

	c.JSON(status, errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, msgMissingFields
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, msgUserExists
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, common.ErrNoSession):
		return http.StatusUnauthorized, msgNoSession
	case errors.Is(err, common.ErrInvalidSession):
		return http.StatusUnauthorized, msgInvalidSession
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (h *Handler) record(op, outcome string) {
	if h.events != nil {
		h.events.AuthEvent(op, outcome)
	}
}
