package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

// setSessionCookie issues the session cookie. Secure is set in production
// only, so the cookie still works over plain HTTP in development.
func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie overwrites the session cookie with an empty, already
// expired one.
func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken reads the token from the session cookie, falling back to an
// "Authorization: Bearer" header for non-browser clients.
func sessionToken(c *gin.Context) string {
	if v, err := c.Cookie(common.SessionCookieName); err == nil && v != "" {
		return v
	}

	header := c.GetHeader(common.AuthorizationHeaderName)
	if token, ok := strings.CutPrefix(header, common.BearerPrefix); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
