// Package common contains shared constants and sentinel errors used across
// authkeeper components.
package common

// SessionCookieName is the cookie that carries the session token to browsers.
const SessionCookieName = "session_token"

// AuthorizationHeaderName carries "Bearer <token>" for non-browser clients.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the Authorization header.
const BearerPrefix = "Bearer "

// SessionTokenBytes is the amount of random data behind one session token.
// Hex encoding doubles it, so tokens are 64 characters long.
const SessionTokenBytes = 32
