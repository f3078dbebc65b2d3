// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
)

type authContextKey string

// ownerIDKey is the context key the authenticated owner ID is stored under.
const ownerIDKey authContextKey = "owner_id"

const tokenIssuer = "herald"

// Authenticator mints and verifies owner-scoped bearer tokens. Upstream
// services authenticate with the admin credentials and receive a JWT bound
// to one owner; every data endpoint then operates on that owner only.
type Authenticator struct {
	secret            []byte
	sessionTimeout    time.Duration
	adminUsername     string
	adminPasswordHash string
}

// NewAuthenticator creates an authenticator from security config.
func NewAuthenticator(cfg config.SecurityConfig) *Authenticator {
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &Authenticator{
		secret:            []byte(cfg.JWTSecret),
		sessionTimeout:    timeout,
		adminUsername:     cfg.AdminUsername,
		adminPasswordHash: cfg.AdminPasswordHash,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`

	// OwnerID scopes the issued token. Every data endpoint operates on
	// this owner only.
	OwnerID string `json:"owner_id"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	OwnerID   uuid.UUID `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies the admin credentials and issues an owner-scoped JWT.
// Credential comparison is constant time for the username and bcrypt for
// the password, so failures do not reveal which part was wrong.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if a.adminUsername == "" || a.adminPasswordHash == "" {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "Authentication is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil || ownerID == uuid.Nil {
		rw.BadRequest("owner_id must be a valid UUID")
		return
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.adminUsername)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(a.adminPasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		logging.Warn().
			Str("remote_addr", r.RemoteAddr).
			Msg("failed login attempt")
		rw.Unauthorized("Invalid credentials")
		return
	}

	expiresAt := time.Now().Add(a.sessionTimeout)
	token, err := a.issueToken(ownerID, expiresAt)
	if err != nil {
		logging.Error().Err(err).Msg("token signing failed")
		rw.InternalError("Could not issue token")
		return
	}

	logging.Info().
		Str("owner_id", ownerID.String()).
		Time("expires_at", expiresAt).
		Msg("owner token issued")

	rw.Success(loginResponse{
		Token:     token,
		OwnerID:   ownerID,
		ExpiresAt: expiresAt,
	})
}

func (a *Authenticator) issueToken(ownerID uuid.UUID, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   ownerID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// verifyToken parses and validates a bearer token, returning the owner it
// is scoped to.
func (a *Authenticator) verifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	return uuid.Parse(claims.Subject)
}

// RequireAuth rejects requests without a valid owner-scoped bearer token
// and places the owner ID in the request context.
func (a *Authenticator) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := NewResponseWriter(w, r)

			header := r.Header.Get("Authorization")
			if header == "" {
				// WebSocket clients cannot set headers from browsers;
				// accept the token as a query parameter there.
				if token := r.URL.Query().Get("token"); token != "" {
					header = "Bearer " + token
				}
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				rw.Unauthorized("Missing bearer token")
				return
			}

			ownerID, err := a.verifyToken(strings.TrimPrefix(header, prefix))
			if err != nil {
				logging.Warn().Err(err).Msg("rejected bearer token")
				rw.Unauthorized("Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the authenticated owner ID set by RequireAuth.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerIDKey).(uuid.UUID)
	return id, ok
}
