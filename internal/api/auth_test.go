// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func testSecurityConfig(t *testing.T) config.SecurityConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return config.SecurityConfig{
		JWTSecret:         "test-signing-secret",
		SessionTimeout:    time.Hour,
		AdminUsername:     "herald-admin",
		AdminPasswordHash: string(hash),
		RateLimitDisabled: true,
	}
}

func doLogin(t *testing.T, a *Authenticator, username, password, ownerID string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(loginRequest{
		Username: username,
		Password: password,
		OwnerID:  ownerID,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.Login(rec, req)
	return rec
}

func TestLoginIssuesOwnerScopedToken(t *testing.T) {
	a := NewAuthenticator(testSecurityConfig(t))
	ownerID := uuid.New()

	rec := doLogin(t, a, "herald-admin", "correct-horse", ownerID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Success bool          `json:"success"`
		Data    loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Success || envelope.Data.Token == "" {
		t.Fatalf("unexpected login response: %+v", envelope)
	}
	if envelope.Data.OwnerID != ownerID {
		t.Errorf("owner_id = %s, want %s", envelope.Data.OwnerID, ownerID)
	}

	got, err := a.verifyToken(envelope.Data.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != ownerID {
		t.Errorf("token owner = %s, want %s", got, ownerID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := NewAuthenticator(testSecurityConfig(t))
	ownerID := uuid.NewString()

	tests := []struct {
		name     string
		username string
		password string
		ownerID  string
		want     int
	}{
		{"wrong password", "herald-admin", "wrong", ownerID, http.StatusUnauthorized},
		{"wrong username", "intruder", "correct-horse", ownerID, http.StatusUnauthorized},
		{"missing owner", "herald-admin", "correct-horse", "", http.StatusBadRequest},
		{"malformed owner", "herald-admin", "correct-horse", "not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doLogin(t, a, tt.username, tt.password, tt.ownerID)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLoginUnconfiguredReturns503(t *testing.T) {
	a := NewAuthenticator(config.SecurityConfig{JWTSecret: "s"})
	rec := doLogin(t, a, "any", "any", uuid.NewString())
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	a := NewAuthenticator(testSecurityConfig(t))
	ownerID := uuid.New()
	token, err := a.issueToken(ownerID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen uuid.UUID
	handler := a.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OwnerFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if seen != ownerID {
		t.Errorf("context owner = %s, want %s", seen, ownerID)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	a := NewAuthenticator(testSecurityConfig(t))
	ownerID := uuid.New()
	token, err := a.issueToken(ownerID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	called := false
	handler := a.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Errorf("handler not reached, status = %d", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	a := NewAuthenticator(testSecurityConfig(t))
	expired, err := a.issueToken(uuid.New(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := NewAuthenticator(config.SecurityConfig{
		JWTSecret:      "a-different-secret",
		SessionTimeout: time.Hour,
	})
	foreign, err := other.issueToken(uuid.New(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := a.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be reached")
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
