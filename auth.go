package bud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider supplies authentication for outgoing requests. Apply must
// set the appropriate headers, refreshing credentials first when needed.
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	Apply(ctx context.Context, req *http.Request) error
}

// APIKeyAuth authenticates with a static bearer API key.
type APIKeyAuth struct {
	APIKey string
}

// Apply sets the Authorization header.
func (a *APIKeyAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	return nil
}

// PasswordAuth authenticates via email/password login and manages the JWT
// token lifecycle: it logs in on first use, refreshes the access token
// before expiry, and falls back to a full re-login when the refresh token
// is rejected. It is safe for concurrent use.
type PasswordAuth struct {
	baseURL  string
	email    string
	password string
	client   *http.Client
	margin   time.Duration

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewPasswordAuth creates a PasswordAuth against the given gateway URL.
// If client is nil, a default HTTP client with a 30-second timeout is used.
func NewPasswordAuth(baseURL, email, password string, client *http.Client) *PasswordAuth {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PasswordAuth{
		baseURL:  baseURL,
		email:    email,
		password: password,
		client:   client,
		margin:   60 * time.Second,
	}
}

// Apply sets the Authorization header, logging in or refreshing first when
// the cached access token is missing or close to expiry.
func (a *PasswordAuth) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *PasswordAuth) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.expiresAt.Add(-a.margin)) {
		return a.accessToken, nil
	}

	if a.refreshToken != "" {
		if err := a.refresh(ctx); err == nil {
			return a.accessToken, nil
		}
		// Refresh token expired or rejected — fall through to re-login.
	}
	if err := a.login(ctx); err != nil {
		return "", err
	}
	return a.accessToken, nil
}

// tokenResponse is the wire format for /auth/login and /auth/refresh-token.
// Some gateway versions nest the payload under a "token" key.
type tokenResponse struct {
	Token       *tokenPayload `json:"token"`
	AccessToken string        `json:"access_token"`
	RefreshTok  string        `json:"refresh_token"`
	ExpiresIn   int64         `json:"expires_in"`
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	RefreshTok  string `json:"refresh_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r *tokenResponse) payload() tokenPayload {
	if r.Token != nil {
		return *r.Token
	}
	return tokenPayload{AccessToken: r.AccessToken, RefreshTok: r.RefreshTok, ExpiresIn: r.ExpiresIn}
}

func (a *PasswordAuth) login(ctx context.Context) error {
	body := map[string]string{"email": a.email, "password": a.password}
	payload, err := a.postToken(ctx, "/auth/login", body)
	if err != nil {
		return fmt.Errorf("bud: login: %w", err)
	}
	a.store(payload)
	return nil
}

func (a *PasswordAuth) refresh(ctx context.Context) error {
	body := map[string]string{"refresh_token": a.refreshToken}
	payload, err := a.postToken(ctx, "/auth/refresh-token", body)
	if err != nil {
		return fmt.Errorf("bud: refresh token: %w", err)
	}
	a.store(payload)
	return nil
}

func (a *PasswordAuth) postToken(ctx context.Context, path string, body any) (tokenPayload, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return tokenPayload{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return tokenPayload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return tokenPayload{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return tokenPayload{}, fmt.Errorf("auth failed with status %d", resp.StatusCode)
	}

	var envelope tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return tokenPayload{}, fmt.Errorf("decode response: %w", err)
	}
	p := envelope.payload()
	if p.AccessToken == "" {
		return tokenPayload{}, fmt.Errorf("response contained no access token")
	}
	return p, nil
}

func (a *PasswordAuth) store(p tokenPayload) {
	a.accessToken = p.AccessToken
	if p.RefreshTok != "" {
		a.refreshToken = p.RefreshTok
	}
	a.expiresAt = tokenExpiry(p.AccessToken, p.ExpiresIn)
}

// tokenExpiry determines when an access token expires: the JWT exp claim
// when the token carries one, else now + expires_in, else one hour.
func tokenExpiry(token string, expiresIn int64) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Now().Add(time.Hour)
}
