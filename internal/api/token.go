package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/backdesk/backdesk/internal/credential"
)

// TokenSource supplies the bearer credential for API calls and performs
// the session's token-refresh flow when the server rejects it. Token
// issuance itself lives outside this client.
type TokenSource interface {
	// Token returns the current access token.
	Token() (string, error)

	// Refresh exchanges the refresh credential for a new access token
	// and returns it. A failed refresh returns an *AuthError.
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource wraps a fixed token with no refresh capability.
// Used by tests and short-lived commands.
type StaticTokenSource string

func (s StaticTokenSource) Token() (string, error) { return string(s), nil }

func (s StaticTokenSource) Refresh(ctx context.Context) (string, error) {
	return "", &AuthError{Message: "no refresh credential available"}
}

// KeyringTokenSource reads the access and refresh tokens from the
// system keyring and refreshes against the back-office token endpoint.
type KeyringTokenSource struct {
	// RefreshURL is the absolute URL of the token refresh endpoint.
	RefreshURL string

	// HTTPClient is used for the refresh call; defaults to a 15s client.
	HTTPClient *http.Client
}

func (k *KeyringTokenSource) Token() (string, error) {
	return credential.Get(credential.KeyAccessToken)
}

func (k *KeyringTokenSource) Refresh(ctx context.Context) (string, error) {
	refreshToken, err := credential.Get(credential.KeyRefreshToken)
	if err != nil || strings.TrimSpace(refreshToken) == "" {
		return "", &AuthError{Message: "no refresh token stored"}
	}

	body, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", fmt.Errorf("marshaling refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, k.RefreshURL, bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := k.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing refresh request: %w", err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return "", fmt.Errorf("reading refresh response: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{
			Message: fmt.Sprintf("refresh rejected (%d)", resp.StatusCode),
		}
	}

	var payload struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil || payload.Access == "" {
		return "", &AuthError{Message: "refresh response missing access token"}
	}

	if err := credential.Set(credential.KeyAccessToken, payload.Access); err != nil {
		return "", fmt.Errorf("storing refreshed token: %w", err)
	}

	return payload.Access, nil
}
