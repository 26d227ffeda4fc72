package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/cache"
	"github.com/backdesk/backdesk/internal/model"
)

// Cache keys for the slowly-changing resources this client reads.
const (
	cacheKeyPreferences = "notifications:preferences"
	cacheKeyVAPIDKey    = "push:vapid-key"
)

// Client is the REST client for the back-office notification API. It
// handles bearer authentication with a one-shot refresh on 401, retry
// with capped exponential backoff on 429 and 5xx responses, and a
// read-through TTL cache for slowly-changing resources.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	cache      *cache.Cache
	logger     *logrus.Logger

	prefsTTL time.Duration
	vapidTTL time.Duration

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Options configures a Client beyond its required collaborators.
type Options struct {
	HTTPClient     *http.Client
	Logger         *logrus.Logger
	PreferencesTTL time.Duration
	VAPIDKeyTTL    time.Duration
}

// NewClient creates a REST client rooted at baseURL. The cache is the
// session's shared cache service; it must not be nil.
func NewClient(baseURL string, tokens TokenSource, c *cache.Cache, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	prefsTTL := opts.PreferencesTTL
	if prefsTTL <= 0 {
		prefsTTL = 5 * time.Minute
	}
	vapidTTL := opts.VAPIDKeyTTL
	if vapidTTL <= 0 {
		vapidTTL = time.Hour
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
		cache:      c,
		logger:     logger,
		prefsTTL:   prefsTTL,
		vapidTTL:   vapidTTL,
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

// ListNotifications fetches the current server-side snapshot, newest
// first. The list is a real-time resource and is never cached.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	if err := c.doJSON(ctx, http.MethodGet, "/notifications/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead confirms a single mark-read on the server.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read/", id)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// MarkAllRead confirms a mark-all-read on the server. The remote
// operation is atomic.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/notifications/read-all/", nil, nil)
}

// Preferences returns the user's preference record, served from cache
// when a fresh copy is available.
func (c *Client) Preferences(ctx context.Context) (model.Preferences, error) {
	if cached, ok := c.cache.Get(cacheKeyPreferences); ok {
		if prefs, ok := cached.(model.Preferences); ok {
			return prefs, nil
		}
	}

	var prefs model.Preferences
	if err := c.doJSON(ctx, http.MethodGet, "/notifications/preferences/", nil, &prefs); err != nil {
		return model.Preferences{}, err
	}

	c.cache.Set(cacheKeyPreferences, prefs, c.prefsTTL)
	return prefs, nil
}

// UpdatePreferences applies a partial patch and returns the full record
// echoed by the server. The cached copy is invalidated so subsequent
// reads are forced fresh.
func (c *Client) UpdatePreferences(
	ctx context.Context,
	patch model.PreferencesPatch,
) (model.Preferences, error) {
	var prefs model.Preferences
	if err := c.doJSON(ctx, http.MethodPatch, "/notifications/preferences/", patch, &prefs); err != nil {
		return model.Preferences{}, err
	}

	c.cache.Invalidate(cacheKeyPreferences)
	c.cache.Set(cacheKeyPreferences, prefs, c.prefsTTL)
	return prefs, nil
}

// VAPIDPublicKey returns the server's public key for push registration
// as a base64url string. The key changes essentially never, so it is
// cached aggressively.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	if cached, ok := c.cache.Get(cacheKeyVAPIDKey); ok {
		if key, ok := cached.(string); ok {
			return key, nil
		}
	}

	var payload struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/push/vapid-public-key/", nil, &payload); err != nil {
		return "", err
	}

	c.cache.Set(cacheKeyVAPIDKey, payload.PublicKey, c.vapidTTL)
	return payload.PublicKey, nil
}

// SubscribePush submits a device registration. The server upserts by
// endpoint, so resubmitting the same device never creates a second row.
func (c *Client) SubscribePush(ctx context.Context, sub model.PushSubscription) error {
	return c.doJSON(ctx, http.MethodPost, "/push/subscribe/", sub, nil)
}

// UnsubscribePush removes the registration for the given endpoint.
func (c *Client) UnsubscribePush(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	return c.doJSON(ctx, http.MethodDelete, "/push/unsubscribe/", body, nil)
}

// doJSON builds the request, handles auth with a single refresh retry
// on 401, backs off on 429/5xx, and maps error responses onto the
// client's error taxonomy.
func (c *Client) doJSON(
	ctx context.Context,
	method string,
	path string,
	body any,
	out any,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return &AuthError{Message: "no access token available"}
	}

	refreshed := false
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-Id", uuid.New().String())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := c.wait(ctx, attempt+1, ""); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 || resp.StatusCode == http.StatusNoContent {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
			}
			return nil
		}

		if resp.StatusCode == http.StatusUnauthorized {
			if refreshed {
				return &AuthError{Message: fmt.Sprintf("rejected after refresh on %s %s", method, path)}
			}
			refreshed = true
			newToken, refreshErr := c.tokens.Refresh(ctx)
			if refreshErr != nil {
				if IsAuthError(refreshErr) {
					return refreshErr
				}
				return &AuthError{Message: refreshErr.Error()}
			}
			c.logger.WithField("path", path).Debug("access token refreshed after 401")
			token = newToken
			continue
		}

		if resp.StatusCode == http.StatusBadRequest ||
			resp.StatusCode == http.StatusUnprocessableEntity {
			return parseValidationError(resp.StatusCode, respBody)
		}

		if (resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			c.logger.WithFields(logrus.Fields{
				"status": resp.StatusCode,
				"path":   path,
			}).Warn("retrying request")
			if waitErr := c.wait(ctx, attempt+1, resp.Header.Get("Retry-After")); waitErr != nil {
				return waitErr
			}
			continue
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}
}

// parseValidationError extracts per-field messages from a 400/422 body.
func parseValidationError(status int, body []byte) *ValidationError {
	vErr := &ValidationError{StatusCode: status, Fields: map[string]string{}}

	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		for field, value := range fields {
			switch v := value.(type) {
			case string:
				vErr.Fields[field] = v
			case []any:
				parts := make([]string, 0, len(v))
				for _, item := range v {
					if s, ok := item.(string); ok {
						parts = append(parts, s)
					}
				}
				vErr.Fields[field] = strings.Join(parts, "; ")
			}
		}
	}
	if len(vErr.Fields) == 0 {
		vErr.Message = errorMessage(body)
	}
	return vErr
}

// errorMessage pulls a human-readable message out of an error body,
// falling back to the raw payload.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// wait sleeps for the backoff delay of the given attempt, honoring the
// Retry-After header when present and the context otherwise.
func (c *Client) wait(ctx context.Context, attempt int, retryAfterHeader string) error {
	delay := c.retryDelay(attempt, retryAfterHeader)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay computes the wait before the given attempt: Retry-After
// when the server provided one, else exponential backoff from baseDelay
// capped at maxDelay.
func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if header := strings.TrimSpace(retryAfterHeader); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			retryAfter := time.Duration(seconds) * time.Second
			if retryAfter > c.maxDelay {
				return c.maxDelay
			}
			return retryAfter
		}
	}

	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}
