// Package feishu implements the authenticated Feishu/Lark messaging client
// used by the adapter: tenant-token caching, the JSON call envelope, message
// send/reply/edit, media transfer, and interactive-card rendering.
//
// The websocket event stream and event payload types come from the Lark SDK;
// the HTTP messaging surface is implemented here so the token cache and the
// non-zero-code error contract stay explicit and clock-testable.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
)

const (
	defaultCallTimeout = 30 * time.Second

	tenantTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
)

// Client issues authenticated requests against the Feishu open platform for
// a single app. Safe for concurrent use; token exchange races are tolerated
// (last write wins).
type Client struct {
	appID       string
	appSecret   string
	baseURL     string
	httpClient  *http.Client
	cache       TokenCache
	now         func() time.Time
	logger      *slog.Logger
	callTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithRegion selects the API endpoint region ("feishu" or "lark").
func WithRegion(region string) Option {
	return func(c *Client) {
		if strings.EqualFold(strings.TrimSpace(region), "lark") {
			c.baseURL = lark.LarkBaseUrl
		} else {
			c.baseURL = lark.FeishuBaseUrl
		}
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(strings.TrimSpace(u), "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTokenCache injects a shared token cache.
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithClock injects the time source used for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCallTimeout sets the per-request deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log.With(slog.String("component", "feishu_client"))
		}
	}
}

// NewClient creates a client for the given app credentials.
func NewClient(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		appID:       strings.TrimSpace(appID),
		appSecret:   strings.TrimSpace(appSecret),
		baseURL:     lark.FeishuBaseUrl,
		httpClient:  &http.Client{},
		cache:       NewMemoryTokenCache(),
		now:         time.Now,
		logger:      slog.Default(),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppID returns the app identifier the client is bound to.
func (c *Client) AppID() string { return c.appID }

// TenantAccessToken returns a tenant token, reusing the cached one while its
// remaining lifetime exceeds the safety window.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cache.Get(c.appID); ok && tok.ExpiresAt.Sub(c.now()) > tokenSafetyWindow {
		return tok.Value, nil
	}
	body, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+tenantTokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return "", &TimeoutError{Op: "tenant_access_token", Timeout: c.callTimeout}
		}
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var parsed struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int64  `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Code != 0 {
		return "", &AuthError{AppID: c.appID, Code: parsed.Code, Msg: parsed.Msg}
	}
	token := strings.TrimSpace(parsed.TenantAccessToken)
	if token == "" {
		return "", &AuthError{AppID: c.appID, Msg: "empty tenant_access_token"}
	}
	ttl := defaultTokenTTL
	if parsed.Expire > 0 {
		ttl = time.Duration(parsed.Expire) * time.Second
	}
	c.cache.Put(c.appID, Token{Value: token, ExpiresAt: c.now().Add(ttl)})
	return token, nil
}

// call issues an authenticated JSON request and decodes the platform
// envelope. A non-zero platform code is an APIError regardless of the HTTP
// status; exceeding the call timeout is a TimeoutError.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return &TimeoutError{Op: op, Timeout: c.callTimeout}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if envelope.Code != 0 {
		return &APIError{Op: op, Code: envelope.Code, Msg: envelope.Msg}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
	}
	return nil
}

// download issues an authenticated GET for a binary resource. Error bodies
// come back as JSON envelopes and are surfaced as APIError.
func (c *Client) download(ctx context.Context, op, path string, query url.Values) ([]byte, http.Header, error) {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, nil, &TimeoutError{Op: op, Timeout: c.callTimeout}
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || strings.Contains(contentType, "application/json") {
		var envelope struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Code != 0 {
			return nil, nil, &APIError{Op: op, Code: envelope.Code, Msg: envelope.Msg}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
		}
	}
	return raw, resp.Header, nil
}
