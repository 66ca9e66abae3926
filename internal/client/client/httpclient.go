package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
)

type HTTPClient struct {
	baseURL string
	hc      *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	} `json:"error"`
}

func (c *HTTPClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	if refresh != "" {
		c.refreshToken = refresh
	}
}

func (c *HTTPClient) clearTokens() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = "", ""
}

func (c *HTTPClient) LoggedIn() bool {
	access, _ := c.tokens()
	return access != ""
}

// do sends one request and decodes the envelope data into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		access, _ := c.tokens()
		if access == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+access)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: bad response (status %d)", ErrUnavailable, resp.StatusCode)
	}

	if !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code, apiErr.Message, apiErr.RetryAfter = env.Error.Code, env.Error.Message, env.Error.RetryAfter
		}
		return apiErr
	}

	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// authed runs an authenticated call, refreshing the access token once when
// the server reports it invalid.
func (c *HTTPClient) authed(ctx context.Context, method, path string, in, out any) error {
	err := c.do(ctx, method, path, in, out, true)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_TOKEN" {
		return err
	}

	if rerr := c.refresh(ctx); rerr != nil {
		return err
	}
	return c.do(ctx, method, path, in, out, true)
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}

	var t Tokens
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": refresh}, &t, false); err != nil {
		return err
	}
	c.setTokens(t.Token, "")
	return nil
}

func (c *HTTPClient) GetSalt(ctx context.Context, email string) (string, error) {
	var out struct {
		Salt string `json:"salt"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/salt", map[string]string{"email": email}, &out, false); err != nil {
		return "", err
	}
	return out.Salt, nil
}

func (c *HTTPClient) Register(ctx context.Context, r RegisterRequest) (*Tokens, error) {
	var t Tokens
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", r, &t, false); err != nil {
		return nil, err
	}
	c.setTokens(t.Token, t.RefreshToken)
	return &t, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, authHash string, device Device) (*Tokens, error) {
	in := struct {
		Email    string `json:"email"`
		AuthHash string `json:"auth_hash"`
		Device
	}{Email: email, AuthHash: authHash, Device: device}

	var t Tokens
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &t, false); err != nil {
		return nil, err
	}
	c.setTokens(t.Token, t.RefreshToken)
	return &t, nil
}

// Logout revokes the current session and forgets the tokens even when the
// server call fails.
func (c *HTTPClient) Logout(ctx context.Context) error {
	defer c.clearTokens()
	return c.authed(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *HTTPClient) Heartbeat(ctx context.Context) (*Heartbeat, error) {
	var hb Heartbeat
	if err := c.authed(ctx, http.MethodGet, "/api/auth/heartbeat", nil, &hb); err != nil {
		return nil, err
	}
	return &hb, nil
}

func (c *HTTPClient) Sessions(ctx context.Context) (*SessionList, error) {
	var l SessionList
	if err := c.authed(ctx, http.MethodGet, "/api/sessions", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) RevokeSession(ctx context.Context, id string) error {
	return c.authed(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}
