// Package httpclient provides a gimbal.Client backed by the settings
// service REST API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zoobzio/gimbal"
)

// DefaultTimeout bounds each request when no custom http.Client is given.
// The store treats a timeout as an ordinary transport failure.
const DefaultTimeout = 30 * time.Second

// Client talks to the settings service over HTTP. All mutating endpoints
// return {success, message}; non-2xx statuses and network errors surface as
// transport errors, business rejections as Outcome values.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom underlying http.Client, e.g. to configure
// proxies or timeouts.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSettings returns the authoritative settings document.
func (c *Client) FetchSettings(ctx context.Context) (gimbal.Document, error) {
	var doc gimbal.Document
	err := c.do(ctx, http.MethodGet, "/settings/", nil, &doc)
	return doc, err
}

// ApplySettings merges a partial document into the remote store.
func (c *Client) ApplySettings(ctx context.Context, patch gimbal.Patch) (gimbal.Outcome, error) {
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodPut, "/settings/", patch, &out)
	return out, err
}

// FetchAccounts returns the saved account list.
func (c *Client) FetchAccounts(ctx context.Context) ([]gimbal.Account, error) {
	var resp struct {
		Accounts []gimbal.Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// SwitchAccount makes the named saved account active.
func (c *Client) SwitchAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	body := map[string]string{"username": username}
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodPost, "/auth/switch", body, &out)
	return out, err
}

// DeleteAccount removes a saved account.
func (c *Client) DeleteAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodDelete, "/auth/accounts/"+url.PathEscape(username), nil, &out)
	return out, err
}

// Login validates a token and adds (or updates) its account.
func (c *Client) Login(ctx context.Context, token string) (gimbal.Outcome, error) {
	body := map[string]string{"token": token}
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodPost, "/auth/login", body, &out)
	return out, err
}

// ValidateToken checks a token without logging in.
func (c *Client) ValidateToken(ctx context.Context, token string) (gimbal.TokenInfo, error) {
	body := map[string]string{"token": token}
	var info gimbal.TokenInfo
	err := c.do(ctx, http.MethodPost, "/settings/validate-token", body, &info)
	return info, err
}

// AddMirror registers a user-created mirror.
func (c *Client) AddMirror(ctx context.Context, req gimbal.MirrorRequest) (gimbal.Outcome, error) {
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodPost, "/settings/mirrors", req, &out)
	return out, err
}

// RemoveMirror deletes a user-created mirror.
func (c *Client) RemoveMirror(ctx context.Context, key string) (gimbal.Outcome, error) {
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodDelete, "/settings/mirrors/"+url.PathEscape(key), nil, &out)
	return out, err
}

// DeleteHistory removes one path from a history list.
func (c *Client) DeleteHistory(ctx context.Context, kind gimbal.HistoryKind, path string) (gimbal.Outcome, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("type", string(kind))
	var out gimbal.Outcome
	err := c.do(ctx, http.MethodPost, "/settings/delete-history?"+q.Encode(), nil, &out)
	return out, err
}

// do issues one JSON request. A non-2xx status is a transport failure, not
// a business rejection; rejections arrive as 200s with success=false.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		enc, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(enc)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("settings service returned %s for %s %s", resp.Status, method, path)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Ensure Client implements gimbal.Client.
var _ gimbal.Client = (*Client)(nil)
