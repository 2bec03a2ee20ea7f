// Package fileclient provides a gimbal.Client backed by a local settings
// file. It acts as its own authority, reproducing the settings service's
// server-side semantics (path-history appends, resolved-path
// normalization, mirror key assignment) so the store's
// refresh-after-success behavior is identical online and offline.
package fileclient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/zoobzio/gimbal"
)

// TokenResolver maps a token to its account for offline login and
// validation. Without one, login and token validation are rejected as
// business outcomes.
type TokenResolver func(token string) (gimbal.Account, error)

// Client persists the settings document at a single file path.
type Client struct {
	path     string
	codec    gimbal.Codec
	resolver TokenResolver

	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the file format. Default: gimbal.JSONCodec.
func WithCodec(codec gimbal.Codec) Option {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithTokenResolver enables offline login by mapping tokens to accounts.
func WithTokenResolver(fn TokenResolver) Option {
	return func(c *Client) {
		c.resolver = fn
	}
}

// New creates a Client persisting to the given path. A missing file reads
// as the default document; the file is created on first write.
func New(path string, opts ...Option) *Client {
	c := &Client{
		path:  path,
		codec: gimbal.JSONCodec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSettings returns the persisted document with derived fields
// normalized.
func (c *Client) FetchSettings(ctx context.Context) (gimbal.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Document{}, err
	}
	normalize(&doc)
	return doc, nil
}

// ApplySettings merges a partial document into the file. Changing a
// directory field appends the previous value to its history list, and
// derived fields are recomputed, so a fetch after apply can differ from
// the patch alone.
func (c *Client) ApplySettings(ctx context.Context, patch gimbal.Patch) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	merged, err := doc.Merge(patch)
	if err != nil {
		// Malformed patches are business rejections here: the call itself
		// completed against the local authority.
		return gimbal.Outcome{Success: false, Message: err.Error()}, nil
	}

	if doc.DownloadDir != "" && merged.DownloadDir != doc.DownloadDir {
		merged.DownloadDirHistory = appendUnique(merged.DownloadDirHistory, doc.DownloadDir)
	}
	if doc.HFCacheDir != "" && merged.HFCacheDir != doc.HFCacheDir {
		merged.HFCacheHistory = appendUnique(merged.HFCacheHistory, doc.HFCacheDir)
	}
	normalize(&merged)

	if err := c.save(merged); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Settings updated"}, nil
}

// FetchAccounts returns the saved account list.
func (c *Client) FetchAccounts(ctx context.Context) ([]gimbal.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}
	return append([]gimbal.Account(nil), doc.Accounts...), nil
}

// SwitchAccount makes the named saved account active.
func (c *Client) SwitchAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}
	found := false
	for _, a := range doc.Accounts {
		if a.Username == username {
			found = true
			break
		}
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Account not found"}, nil
	}

	doc.ActiveUsername = username
	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Switched to " + username}, nil
}

// DeleteAccount removes a saved account; deleting the active account also
// clears the active identity.
func (c *Client) DeleteAccount(ctx context.Context, username string) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	kept := doc.Accounts[:0:0]
	found := false
	for _, a := range doc.Accounts {
		if a.Username == username {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Account not found"}, nil
	}
	doc.Accounts = kept
	if doc.ActiveUsername == username {
		doc.ActiveUsername = ""
	}

	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Account removed"}, nil
}

// Login resolves the token to an account, upserts it, and makes it active.
func (c *Client) Login(ctx context.Context, token string) (gimbal.Outcome, error) {
	if c.resolver == nil {
		return gimbal.Outcome{Success: false, Message: "token validation unavailable offline"}, nil
	}
	account, err := c.resolver(token)
	if err != nil {
		return gimbal.Outcome{Success: false, Message: err.Error()}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	kept := doc.Accounts[:0:0]
	for _, a := range doc.Accounts {
		if a.Username != account.Username {
			kept = append(kept, a)
		}
	}
	doc.Accounts = append(kept, account)
	doc.ActiveUsername = account.Username

	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Logged in as " + account.Username}, nil
}

// ValidateToken checks a token through the resolver without logging in.
func (c *Client) ValidateToken(ctx context.Context, token string) (gimbal.TokenInfo, error) {
	if c.resolver == nil {
		return gimbal.TokenInfo{Valid: false, Message: "token validation unavailable offline"}, nil
	}
	account, err := c.resolver(token)
	if err != nil {
		return gimbal.TokenInfo{Valid: false, Message: err.Error()}, nil
	}
	return gimbal.TokenInfo{
		Valid:    true,
		Username: account.Username,
		Fullname: account.Fullname,
	}, nil
}

// AddMirror registers a user-created mirror under a generated custom_ key.
func (c *Client) AddMirror(ctx context.Context, req gimbal.MirrorRequest) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	req = req.Normalized()
	doc.Mirrors = append(doc.Mirrors, gimbal.Mirror{
		Key:         gimbal.CustomMirrorPrefix + randomSuffix(),
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Region:      "custom",
	})

	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Mirror added"}, nil
}

// RemoveMirror deletes a user-created mirror. Built-in mirrors and unknown
// keys are rejected. Removing the current mirror falls back to official.
func (c *Client) RemoveMirror(ctx context.Context, key string) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	if !strings.HasPrefix(key, gimbal.CustomMirrorPrefix) {
		return gimbal.Outcome{Success: false, Message: "Cannot remove built-in mirrors"}, nil
	}

	kept := doc.Mirrors[:0:0]
	found := false
	for _, m := range doc.Mirrors {
		if m.Key == key {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Mirror not found"}, nil
	}
	doc.Mirrors = kept
	if doc.CurrentMirror == key {
		doc.CurrentMirror = "official"
	}

	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "Mirror removed"}, nil
}

// DeleteHistory removes one path from a history list.
func (c *Client) DeleteHistory(ctx context.Context, kind gimbal.HistoryKind, path string) (gimbal.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return gimbal.Outcome{}, err
	}

	var list *[]string
	switch kind {
	case gimbal.HistoryCache:
		list = &doc.HFCacheHistory
	case gimbal.HistoryDownload:
		list = &doc.DownloadDirHistory
	default:
		return gimbal.Outcome{Success: false, Message: "Unknown history kind"}, nil
	}

	kept := (*list)[:0:0]
	found := false
	for _, p := range *list {
		if p == path {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return gimbal.Outcome{Success: false, Message: "Item not found in history"}, nil
	}
	*list = kept

	if err := c.save(doc); err != nil {
		return gimbal.Outcome{}, err
	}
	return gimbal.Outcome{Success: true, Message: "History item removed"}, nil
}

// Watch emits a tick whenever the settings file is written, including by
// other processes; consumers typically wire it to Store.Refresh. The
// channel is closed when the context is canceled.
func (c *Client) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory: the file may not exist yet, and saves go
	// through a rename.
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan struct{})

	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != c.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()

	return out, nil
}

// Path returns the settings file location.
func (c *Client) Path() string {
	return c.path
}

// load reads the document, treating a missing file as the defaults.
// Callers must hold c.mu.
func (c *Client) load() (gimbal.Document, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return gimbal.DefaultDocument(), nil
	}
	if err != nil {
		return gimbal.Document{}, err
	}

	doc := gimbal.DefaultDocument()
	if err := c.codec.Unmarshal(data, &doc); err != nil {
		return gimbal.Document{}, fmt.Errorf("decode %s: %w", c.path, err)
	}
	return doc, nil
}

// save writes the document atomically via a temp file and rename.
// Callers must hold c.mu.
func (c *Client) save(doc gimbal.Document) error {
	data, err := c.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// normalize recomputes derived fields the service owns.
func normalize(doc *gimbal.Document) {
	if doc.HFCacheDir != "" {
		doc.ResolvedHFCacheDir = doc.HFCacheDir
		return
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	doc.ResolvedHFCacheDir = filepath.Join(home, ".cache", "huggingface", "hub")
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf[:])
}

// Ensure Client implements gimbal.Client.
var _ gimbal.Client = (*Client)(nil)
