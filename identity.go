package gimbal

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// DependentCache is client-local cached data whose validity is scoped to
// the active account identity, such as a cached repository listing.
// Invalidate must leave the cache empty before the next read.
type DependentCache interface {
	Invalidate()
}

// CacheFunc adapts a plain function to the DependentCache interface.
type CacheFunc func()

// Invalidate calls the function.
func (f CacheFunc) Invalidate() { f() }

// Coordinator runs identity-changing operations and keeps dependent caches
// coherent. For every trigger the ordering is fixed: invalidate all
// registered caches first, then reload the account list (where the table
// calls for it), then refresh the store. No window exists where a read
// could observe stale cached data under the new identity.
//
//	switch account → invalidate, refresh
//	delete account → invalidate, reload accounts, refresh
//	login          → invalidate, reload accounts, refresh
type Coordinator struct {
	store  *Store
	client Client

	mu     sync.Mutex
	caches []DependentCache
}

// NewCoordinator creates a Coordinator for the store and the client it
// syncs against.
func NewCoordinator(store *Store, client Client) *Coordinator {
	return &Coordinator{store: store, client: client}
}

// Register adds a dependent cache. The returned function removes it.
func (c *Coordinator) Register(cache DependentCache) func() {
	c.mu.Lock()
	c.caches = append(c.caches, cache)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, cc := range c.caches {
			if cc == cache {
				c.caches = append(c.caches[:i], c.caches[i+1:]...)
				return
			}
		}
	}
}

// SwitchAccount makes the named saved account active. On success every
// dependent cache is invalidated before the store refresh.
func (c *Coordinator) SwitchAccount(ctx context.Context, username string) (Outcome, error) {
	out, err := c.client.SwitchAccount(ctx, username)
	if err != nil {
		return Outcome{}, &TransportError{Op: "switch account", Err: err}
	}
	if !out.Success {
		return out, nil
	}

	capitan.Emit(ctx, IdentitySwitched, KeyUsername.Field(username))
	c.invalidateAll(ctx)
	_, rerr := c.store.Refresh(ctx)
	return out, rerr
}

// DeleteAccount removes a saved account. On success: invalidate caches,
// reload the account list, then refresh.
func (c *Coordinator) DeleteAccount(ctx context.Context, username string) (Outcome, error) {
	out, err := c.client.DeleteAccount(ctx, username)
	if err != nil {
		return Outcome{}, &TransportError{Op: "delete account", Err: err}
	}
	if !out.Success {
		return out, nil
	}

	c.invalidateAll(ctx)
	rerr := c.reloadAccounts(ctx)
	if _, ferr := c.store.Refresh(ctx); rerr == nil {
		rerr = ferr
	}
	return out, rerr
}

// Login validates the token client-side, then adds its account. On
// success: invalidate caches, reload the account list, then refresh.
func (c *Coordinator) Login(ctx context.Context, token string) (Outcome, error) {
	if err := (LoginRequest{Token: token}).Validate(); err != nil {
		return Outcome{}, err
	}

	out, err := c.client.Login(ctx, token)
	if err != nil {
		return Outcome{}, &TransportError{Op: "login", Err: err}
	}
	if !out.Success {
		return out, nil
	}

	c.invalidateAll(ctx)
	rerr := c.reloadAccounts(ctx)
	if _, ferr := c.store.Refresh(ctx); rerr == nil {
		rerr = ferr
	}
	return out, rerr
}

// ValidateToken checks a token without logging in. Empty tokens fail
// inline as a ValidationError.
func (c *Coordinator) ValidateToken(ctx context.Context, token string) (TokenInfo, error) {
	if err := (LoginRequest{Token: token}).Validate(); err != nil {
		return TokenInfo{}, err
	}
	info, err := c.client.ValidateToken(ctx, token)
	if err != nil {
		return TokenInfo{}, &TransportError{Op: "validate token", Err: err}
	}
	return info, nil
}

// invalidateAll invalidates every registered cache. This always happens
// before account reloads and store refreshes so no read can observe stale
// data under the new identity.
func (c *Coordinator) invalidateAll(ctx context.Context) {
	c.mu.Lock()
	caches := append([]DependentCache(nil), c.caches...)
	c.mu.Unlock()

	for _, cache := range caches {
		cache.Invalidate()
	}
	capitan.Emit(ctx, IdentityCachesInvalidated, KeyCacheCount.Field(len(caches)))
}

// reloadAccounts re-reads the account list and folds it into the snapshot,
// preserving the rule-table ordering even if the trailing refresh fails.
func (c *Coordinator) reloadAccounts(ctx context.Context) error {
	accounts, err := c.client.FetchAccounts(ctx)
	if err != nil {
		return &TransportError{Op: "fetch accounts", Err: err}
	}
	c.store.adoptAccounts(accounts)
	capitan.Emit(ctx, IdentityAccountsReloaded)
	return nil
}
