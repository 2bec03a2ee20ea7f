package gimbal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func accountsDoc() Document {
	doc := DefaultDocument()
	doc.Accounts = []Account{
		{Username: "alice", Fullname: "Alice"},
		{Username: "bob", Fullname: "Bob"},
	}
	doc.ActiveUsername = "alice"
	return doc
}

func TestCoordinatorSwitchInvalidatesCachesBeforeRefresh(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	unregister := coord.Register(CacheFunc(func() {
		stub.event("invalidate")
	}))
	defer unregister()

	out, err := coord.SwitchAccount(context.Background(), "bob")
	if err != nil || !out.Success {
		t.Fatalf("switch failed: out=%+v err=%v", out, err)
	}

	switched := stub.logIndex("switch")
	invalidated := stub.logIndex("invalidate")
	if invalidated == -1 {
		t.Fatal("cache never invalidated")
	}
	if invalidated < switched {
		t.Error("cache invalidated before the switch succeeded")
	}
	// The refresh that makes the new identity's settings visible must come
	// after invalidation, so no read sees stale cached data.
	refreshed := -1
	stub.mu.Lock()
	for i, e := range stub.log {
		if e == "fetch" && i > switched {
			refreshed = i
			break
		}
	}
	stub.mu.Unlock()
	if refreshed == -1 || refreshed < invalidated {
		t.Errorf("refresh at %d did not follow invalidation at %d", refreshed, invalidated)
	}

	if store.Get().ActiveUsername != "bob" {
		t.Errorf("expected active account bob, got %q", store.Get().ActiveUsername)
	}
}

func TestCoordinatorSwitchRejectionLeavesCachesAlone(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	var invalidations atomic.Int32
	defer coord.Register(CacheFunc(func() { invalidations.Add(1) }))()

	out, err := coord.SwitchAccount(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success {
		t.Fatal("expected rejection for unknown account")
	}
	if invalidations.Load() != 0 {
		t.Errorf("caches invalidated on a rejected switch: %d", invalidations.Load())
	}
}

func TestCoordinatorSwitchTransportError(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	coord := NewCoordinator(store, stub)

	stub.failSwitch = errors.New("connection reset")
	_, err := coord.SwitchAccount(context.Background(), "bob")

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

func TestCoordinatorDeleteAccountReloadsAndRefreshes(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	var invalidations atomic.Int32
	defer coord.Register(CacheFunc(func() { invalidations.Add(1) }))()

	out, err := coord.DeleteAccount(context.Background(), "alice")
	if err != nil || !out.Success {
		t.Fatalf("delete failed: out=%+v err=%v", out, err)
	}

	if invalidations.Load() != 1 {
		t.Errorf("expected 1 invalidation, got %d", invalidations.Load())
	}
	got := store.Get()
	if got.ActiveUsername != "" {
		t.Errorf("expected active identity cleared, got %q", got.ActiveUsername)
	}
	for _, a := range got.Accounts {
		if a.Username == "alice" {
			t.Error("deleted account still present in snapshot")
		}
	}
	if stub.callCount("accounts") != 1 {
		t.Errorf("expected account list reload, got %d calls", stub.callCount("accounts"))
	}
}

func TestCoordinatorDeleteActiveAccountBehindGate(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	var invalidations atomic.Int32
	defer coord.Register(CacheFunc(func() { invalidations.Add(1) }))()

	g := NewGate()
	g.Open(context.Background(), Prompt{Title: "Delete alice?"}, func(ctx context.Context) (Outcome, error) {
		return coord.DeleteAccount(ctx, "alice")
	})

	// Opening alone does nothing.
	if stub.callCount("delete") != 0 {
		t.Fatal("delete ran before confirmation")
	}

	out, err := g.Confirm(context.Background())
	if err != nil || !out.Success {
		t.Fatalf("confirm failed: out=%+v err=%v", out, err)
	}
	if invalidations.Load() != 1 {
		t.Errorf("expected 1 invalidation, got %d", invalidations.Load())
	}
	if _, ok := store.Get().ActiveAccount(); ok {
		t.Error("expected no active account after deleting the active one")
	}
}

func TestCoordinatorLoginAddsAndActivatesAccount(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	var invalidations atomic.Int32
	defer coord.Register(CacheFunc(func() { invalidations.Add(1) }))()

	out, err := coord.Login(context.Background(), "hf_token")
	if err != nil || !out.Success {
		t.Fatalf("login failed: out=%+v err=%v", out, err)
	}

	got := store.Get()
	if got.ActiveUsername != "user-hf_token" {
		t.Errorf("expected new account active, got %q", got.ActiveUsername)
	}
	if invalidations.Load() != 1 {
		t.Errorf("expected 1 invalidation, got %d", invalidations.Load())
	}
}

func TestCoordinatorLoginRejectsEmptyToken(t *testing.T) {
	stub := newStubClient(DefaultDocument())
	coord := NewCoordinator(NewStore(stub), stub)

	_, err := coord.Login(context.Background(), "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if stub.callCount("login") != 0 {
		t.Error("empty token reached the network")
	}
}

func TestCoordinatorValidateToken(t *testing.T) {
	stub := newStubClient(DefaultDocument())
	coord := NewCoordinator(NewStore(stub), stub)

	info, err := coord.ValidateToken(context.Background(), "hf_token")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !info.Valid || info.Username != "user-hf_token" {
		t.Errorf("unexpected token info %+v", info)
	}

	if _, err := coord.ValidateToken(context.Background(), ""); err == nil {
		t.Error("expected validation error for empty token")
	}
}

func TestCoordinatorUnregisterStopsInvalidation(t *testing.T) {
	stub := newStubClient(accountsDoc())
	store := NewStore(stub)
	if _, err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	coord := NewCoordinator(store, stub)

	var invalidations atomic.Int32
	unregister := coord.Register(CacheFunc(func() { invalidations.Add(1) }))
	unregister()

	if out, err := coord.SwitchAccount(context.Background(), "bob"); err != nil || !out.Success {
		t.Fatalf("switch failed: out=%+v err=%v", out, err)
	}
	if invalidations.Load() != 0 {
		t.Errorf("unregistered cache invalidated %d times", invalidations.Load())
	}
}
