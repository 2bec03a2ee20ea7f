package gimbal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// Store owns the local settings snapshot and reconciles it with the remote
// configuration store under optimistic updates.
//
// Update applies the partial document locally first, notifies observers
// synchronously, and only then dispatches the write. Any failure, transport
// or business rejection, discards the overlay by re-fetching authoritative
// state rather than computing an inverse patch. A successful write also
// re-fetches, because a single field update can have server-side side
// effects on other fields; the optimistic merge is a latency hint, never
// durable truth.
type Store struct {
	client    Client
	pipeline  pipz.Chainable[*Request]
	clock     clockz.Clock
	metrics   MetricsProvider
	onSettled func(Document)

	state      atomic.Int32
	lastError  atomic.Pointer[error]
	faults     *faultRing
	refreshSeq atomic.Uint64

	mu         sync.Mutex
	snapshot   Document
	appliedSeq uint64
	loaded     bool
	subs       map[int]func(Document)
	nextSub    int
}

// NewStore creates a Store backed by the given client.
//
// Pipeline options (With*) wrap the remote write with reliability
// middleware. Instance configuration uses chainable methods before first
// use:
//
//	store := gimbal.NewStore(client,
//	    gimbal.WithRetry(3),
//	    gimbal.WithTimeout(5*time.Second),
//	).OnSettled(propagateEnv)
func NewStore(client Client, opts ...Option) *Store {
	s := &Store{
		client:   client,
		clock:    clockz.RealClock,
		snapshot: DefaultDocument(),
		subs:     make(map[int]func(Document)),
	}

	terminal := pipz.Apply(pipz.Name(dispatchID), func(ctx context.Context, req *Request) (*Request, error) {
		out, err := client.ApplySettings(ctx, req.Patch)
		if err != nil {
			return req, err
		}
		req.Outcome = out
		return req, nil
	})
	s.pipeline = buildPipeline(terminal, opts)
	s.state.Store(int32(StateLoading))

	return s
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before first use.
func (s *Store) Clock(clock clockz.Clock) *Store {
	s.clock = clock
	return s
}

// Metrics sets a metrics provider for observability integration.
// Must be called before first use.
func (s *Store) Metrics(provider MetricsProvider) *Store {
	s.metrics = provider
	return s
}

// OnSettled sets a hook invoked with the refreshed snapshot after every
// successful settled update cycle, so dependent subsystems (environment
// propagation, sibling caches) can react. Must be called before first use.
func (s *Store) OnSettled(fn func(Document)) *Store {
	s.onSettled = fn
	return s
}

// ErrorHistorySize sets the number of recent sync failures to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before first use.
func (s *Store) ErrorHistorySize(n int) *Store {
	s.faults = newFaultRing(n)
	return s
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Get returns the current snapshot, which may include an unconfirmed
// optimistic overlay. The returned document is a clone; mutating it has no
// effect on the store.
func (s *Store) Get() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// State returns the current state of the Store.
func (s *Store) State() State {
	return State(s.state.Load())
}

// LastError returns the last sync failure, or nil.
func (s *Store) LastError() error {
	ptr := s.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent sync failures, oldest first.
// Returns nil unless ErrorHistorySize was configured.
func (s *Store) ErrorHistory() []Fault {
	return s.faults.all()
}

// Subscribe registers an observer invoked synchronously with a snapshot
// clone whenever the snapshot changes: optimistic merges, refreshes, and
// rollbacks all notify. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Document)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------
// Synchronization
// -----------------------------------------------------------------------------

// Refresh fetches the authoritative document and replaces the local
// snapshot, last-fetch-wins: responses are gated by a monotonically
// increasing sequence and only the highest-sequence one is applied, so an
// older in-flight response can never overwrite a newer snapshot.
func (s *Store) Refresh(ctx context.Context) (Document, error) {
	doc, err := s.refresh(ctx)
	if err != nil {
		s.recordFault(err)
		s.transition(ctx, s.failureState())
		return Document{}, err
	}
	s.transition(ctx, StateHealthy)
	return doc, nil
}

// Update merges the partial document into the snapshot immediately,
// notifies observers, and dispatches the write through the pipeline.
//
// Failure semantics: a transport error returns a *TransportError; a
// business rejection returns Outcome{Success: false} with a nil error. Both
// discard the optimistic overlay via refresh. Unknown patch keys fail as a
// ValidationError before anything is applied or sent. No failure is fatal
// to the store.
func (s *Store) Update(ctx context.Context, patch Patch) (Outcome, error) {
	if len(patch) == 0 {
		return Outcome{Success: true, Message: "nothing to update"}, nil
	}
	start := s.clock.Now()

	s.mu.Lock()
	before := s.snapshot.Clone()
	merged, err := s.snapshot.Merge(patch)
	if err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.snapshot = merged
	snap := s.snapshot.Clone()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	capitan.Emit(ctx, StoreUpdateApplied, KeyFieldCount.Field(len(patch)))
	s.notify(subs, snap)

	processed, perr := s.pipeline.Process(ctx, &Request{Patch: patch})
	if perr != nil {
		terr := &TransportError{Op: "apply settings", Err: perr}
		s.rollback(ctx, before, "transport", start)
		s.recordFault(terr)
		capitan.Emit(ctx, StoreUpdateRolledBack, KeyError.Field(terr.Error()))
		return Outcome{}, terr
	}

	out := processed.Outcome
	if !out.Success {
		s.rollback(ctx, before, "rejected", start)
		s.recordFault(fmt.Errorf("update rejected: %s", out.Message))
		capitan.Emit(ctx, StoreUpdateRejected, KeyMessage.Field(out.Message))
		return out, nil
	}

	if _, err := s.refresh(ctx); err != nil {
		s.recordFault(err)
		s.transition(ctx, s.failureState())
		return out, err
	}

	s.lastError.Store(nil)
	s.faults.clear()
	s.transition(ctx, StateHealthy)
	capitan.Emit(ctx, StoreUpdateCommitted, KeyFieldCount.Field(len(patch)))
	if s.metrics != nil {
		s.metrics.OnUpdateSettled(s.clock.Since(start))
	}
	s.settle(ctx)
	return out, nil
}

// -----------------------------------------------------------------------------
// Remote operations without an optimistic overlay
// -----------------------------------------------------------------------------

// AddMirror validates and registers a user-created mirror, then re-derives
// the snapshot on success. Validation failures never reach the network.
func (s *Store) AddMirror(ctx context.Context, req MirrorRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	return s.mutate(ctx, "add mirror", func(ctx context.Context) (Outcome, error) {
		return s.client.AddMirror(ctx, req.Normalized())
	})
}

// RemoveMirror deletes a user-created mirror. Built-in keys are rejected
// locally; the remote store enforces the same rule for keys it cannot find.
func (s *Store) RemoveMirror(ctx context.Context, key string) (Outcome, error) {
	if !strings.HasPrefix(key, CustomMirrorPrefix) {
		return Outcome{}, &ValidationError{Field: "key", Reason: "built-in mirrors cannot be removed"}
	}
	return s.mutate(ctx, "remove mirror", func(ctx context.Context) (Outcome, error) {
		return s.client.RemoveMirror(ctx, key)
	})
}

// DeleteHistory removes one path from a history list.
func (s *Store) DeleteHistory(ctx context.Context, kind HistoryKind, path string) (Outcome, error) {
	return s.mutate(ctx, "delete history", func(ctx context.Context) (Outcome, error) {
		return s.client.DeleteHistory(ctx, kind, path)
	})
}

// ResetDownloadSettings restores the performance-related download knobs to
// their defaults through the ordinary optimistic update cycle.
func (s *Store) ResetDownloadSettings(ctx context.Context) (Outcome, error) {
	return s.Update(ctx, DownloadDefaultsPatch())
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

// refresh fetches and applies the authoritative document under sequence
// gating. It performs no state transitions; callers decide those.
func (s *Store) refresh(ctx context.Context) (Document, error) {
	seq := s.refreshSeq.Add(1)
	start := s.clock.Now()

	doc, err := s.client.FetchSettings(ctx)
	if err != nil {
		capitan.Emit(ctx, StoreRefreshFailed, KeyError.Field(err.Error()))
		return Document{}, &TransportError{Op: "fetch settings", Err: err}
	}

	s.mu.Lock()
	if seq < s.appliedSeq {
		// A newer response already won; the snapshot it produced stands.
		cur := s.snapshot.Clone()
		s.mu.Unlock()
		capitan.Emit(ctx, StoreRefreshDiscarded, KeySequence.Field(int(seq)))
		if s.metrics != nil {
			s.metrics.OnRefreshDiscarded()
		}
		return cur, nil
	}
	s.appliedSeq = seq
	s.snapshot = doc.Clone()
	s.loaded = true
	snap := s.snapshot.Clone()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	capitan.Emit(ctx, StoreRefreshed, KeySequence.Field(int(seq)))
	if s.metrics != nil {
		s.metrics.OnRefresh(s.clock.Since(start))
	}
	s.notify(subs, snap)
	return snap, nil
}

// rollback discards the optimistic overlay by re-fetching authoritative
// state. If the rollback fetch itself fails, the pre-update snapshot is
// restored so the store is never left holding an unreconciled optimistic
// value.
func (s *Store) rollback(ctx context.Context, before Document, stage string, start time.Time) {
	if _, err := s.refresh(ctx); err != nil {
		s.mu.Lock()
		s.snapshot = before
		snap := s.snapshot.Clone()
		subs := s.subscribersLocked()
		s.mu.Unlock()
		s.notify(subs, snap)
	}
	s.transition(ctx, s.failureState())
	if s.metrics != nil {
		s.metrics.OnRollback(stage, s.clock.Since(start))
	}
}

// mutate runs a remote mutation that has no optimistic overlay (mirror and
// history operations), refreshing and settling on success.
func (s *Store) mutate(ctx context.Context, op string, fn func(context.Context) (Outcome, error)) (Outcome, error) {
	start := s.clock.Now()

	out, err := fn(ctx)
	if err != nil {
		terr := &TransportError{Op: op, Err: err}
		s.recordFault(terr)
		s.transition(ctx, s.failureState())
		return Outcome{}, terr
	}
	if !out.Success {
		// Nothing changed remotely; the snapshot is still authoritative.
		return out, nil
	}

	if _, err := s.refresh(ctx); err != nil {
		s.recordFault(err)
		s.transition(ctx, s.failureState())
		return out, err
	}

	s.transition(ctx, StateHealthy)
	if s.metrics != nil {
		s.metrics.OnUpdateSettled(s.clock.Since(start))
	}
	s.settle(ctx)
	return out, nil
}

// adoptAccounts folds a freshly fetched account list into the snapshot so
// observers see it before (or independently of) the next full refresh.
func (s *Store) adoptAccounts(accounts []Account) {
	s.mu.Lock()
	s.snapshot.Accounts = append([]Account(nil), accounts...)
	snap := s.snapshot.Clone()
	subs := s.subscribersLocked()
	s.mu.Unlock()
	s.notify(subs, snap)
}

func (s *Store) settle(ctx context.Context) {
	if s.onSettled != nil {
		s.onSettled(s.Get())
	}
	capitan.Emit(ctx, StoreSettled)
}

// failureState returns the appropriate failure state based on whether an
// authoritative document has ever been obtained.
func (s *Store) failureState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return StateEmpty
	}
	return StateDegraded
}

// transition updates the state and emits a state change event if changed.
func (s *Store) transition(ctx context.Context, newState State) {
	oldState := State(s.state.Load())
	if oldState == newState {
		return
	}
	s.state.Store(int32(newState))
	capitan.Emit(ctx, StoreStateChanged,
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
	if s.metrics != nil {
		s.metrics.OnStateChange(oldState, newState)
	}
}

// recordFault stores an error atomically and adds it to the fault history.
func (s *Store) recordFault(err error) {
	e := err
	s.lastError.Store(&e)
	s.faults.push(err, s.clock.Now())
}

// subscribersLocked returns the current observers in subscription order.
// Callers must hold s.mu.
func (s *Store) subscribersLocked() []func(Document) {
	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Document), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

// notify calls observers outside the snapshot lock, each with its own clone.
func (s *Store) notify(subs []func(Document), snap Document) {
	for _, fn := range subs {
		fn(snap.Clone())
	}
}
