package gimbal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Binding decouples a continuous control (slider, free-text field) from the
// network-bound update cycle. Local edits accumulate in a pending value that
// never touches the store; the pending value is committed on a trailing
// edge (pointer release, blur, Enter) via Commit, or after a quiet period
// when AutoCommit is configured.
//
// While an edit is in progress the user's value takes precedence: external
// refreshes that change the bound field are adopted only when no unflushed
// edit exists, so the store never fights the user's cursor or slider.
type Binding[T comparable] struct {
	store *Store
	field string
	read  func(Document) T
	clock clockz.Clock
	idle  time.Duration

	mu        sync.Mutex
	local     T
	committed T
	editing   bool
	started   bool

	edits       chan struct{}
	unsubscribe func()
}

// NewBinding binds a document field to a control. The field name is the
// Patch key written on commit; read extracts the field's committed value
// from a snapshot:
//
//	split := gimbal.NewBinding(store, "aria2_split", func(d gimbal.Document) int {
//	    return d.Aria2Split
//	})
func NewBinding[T comparable](store *Store, field string, read func(Document) T) *Binding[T] {
	b := &Binding[T]{
		store: store,
		field: field,
		read:  read,
		clock: clockz.RealClock,
		edits: make(chan struct{}, 1),
	}
	v := read(store.Get())
	b.local, b.committed = v, v
	b.unsubscribe = store.Subscribe(b.onSnapshot)
	return b
}

// Clock sets a custom clock for the auto-commit timer.
// Use this with clockz.FakeClock for deterministic tests.
// Must be called before Start().
func (b *Binding[T]) Clock(clock clockz.Clock) *Binding[T] {
	b.clock = clock
	return b
}

// AutoCommit flushes the pending edit after the given quiet period with no
// further local changes. Requires Start(). Must be called before Start().
func (b *Binding[T]) AutoCommit(d time.Duration) *Binding[T] {
	b.idle = d
	return b
}

// Value returns what the control should display: the in-progress local
// value while editing, the committed value otherwise.
func (b *Binding[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.editing {
		return b.local
	}
	return b.committed
}

// Editing reports whether an unflushed local edit exists.
func (b *Binding[T]) Editing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editing
}

// OnChange records a local edit. It never calls the store, so a drag or
// keystroke burst costs nothing on the network and the control is never
// reset mid-edit by concurrent snapshot changes.
func (b *Binding[T]) OnChange(v T) {
	b.mu.Lock()
	b.local = v
	b.editing = true
	b.mu.Unlock()

	if b.idle > 0 {
		select {
		case b.edits <- struct{}{}:
		default:
		}
	}
}

// Commit flushes the pending edit into the store as a single update. With
// no pending edit it is a no-op. On a committed cycle the binding adopts
// the trailing refresh's value for the field, which may differ from the
// submitted one if the server normalized it.
func (b *Binding[T]) Commit(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	if !b.editing {
		b.mu.Unlock()
		return Outcome{Success: true, Message: "no pending edit"}, nil
	}
	v := b.local
	b.mu.Unlock()

	out, err := b.store.Update(ctx, Patch{b.field: v})
	if err != nil || !out.Success {
		return out, err
	}

	b.mu.Lock()
	if b.local == v {
		// No further edits arrived during the round trip; the refreshed
		// snapshot is now the committed truth for this field.
		b.editing = false
		b.committed = b.read(b.store.Get())
		b.local = b.committed
	}
	b.mu.Unlock()

	capitan.Emit(ctx, BindingCommitted, KeyField.Field(b.field))
	return out, err
}

// Start begins the idle auto-commit loop, which coalesces rapid edits and
// flushes the pending value once the quiet period elapses. It is only
// meaningful after AutoCommit. Start can only be called once.
func (b *Binding[T]) Start(ctx context.Context) error {
	if b.idle <= 0 {
		return fmt.Errorf("auto-commit not configured")
	}
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("binding already started")
	}
	b.started = true
	b.mu.Unlock()

	go b.watch(ctx)
	return nil
}

// Close releases the store subscription.
func (b *Binding[T]) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// onSnapshot adopts externally refreshed values, but only when no local
// edit is in progress; an in-progress edit always wins.
func (b *Binding[T]) onSnapshot(doc Document) {
	v := b.read(doc)

	b.mu.Lock()
	if b.editing {
		b.mu.Unlock()
		return
	}
	changed := v != b.committed
	b.committed = v
	b.local = v
	b.mu.Unlock()

	if changed {
		capitan.Emit(context.Background(), BindingAdopted, KeyField.Field(b.field))
	}
}

// watch runs the auto-commit debounce loop.
func (b *Binding[T]) watch(ctx context.Context) {
	var timer clockz.Timer

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-b.edits:
			// Reset or start the quiet-period timer.
			if timer == nil {
				timer = b.clock.NewTimer(b.idle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(b.idle)
			}

		case <-timerC:
			_, _ = b.Commit(ctx) //nolint:errcheck // Failures are recorded by the store
		}
	}
}
