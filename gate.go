package gimbal

import (
	"context"
	"errors"
	"sync"

	"github.com/zoobzio/capitan"
)

// ErrNotPending is returned by Confirm when no confirmation is pending.
var ErrNotPending = errors.New("gimbal: no pending confirmation")

// GateState represents the current state of a Gate.
type GateState int32

const (
	// GateIdle indicates no confirmation is pending.
	GateIdle GateState = iota

	// GatePending indicates a confirmation prompt is shown and the wrapped
	// action is armed but has not run.
	GatePending
)

// String returns the string representation of the state.
func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GatePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Prompt is the caller-supplied confirmation text shown before a gated
// action may run.
type Prompt struct {
	Title   string
	Message string
}

// Action is an arbitrary asynchronous operation armed behind a Gate:
// delete an account, remove a mirror, clean logs.
type Action func(ctx context.Context) (Outcome, error)

// Gate wraps a destructive operation behind an explicit confirmation step.
// Its contract: the wrapped action runs if and only if Confirm is called
// while the gate is pending, and it runs exactly once per confirmation.
// Only one action may be pending at a time; opening the gate again replaces
// the pending action rather than stacking confirmations.
type Gate struct {
	mu       sync.Mutex
	state    GateState
	prompt   Prompt
	action   Action
	prompter func(Prompt)
}

// NewGate creates an idle Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Prompter sets the presentation callback invoked with the prompt whenever
// the gate opens. Must be called before use.
func (g *Gate) Prompter(fn func(Prompt)) *Gate {
	g.prompter = fn
	return g
}

// Open arms an action behind a confirmation prompt. An already pending
// action is replaced, never stacked.
func (g *Gate) Open(ctx context.Context, prompt Prompt, action Action) {
	g.mu.Lock()
	g.state = GatePending
	g.prompt = prompt
	g.action = action
	prompter := g.prompter
	g.mu.Unlock()

	capitan.Emit(ctx, GateOpened, KeyTitle.Field(prompt.Title))
	if prompter != nil {
		prompter(prompt)
	}
}

// Confirm runs the pending action exactly once and returns the gate to
// idle. Returns ErrNotPending when nothing is armed, so a double confirm
// cannot run the action twice.
func (g *Gate) Confirm(ctx context.Context) (Outcome, error) {
	g.mu.Lock()
	if g.state != GatePending {
		g.mu.Unlock()
		return Outcome{}, ErrNotPending
	}
	action := g.action
	title := g.prompt.Title
	g.state = GateIdle
	g.action = nil
	g.prompt = Prompt{}
	g.mu.Unlock()

	capitan.Emit(ctx, GateConfirmed, KeyTitle.Field(title))
	return action(ctx)
}

// Cancel dismisses the pending confirmation without running the action.
// Cancelling an idle gate is a no-op.
func (g *Gate) Cancel(ctx context.Context) {
	g.mu.Lock()
	if g.state != GatePending {
		g.mu.Unlock()
		return
	}
	title := g.prompt.Title
	g.state = GateIdle
	g.action = nil
	g.prompt = Prompt{}
	g.mu.Unlock()

	capitan.Emit(ctx, GateCancelled, KeyTitle.Field(title))
}

// State returns the current state of the Gate.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the active prompt, if any.
func (g *Gate) Pending() (Prompt, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompt, g.state == GatePending
}
