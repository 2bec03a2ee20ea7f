package gimbal

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func countingAction(count *atomic.Int32) Action {
	return func(ctx context.Context) (Outcome, error) {
		count.Add(1)
		return Outcome{Success: true, Message: "done"}, nil
	}
}

func TestGateConfirmRunsActionExactlyOnce(t *testing.T) {
	g := NewGate()
	var ran atomic.Int32

	g.Open(context.Background(), Prompt{Title: "Delete account?"}, countingAction(&ran))
	if g.State() != GatePending {
		t.Fatalf("expected pending state, got %s", g.State())
	}

	out, err := g.Confirm(context.Background())
	if err != nil || !out.Success {
		t.Fatalf("confirm failed: out=%+v err=%v", out, err)
	}
	if ran.Load() != 1 {
		t.Fatalf("expected action to run once, ran %d times", ran.Load())
	}

	// A second confirm finds nothing armed.
	if _, err := g.Confirm(context.Background()); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	if ran.Load() != 1 {
		t.Errorf("double confirm reran the action: %d", ran.Load())
	}
}

func TestGateCancelNeverRunsAction(t *testing.T) {
	g := NewGate()
	var ran atomic.Int32

	for i := 0; i < 3; i++ {
		g.Open(context.Background(), Prompt{Title: "Remove mirror?"}, countingAction(&ran))
		g.Cancel(context.Background())
	}

	if ran.Load() != 0 {
		t.Errorf("cancelled action ran %d times", ran.Load())
	}
	if g.State() != GateIdle {
		t.Errorf("expected idle state, got %s", g.State())
	}
	if _, err := g.Confirm(context.Background()); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending after cancel, got %v", err)
	}
}

func TestGateOpenReplacesPendingAction(t *testing.T) {
	g := NewGate()
	var first, second atomic.Int32

	g.Open(context.Background(), Prompt{Title: "first"}, countingAction(&first))
	g.Open(context.Background(), Prompt{Title: "second"}, countingAction(&second))

	prompt, pending := g.Pending()
	if !pending || prompt.Title != "second" {
		t.Fatalf("expected second prompt pending, got %+v pending=%v", prompt, pending)
	}

	if _, err := g.Confirm(context.Background()); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if first.Load() != 0 {
		t.Errorf("replaced action ran %d times", first.Load())
	}
	if second.Load() != 1 {
		t.Errorf("expected replacement action once, ran %d times", second.Load())
	}
}

func TestGatePrompterReceivesPrompt(t *testing.T) {
	var shown Prompt
	g := NewGate().Prompter(func(p Prompt) {
		shown = p
	})

	g.Open(context.Background(), Prompt{Title: "Clean logs?", Message: "This cannot be undone."}, func(ctx context.Context) (Outcome, error) {
		return Outcome{Success: true}, nil
	})

	if shown.Title != "Clean logs?" || shown.Message != "This cannot be undone." {
		t.Errorf("prompter got %+v", shown)
	}
}

func TestGateConfirmPropagatesActionResult(t *testing.T) {
	g := NewGate()

	g.Open(context.Background(), Prompt{Title: "Delete?"}, func(ctx context.Context) (Outcome, error) {
		return Outcome{Success: false, Message: "Account not found"}, nil
	})
	out, err := g.Confirm(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Success || out.Message != "Account not found" {
		t.Errorf("expected rejection passed through, got %+v", out)
	}

	wantErr := errors.New("boom")
	g.Open(context.Background(), Prompt{Title: "Delete?"}, func(ctx context.Context) (Outcome, error) {
		return Outcome{}, wantErr
	})
	if _, err := g.Confirm(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("expected action error passed through, got %v", err)
	}
	if g.State() != GateIdle {
		t.Errorf("expected idle state even when the action fails, got %s", g.State())
	}
}
