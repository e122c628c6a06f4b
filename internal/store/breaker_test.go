package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"xau-signal/internal/model"
	"xau-signal/internal/store/memory"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 100*time.Millisecond)
	errFail := errors.New("fail")

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errFail })
		if err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	err := cb.Execute(func() error { return nil })
	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)

	errFail := errors.New("fail")
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}
	if cb.CurrentState() != StateOpen {
		t.Fatal("expected Open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)
	errFail := errors.New("fail")

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	time.Sleep(60 * time.Millisecond)
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_IgnoresMissingSheet(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.Execute(func() error { return model.ErrSheetNotFound })
	cb.Execute(func() error { return context.Canceled })
	if cb.CurrentState() != StateClosed {
		t.Errorf("missing sheet and cancellation must not trip the breaker, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker(1, 50*time.Millisecond)
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, to)
	}

	cb.Execute(func() error { return errors.New("fail") })

	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected [Open], got %v", transitions)
	}

	time.Sleep(60 * time.Millisecond)
	cb.Execute(func() error { return nil })

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %v", len(transitions), transitions)
	}
	if transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Errorf("expected [Open, HalfOpen, Closed], got %v", transitions)
	}
}

type failingTable struct{ calls int }

func (f *failingTable) ReadAll(ctx context.Context) ([][]string, error) {
	f.calls++
	return nil, errors.New("unreachable")
}

func (f *failingTable) Overwrite(ctx context.Context, records [][]string) error {
	f.calls++
	return errors.New("unreachable")
}

func TestGuardedTable_FailsFast(t *testing.T) {
	inner := &failingTable{}
	g := Guard(inner, NewCircuitBreaker(2, time.Minute))
	ctx := context.Background()

	g.ReadAll(ctx)
	g.Overwrite(ctx, nil)
	if _, err := g.ReadAll(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected inner table to be called twice, got %d", inner.calls)
	}
}

func TestGuardedTable_PassThrough(t *testing.T) {
	ctx := context.Background()
	g := Guard(memory.NewTable(), NewCircuitBreaker(1, time.Minute))

	if _, err := g.ReadAll(ctx); !errors.Is(err, model.ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
	if err := g.Overwrite(ctx, [][]string{{"x"}}); err != nil {
		t.Fatal(err)
	}
	got, err := g.ReadAll(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
	if g.Breaker().CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", g.Breaker().CurrentState())
	}
}
