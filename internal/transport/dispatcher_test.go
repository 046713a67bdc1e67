package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

// fakeSender scripts a sequence of send outcomes.
type fakeSender struct {
	errs  []error
	calls int
}

func (f *fakeSender) Send(_ context.Context, _ Credentials, _ *Message) error {
	f.calls++
	if f.calls <= len(f.errs) {
		return f.errs[f.calls-1]
	}
	return nil
}

func newTestDispatcher(sender Sender, maxAttempts int) *Dispatcher {
	return NewDispatcherWithPolicy(sender, maxAttempts, time.Millisecond, 5*time.Millisecond)
}

func TestSendWithRetry(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{Host: "smtp.example.com", Port: 587, Username: "user"}
	msg := &Message{From: "a@example.com", Recipients: []string{"b@example.com"}, Raw: []byte("data")}

	t.Run("succeeds first attempt", func(t *testing.T) {
		sender := &fakeSender{}
		result, err := newTestDispatcher(sender, 3).SendWithRetry(ctx, creds, msg)
		if err != nil {
			t.Fatalf("SendWithRetry failed: %v", err)
		}
		if result.Attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", result.Attempts)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		sender := &fakeSender{errs: []error{
			errors.New("421 too many connections"),
			errors.New("connection reset by peer"),
		}}
		result, err := newTestDispatcher(sender, 3).SendWithRetry(ctx, creds, msg)
		if err != nil {
			t.Fatalf("SendWithRetry failed: %v", err)
		}
		if result.Attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", result.Attempts)
		}
	})

	t.Run("exhausts attempts on persistent transient failure", func(t *testing.T) {
		sender := &fakeSender{errs: []error{
			errors.New("i/o timeout"),
			errors.New("i/o timeout"),
			errors.New("i/o timeout"),
		}}
		_, err := newTestDispatcher(sender, 3).SendWithRetry(ctx, creds, msg)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}

		var dispatchErr *DispatchError
		if !errors.As(err, &dispatchErr) {
			t.Fatalf("Expected DispatchError, got %T", err)
		}
		if dispatchErr.Attempts != 3 {
			t.Errorf("Expected 3 attempts recorded, got %d", dispatchErr.Attempts)
		}
		if sender.calls != 3 {
			t.Errorf("Expected 3 sends, got %d", sender.calls)
		}
	})

	t.Run("terminal error propagates immediately", func(t *testing.T) {
		terminal := &smtp.SMTPError{Code: 550, Message: "mailbox unavailable"}
		sender := &fakeSender{errs: []error{terminal}}
		_, err := newTestDispatcher(sender, 3).SendWithRetry(ctx, creds, msg)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if sender.calls != 1 {
			t.Errorf("Expected 1 send for a terminal error, got %d", sender.calls)
		}

		var dispatchErr *DispatchError
		if errors.As(err, &dispatchErr) {
			t.Error("Terminal errors must not be wrapped in DispatchError")
		}
	})

	t.Run("smtp 4xx is retried", func(t *testing.T) {
		transient := &smtp.SMTPError{Code: 451, Message: "try again later"}
		sender := &fakeSender{errs: []error{transient}}
		result, err := newTestDispatcher(sender, 3).SendWithRetry(ctx, creds, msg)
		if err != nil {
			t.Fatalf("SendWithRetry failed: %v", err)
		}
		if result.Attempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", result.Attempts)
		}
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		sender := &fakeSender{errs: []error{errors.New("i/o timeout"), errors.New("i/o timeout")}}
		_, err := newTestDispatcher(sender, 3).SendWithRetry(cancelCtx, creds, msg)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if sender.calls != 1 {
			t.Errorf("Expected 1 send before cancellation was observed, got %d", sender.calls)
		}
	})
}

func TestBackoffGrowth(t *testing.T) {
	d := NewDispatcherWithPolicy(&fakeSender{}, 5, 500*time.Millisecond, 10*time.Second)

	expected := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, want := range expected {
		if got := d.backoff(i + 1); got != want {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, want)
		}
	}

	// Capped once doubling passes the ceiling.
	if got := d.backoff(7); got != 10*time.Second {
		t.Errorf("backoff(7) = %v, want cap 10s", got)
	}
}
