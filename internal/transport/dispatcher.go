package transport

import (
	"context"
	"log"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 10 * time.Second
)

// Dispatcher wraps a Sender with bounded retry and exponential backoff for
// transient provider errors. This is the only layer that decides retry
// policy; neither the pool below nor the callers above retry on their own,
// so backoff storms cannot compound.
type Dispatcher struct {
	sender      Sender
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// DeliveryResult describes a successful dispatch.
type DeliveryResult struct {
	Attempts    int
	DeliveredAt time.Time
}

// NewDispatcher creates a Dispatcher with default retry policy.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}
}

// NewDispatcherWithPolicy creates a Dispatcher with explicit retry policy.
func NewDispatcherWithPolicy(sender Sender, maxAttempts int, backoffBase, backoffCap time.Duration) *Dispatcher {
	d := NewDispatcher(sender)
	if maxAttempts > 0 {
		d.maxAttempts = maxAttempts
	}
	if backoffBase > 0 {
		d.backoffBase = backoffBase
	}
	if backoffCap > 0 {
		d.backoffCap = backoffCap
	}
	return d
}

// SendWithRetry delivers a message, retrying transient failures with
// exponential backoff: wait = min(base * 2^(attempt-1), cap). Terminal
// errors (bad recipient, auth failure, content rejection) propagate
// immediately. After the final attempt a *DispatchError wraps the last
// transient error.
func (d *Dispatcher) SendWithRetry(ctx context.Context, creds Credentials, msg *Message) (*DeliveryResult, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.sender.Send(ctx, creds, msg)
		if err == nil {
			return &DeliveryResult{Attempts: attempt, DeliveredAt: time.Now()}, nil
		}

		if !IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt == d.maxAttempts {
			break
		}

		wait := d.backoff(attempt)
		log.Printf("Dispatcher: attempt %d/%d failed (%v), retrying in %s", attempt, d.maxAttempts, err, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &DispatchError{Attempts: d.maxAttempts, Err: lastErr}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.backoffBase << (attempt - 1)
	if wait > d.backoffCap || wait <= 0 {
		wait = d.backoffCap
	}
	return wait
}
