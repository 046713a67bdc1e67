package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterCheck(t *testing.T) {
	now := time.Now()

	t.Run("empty ledger allows sending", func(t *testing.T) {
		l := NewLimiterWithLimits(5, 10)
		status := l.Check("client-1")

		if !status.CanSend {
			t.Error("Expected CanSend with an empty ledger")
		}
		if status.RemainingHourly != 5 || status.RemainingDaily != 10 {
			t.Errorf("Unexpected remaining: %d/%d", status.RemainingHourly, status.RemainingDaily)
		}
	})

	t.Run("hourly ceiling blocks sending", func(t *testing.T) {
		l := NewLimiterWithLimits(5, 10)
		l.Record("client-1", 5)

		status := l.Check("client-1")
		if status.CanSend {
			t.Error("Expected CanSend=false at the hourly ceiling")
		}
		if status.Hourly != 5 {
			t.Errorf("Expected hourly 5, got %d", status.Hourly)
		}
		if status.RemainingHourly != 0 {
			t.Errorf("Expected 0 remaining hourly, got %d", status.RemainingHourly)
		}
	})

	t.Run("clients are independent", func(t *testing.T) {
		l := NewLimiterWithLimits(5, 10)
		l.Record("client-1", 5)

		if status := l.Check("client-2"); !status.CanSend {
			t.Error("Expected client-2 unaffected by client-1's ledger")
		}
	})

	t.Run("hourly window slides", func(t *testing.T) {
		l := NewLimiterWithLimits(5, 10)
		l.now = func() time.Time { return now }
		l.Record("client-1", 5)

		// 61 minutes later the sends leave the hourly window but remain in
		// the daily one.
		l.now = func() time.Time { return now.Add(61 * time.Minute) }
		status := l.Check("client-1")

		if status.Hourly != 0 {
			t.Errorf("Expected hourly 0 after window slid, got %d", status.Hourly)
		}
		if status.Daily != 5 {
			t.Errorf("Expected daily 5, got %d", status.Daily)
		}
		if !status.CanSend {
			t.Error("Expected CanSend after hourly window slid")
		}
	})

	t.Run("daily entries pruned after 24h", func(t *testing.T) {
		l := NewLimiterWithLimits(5, 10)
		l.now = func() time.Time { return now }
		l.Record("client-1", 10)

		l.now = func() time.Time { return now.Add(25 * time.Hour) }
		status := l.Check("client-1")

		if status.Daily != 0 {
			t.Errorf("Expected daily 0 after pruning, got %d", status.Daily)
		}
		if !status.CanSend {
			t.Error("Expected CanSend after pruning")
		}
	})

	t.Run("daily ceiling blocks independently of hourly", func(t *testing.T) {
		l := NewLimiterWithLimits(100, 10)
		l.now = func() time.Time { return now }
		l.Record("client-1", 10)

		l.now = func() time.Time { return now.Add(2 * time.Hour) }
		status := l.Check("client-1")

		if status.Hourly != 0 {
			t.Errorf("Expected hourly 0, got %d", status.Hourly)
		}
		if status.CanSend {
			t.Error("Expected CanSend=false at the daily ceiling")
		}
	})
}

func TestLimiterConcurrentRecord(t *testing.T) {
	l := NewLimiter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("client-1", 5)
			l.Check("client-1")
		}()
	}
	wg.Wait()

	if status := l.Check("client-1"); status.Daily != 100 {
		t.Errorf("Expected 100 recorded sends, got %d", status.Daily)
	}
}
