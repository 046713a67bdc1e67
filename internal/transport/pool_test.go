package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akozma/mailcore/internal/testutil"
)

func testCredentials(server *testutil.TestSMTPServer) Credentials {
	host, port := server.HostPort()
	return Credentials{
		Host:     host,
		Port:     port,
		Username: server.Username(),
		Password: server.Password(),
	}
}

func testMessage(n int) *Message {
	return &Message{
		From:       "sender@example.com",
		Recipients: []string{"recipient@example.com"},
		Raw:        []byte(fmt.Sprintf("Subject: test %d\r\n\r\nbody %d\r\n", n, n)),
	}
}

func TestPoolSend(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	pool := NewPool()
	defer pool.Close()

	ctx := context.Background()
	creds := testCredentials(server)

	if err := pool.Send(ctx, creds, testMessage(1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := pool.Send(ctx, creds, testMessage(2)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := server.GetMessages()
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].From != "sender@example.com" {
		t.Errorf("Expected envelope from sender@example.com, got %s", messages[0].From)
	}
	if !strings.Contains(string(messages[0].Data), "body 1") {
		t.Errorf("First message body mismatch: %q", messages[0].Data)
	}
}

func TestPoolCyclesConnection(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	// Cycle after every 2 messages; all sends must still land.
	pool := NewPoolWithLimits(2, 5*time.Second)
	defer pool.Close()

	ctx := context.Background()
	creds := testCredentials(server)

	for i := 0; i < 5; i++ {
		if err := pool.Send(ctx, creds, testMessage(i)); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	if got := len(server.GetMessages()); got != 5 {
		t.Errorf("Expected 5 messages across cycled connections, got %d", got)
	}
}

func TestPoolSerializesConcurrentSends(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	pool := NewPool()
	defer pool.Close()

	ctx := context.Background()
	creds := testCredentials(server)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- pool.Send(ctx, creds, testMessage(n))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent send failed: %v", err)
		}
	}

	if got := len(server.GetMessages()); got != 10 {
		t.Errorf("Expected 10 messages, got %d", got)
	}
}

func TestPoolFailsFastOnDeadServer(t *testing.T) {
	pool := NewPoolWithLimits(0, 500*time.Millisecond)
	defer pool.Close()

	creds := Credentials{Host: "127.0.0.1", Port: 1, Username: "user", Password: "pass"}

	start := time.Now()
	err := pool.Send(context.Background(), creds, testMessage(1))
	if err == nil {
		t.Fatal("Expected error dialing a dead port")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Send took %v, expected a bounded fast failure", elapsed)
	}
}

func TestPoolRejectsCancelledContext(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creds := Credentials{Host: "127.0.0.1", Port: 2525, Username: "user"}
	if err := pool.Send(ctx, creds, testMessage(1)); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}
