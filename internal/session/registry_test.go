package session

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSameChatSerialized(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	const workers = 16
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			r.Do(ctx, "chat-1", func() error {
				// Unsynchronized increment; the registry is the only guard.
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("lost updates: counter=%d, want %d", counter, workers)
	}
}

func TestDistinctChatsRunConcurrently(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Do(ctx, "chat-a", func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	// chat-b must not wait on chat-a's lock.
	done := make(chan struct{})
	go func() {
		r.Do(ctx, "chat-b", func() error { return nil })
		close(done)
	}()
	<-done

	close(release)
	wg.Wait()
}

func TestDoCancelledContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := r.Do(ctx, "chat-1", func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if called {
		t.Fatal("fn must not run after cancellation")
	}
}
