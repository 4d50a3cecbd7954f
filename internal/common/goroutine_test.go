package common

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestSafeGoRecoversPanic(t *testing.T) {
	ran := make(chan struct{})

	// If the recover wrapper were missing this panic would kill the test
	// process instead of being logged
	SafeGo(arbor.NewLogger(), "panicking", func() {
		defer close(ran)
		panic("boom")
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}

	done := make(chan struct{})
	SafeGo(arbor.NewLogger(), "normal", func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine after recovered panic never ran")
	}
}

func TestSafeGoWithContextRunsFunction(t *testing.T) {
	done := make(chan struct{})

	SafeGoWithContext(context.Background(), arbor.NewLogger(), "normal", func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never ran")
	}
}

func TestSafeGoWithContextSkipsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := make(chan struct{})
	SafeGoWithContext(ctx, arbor.NewLogger(), "cancelled", func() {
		close(ran)
	})

	select {
	case <-ran:
		t.Fatal("goroutine ran despite cancelled context")
	case <-time.After(100 * time.Millisecond):
	}
}
