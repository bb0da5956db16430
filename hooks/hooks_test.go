package hooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// mockListener is a mock implementation of HookListener for testing.
type mockListener struct {
	priority int
	// Signalled when OnEvent is called, for async tests.
	callSignal chan string
	// Records the order of calls, for sync tests.
	callOrder *[]string
	name      string
	returnErr error
	isAsync   bool
	// Executed inside OnEvent to inspect the payload.
	onEventFunc func(event HookEvent)
	workDelay   time.Duration
}

func (m *mockListener) OnEvent(ctx context.Context, event HookEvent) error {
	if m.workDelay > 0 {
		time.Sleep(m.workDelay)
	}
	if m.onEventFunc != nil {
		m.onEventFunc(event)
	}
	if m.callOrder != nil {
		*m.callOrder = append(*m.callOrder, m.name)
	}
	if m.callSignal != nil {
		m.callSignal <- m.name
	}
	return m.returnErr
}

func (m *mockListener) Priority() int { return m.priority }
func (m *mockListener) IsAsync() bool { return m.isAsync }

func TestNewHookManager(t *testing.T) {
	manager := NewHookManager(nil)
	defaultManager, ok := manager.(*DefaultHookManager)
	if !ok {
		t.Fatalf("NewHookManager did not return a *DefaultHookManager")
	}
	if defaultManager.listeners == nil {
		t.Error("Expected listeners map to be initialized, but it was nil")
	}
	if defaultManager.logger == nil {
		t.Error("Expected logger to be initialized, but it was nil")
	}
}

func TestDefaultHookManager_Register(t *testing.T) {
	manager := NewHookManager(nil).(*DefaultHookManager)

	manager.Register(EventPreRewrite, &mockListener{name: "p10", priority: 10})
	manager.Register(EventPreRewrite, &mockListener{name: "p1", priority: 1})
	manager.Register(EventPreRewrite, &mockListener{name: "p5a", priority: 5})
	manager.Register(EventPreRewrite, &mockListener{name: "p5b", priority: 5})

	listeners := manager.listeners[EventPreRewrite]
	want := []string{"p1", "p5a", "p5b", "p10"}
	if len(listeners) != len(want) {
		t.Fatalf("Expected %d listeners to be registered, got %d", len(want), len(listeners))
	}
	for i, name := range want {
		if got := listeners[i].listener.(*mockListener).name; got != name {
			t.Errorf("Listener order mismatch at index %d. Got %s, want %s", i, got, name)
		}
	}
}

func TestDefaultHookManager_Trigger(t *testing.T) {
	t.Run("PreHook", func(t *testing.T) {
		t.Run("should execute in priority order synchronously", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			manager.Register(EventPreRewrite, &mockListener{name: "listener1", priority: 10, callOrder: &callOrder})
			manager.Register(EventPreRewrite, &mockListener{name: "listener2", priority: 1, callOrder: &callOrder})
			manager.Register(EventPreRewrite, &mockListener{name: "listener3", priority: 5, callOrder: &callOrder})

			if err := manager.Trigger(context.Background(), NewPreRewriteEvent(PreRewritePayload{Mode: "plain"})); err != nil {
				t.Fatalf("Trigger returned an unexpected error: %v", err)
			}

			expectedOrder := []string{"listener2", "listener3", "listener1"}
			if len(callOrder) != len(expectedOrder) {
				t.Fatalf("Expected %d listeners to be called, but %d were", len(expectedOrder), len(callOrder))
			}
			for i, name := range expectedOrder {
				if callOrder[i] != name {
					t.Errorf("Call order mismatch at index %d. Got %s, want %s", i, callOrder[i], name)
				}
			}
		})

		t.Run("should stop execution and return error on failure", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			simulatedErr := errors.New("dataset is frozen")

			manager.Register(EventPreRewrite, &mockListener{name: "p10", priority: 10, callOrder: &callOrder})
			manager.Register(EventPreRewrite, &mockListener{name: "p1", priority: 1, callOrder: &callOrder})
			manager.Register(EventPreRewrite, &mockListener{name: "p5_err", priority: 5, callOrder: &callOrder, returnErr: simulatedErr})

			err := manager.Trigger(context.Background(), NewPreRewriteEvent(PreRewritePayload{}))
			if !errors.Is(err, simulatedErr) {
				t.Fatalf("Trigger returned wrong error. Got %v, want %v", err, simulatedErr)
			}
			if len(callOrder) != 2 || callOrder[1] != "p5_err" {
				t.Fatalf("Expected execution to stop at the failing listener. Called: %v", callOrder)
			}
		})

		t.Run("should ignore async flag and run synchronously", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			manager.Register(EventPreCommit, &mockListener{name: "pre_async", priority: 1, isAsync: true, callOrder: &callOrder})

			if err := manager.Trigger(context.Background(), NewPreCommitEvent(CommitPayload{Path: "out.sds"})); err != nil {
				t.Fatalf("Trigger returned an unexpected error: %v", err)
			}
			if len(callOrder) != 1 || callOrder[0] != "pre_async" {
				t.Errorf("Expected pre-hook to run synchronously despite async flag. Call order: %v", callOrder)
			}
		})
	})

	t.Run("PostHook", func(t *testing.T) {
		t.Run("should execute async and sync listeners correctly", func(t *testing.T) {
			manager := NewHookManager(nil)
			signalChan := make(chan string, 1)
			callOrder := make([]string, 0)

			manager.Register(EventPostIndex, &mockListener{name: "post_async", priority: 10, isAsync: true, callSignal: signalChan})
			manager.Register(EventPostIndex, &mockListener{name: "post_sync", priority: 1, callOrder: &callOrder})

			event := NewPostIndexEvent(PostIndexPayload{EntryCount: 3, ClassCounts: map[uint32]int{0: 2, 1: 1}})
			if err := manager.Trigger(context.Background(), event); err != nil {
				t.Fatalf("Trigger returned an unexpected error for post-hook: %v", err)
			}
			if len(callOrder) != 1 || callOrder[0] != "post_sync" {
				t.Errorf("Expected synchronous listener to be called immediately. Got call order: %v", callOrder)
			}

			select {
			case name := <-signalChan:
				if name != "post_async" {
					t.Errorf("Received signal from wrong listener. Got %s", name)
				}
			case <-time.After(time.Second):
				t.Fatal("Timed out waiting for async listener to be called")
			}
			manager.Stop()
		})

		t.Run("should not return error from sync listener and continue execution", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)

			manager.Register(EventPostRewrite, &mockListener{name: "p1_err", priority: 1, callOrder: &callOrder, returnErr: errors.New("post hook error")})
			manager.Register(EventPostRewrite, &mockListener{name: "p5", priority: 5, callOrder: &callOrder})

			if err := manager.Trigger(context.Background(), NewPostRewriteEvent(PostRewritePayload{})); err != nil {
				t.Fatalf("Trigger should not return error for post-hook failures, but got: %v", err)
			}
			if len(callOrder) != 2 {
				t.Fatalf("Expected all listeners to be called. Called: %v", callOrder)
			}
		})

		t.Run("should deliver payload", func(t *testing.T) {
			manager := NewHookManager(nil)
			var got PostRewritePayload
			manager.Register(EventPostRewrite, &mockListener{priority: 1, onEventFunc: func(event HookEvent) {
				got = event.Payload().(PostRewritePayload)
			}})

			want := PostRewritePayload{Source: "train.sds", Mode: "balanced", EntryCount: 10, BytesWritten: 420}
			if err := manager.Trigger(context.Background(), NewPostRewriteEvent(want)); err != nil {
				t.Fatalf("Trigger returned an unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("Payload mismatch. Got %+v, want %+v", got, want)
			}
		})
	})

	t.Run("General", func(t *testing.T) {
		logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
		manager := NewHookManager(logger)
		if err := manager.Trigger(context.Background(), NewPreRewriteEvent(PreRewritePayload{})); err != nil {
			t.Fatalf("Trigger returned an unexpected error when no listeners are registered: %v", err)
		}
		if err := (NoopHookManager{}).Trigger(context.Background(), NewPostCommitEvent(CommitPayload{})); err != nil {
			t.Fatalf("NoopHookManager returned an error: %v", err)
		}
	})
}

func TestDefaultHookManager_Stop(t *testing.T) {
	manager := NewHookManager(nil)
	var completed atomic.Int32
	delay := 50 * time.Millisecond

	for i := 0; i < 3; i++ {
		manager.Register(EventPostCommit, &mockListener{
			priority:    i,
			isAsync:     true,
			workDelay:   delay,
			onEventFunc: func(HookEvent) { completed.Add(1) },
		})
	}
	_ = manager.Trigger(context.Background(), NewPostCommitEvent(CommitPayload{Path: "out.sds"}))

	startTime := time.Now()
	manager.Stop()
	if since := time.Since(startTime); since > 5*delay {
		t.Errorf("Stop() took %v, listeners should have run concurrently", since)
	}
	if got := completed.Load(); got != 3 {
		t.Errorf("Expected 3 listeners to complete before Stop() returned, got %d", got)
	}
}

func BenchmarkTrigger_PreHook_10_Listeners(b *testing.B) {
	manager := NewHookManager(nil)
	for i := 0; i < 10; i++ {
		manager.Register(EventPreRewrite, &mockListener{name: "l", priority: i})
	}
	event := NewPreRewriteEvent(PreRewritePayload{})
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = manager.Trigger(ctx, event)
	}
}
