package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Rewrite Lifecycle Events
	EventPreRewrite  EventType = "PreRewrite"
	EventPostIndex   EventType = "PostIndex"
	EventPostRewrite EventType = "PostRewrite"

	// Output Events
	EventPreCommit  EventType = "PreCommit"
	EventPostCommit EventType = "PostCommit"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// Pre events run synchronously and may cancel the operation by returning an error.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook cancels the operation.
	// Errors from "Post" hooks are logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post-events.
	IsAsync() bool
}

// PreRewritePayload describes a rewrite pass that is about to start.
type PreRewritePayload struct {
	Source     string // path of the source dataset, empty for in-memory streams
	Mode       string // "plain" or "balanced"
	EntryCount uint32
}

// NewPreRewriteEvent creates a new event for before a rewrite pass starts.
func NewPreRewriteEvent(payload PreRewritePayload) HookEvent {
	return &BaseEvent{eventType: EventPreRewrite, payload: payload}
}

// PostIndexPayload carries the result of the classification pass.
type PostIndexPayload struct {
	Source      string
	EntryCount  uint32
	ClassCounts map[uint32]int // label -> indexed entries
}

// NewPostIndexEvent creates a new event for after the classification pass.
func NewPostIndexEvent(payload PostIndexPayload) HookEvent {
	return &BaseEvent{eventType: EventPostIndex, payload: payload}
}

// PostRewritePayload reports the outcome of a rewrite pass.
type PostRewritePayload struct {
	Source       string
	Mode         string
	EntryCount   uint32
	BytesWritten int64
	OrderDigest  uint64 // digest of the emitted entry id sequence
	Duration     time.Duration
	Error        error // The final error state of the pass.
}

// NewPostRewriteEvent creates a new event for after a rewrite pass.
func NewPostRewriteEvent(payload PostRewritePayload) HookEvent {
	return &BaseEvent{eventType: EventPostRewrite, payload: payload}
}

// CommitPayload identifies an output dataset being moved into place.
type CommitPayload struct {
	Path       string
	EntryCount uint32
	Error      error // Only set for PostCommit.
}

// NewPreCommitEvent creates a new event for before an output dataset is committed.
func NewPreCommitEvent(payload CommitPayload) HookEvent {
	return &BaseEvent{eventType: EventPreCommit, payload: payload}
}

// NewPostCommitEvent creates a new event for after an output dataset was committed or discarded.
func NewPostCommitEvent(payload CommitPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCommit, payload: payload}
}

// listenerWithPriority wraps a listener with its priority captured at registration.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	// Slices are kept sorted by priority; equal priorities keep registration order.
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := slices.IndexFunc(l, func(e *listenerWithPriority) bool {
		return e.priority > item.priority
	})
	if idx < 0 {
		idx = len(l)
	}
	m.listeners[eventType] = slices.Insert(l, idx, item)
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")
	for _, item := range listeners {
		if !isPreHook && item.listener.IsAsync() {
			m.wg.Add(1)
			go func(current *listenerWithPriority) {
				defer m.wg.Done()
				if err := current.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", current.priority, "error", err)
				}
			}(item)
			continue
		}

		if isPreHook && item.listener.IsAsync() {
			m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
		}
		if err := item.listener.OnEvent(ctx, event); err != nil {
			if isPreHook {
				return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
			}
			m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}

// NoopHookManager discards every event.
type NoopHookManager struct{}

func (NoopHookManager) Register(EventType, HookListener)         {}
func (NoopHookManager) Trigger(context.Context, HookEvent) error { return nil }
func (NoopHookManager) Stop()                                    {}
