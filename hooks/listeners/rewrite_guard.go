package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/INLOpen/nexusdata/hooks"
)

// GuardRules bounds which rewrite passes may start.
type GuardRules struct {
	// MaxEntries rejects datasets with more entries than this (0 disables the check).
	MaxEntries uint32
	// AllowedModes restricts the rewrite mode (empty allows every mode).
	AllowedModes []string
}

// RewriteGuardListener cancels rewrite passes that violate its rules.
type RewriteGuardListener struct {
	rules  GuardRules
	logger *slog.Logger
}

func NewRewriteGuardListener(logger *slog.Logger, rules GuardRules) *RewriteGuardListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RewriteGuardListener{
		rules:  rules,
		logger: logger.With("component", "RewriteGuardListener"),
	}
}

// OnEvent handles the PreRewrite event. A returned error cancels the pass.
func (l *RewriteGuardListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPreRewrite {
		return nil
	}
	payload, ok := event.Payload().(hooks.PreRewritePayload)
	if !ok {
		l.logger.Error("Received PreRewrite event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	if l.rules.MaxEntries > 0 && payload.EntryCount > l.rules.MaxEntries {
		l.logger.Warn("Rewrite rejected", "source", payload.Source, "entries", payload.EntryCount, "max_entries", l.rules.MaxEntries)
		return fmt.Errorf("dataset %s has %d entries, limit is %d", payload.Source, payload.EntryCount, l.rules.MaxEntries)
	}
	if len(l.rules.AllowedModes) > 0 && !slices.Contains(l.rules.AllowedModes, payload.Mode) {
		l.logger.Warn("Rewrite rejected", "source", payload.Source, "mode", payload.Mode)
		return fmt.Errorf("rewrite mode %q is not allowed", payload.Mode)
	}
	return nil
}

func (l *RewriteGuardListener) Priority() int { return 10 }

// IsAsync is false: pre-hooks must run synchronously to cancel.
func (l *RewriteGuardListener) IsAsync() bool { return false }
