package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/INLOpen/nexusdata/hooks"
)

// DefaultMinClassFraction is the share below which a class is reported as underrepresented.
const DefaultMinClassFraction = 0.01

// ClassSkewAlerterListener logs a warning when the classification pass finds a
// class holding less than MinClassFraction of all entries. Such classes are
// drained within the first few outputs of a balanced rewrite and then vanish.
type ClassSkewAlerterListener struct {
	minFraction float64
	logger      *slog.Logger
}

// NewClassSkewAlerterListener creates a new listener. A non-positive minFraction selects the default.
func NewClassSkewAlerterListener(logger *slog.Logger, minFraction float64) *ClassSkewAlerterListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if minFraction <= 0 {
		minFraction = DefaultMinClassFraction
	}
	return &ClassSkewAlerterListener{
		minFraction: minFraction,
		logger:      logger.With("component", "ClassSkewAlerterListener"),
	}
}

// OnEvent handles the PostIndex event.
func (l *ClassSkewAlerterListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventPostIndex {
		return nil
	}

	payload, ok := event.Payload().(hooks.PostIndexPayload)
	if !ok {
		l.logger.Error("Received PostIndex event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}
	if payload.EntryCount == 0 {
		return nil
	}

	labels := make([]uint32, 0, len(payload.ClassCounts))
	for label := range payload.ClassCounts {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	for _, label := range labels {
		count := payload.ClassCounts[label]
		fraction := float64(count) / float64(payload.EntryCount)
		if fraction < l.minFraction {
			l.logger.Warn("Class is underrepresented",
				"source", payload.Source,
				"label", label,
				"entries", count,
				"fraction", fraction,
				"min_fraction", l.minFraction,
			)
		}
	}
	return nil
}

// Priority defines the execution order.
func (l *ClassSkewAlerterListener) Priority() int { return 100 }

// IsAsync indicates this listener can run in the background.
func (l *ClassSkewAlerterListener) IsAsync() bool { return true }
