package shuffle

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
	"github.com/INLOpen/nexusdata/hooks"
	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Mode selects the reordering policy of a rewrite pass.
type Mode string

const (
	ModePlain    Mode = "plain"
	ModeBalanced Mode = "balanced"
)

// ParseMode resolves a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePlain, ModeBalanced:
		return Mode(s), nil
	case "":
		return ModeBalanced, nil
	default:
		return "", &core.ValidationError{Field: "mode", Value: s, Message: "expected plain or balanced"}
	}
}

// Options holds the collaborators of a Rewriter. Every field is optional.
type Options struct {
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Metrics     *Metrics
	HookManager hooks.HookManager
}

// Result summarizes a completed rewrite pass.
type Result struct {
	Mode         Mode
	EntryCount   uint32
	BytesWritten int64
	// ClassCounts is only set for balanced passes.
	ClassCounts map[uint32]int
	// OrderDigest fingerprints the emitted entry id sequence. Two passes with
	// the same seed over the same input produce the same digest.
	OrderDigest uint64
	Duration    time.Duration
}

// Rewriter copies a dataset into a new entry order. Every stored record is
// re-read from the source by position and appended verbatim to the sink, so
// memory is bounded by the entry count, never by payload size.
//
// A pass is synchronous and cannot be interrupted; ctx only carries tracing
// and hook state. On failure the sink content must be discarded. The source
// is rewound to its first entry when a pass ends, successfully or not.
type Rewriter struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	hooks   hooks.HookManager
}

func NewRewriter(opts Options) *Rewriter {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("shuffle")
	}
	if opts.HookManager == nil {
		opts.HookManager = hooks.NoopHookManager{}
	}
	return &Rewriter{
		logger:  opts.Logger.With("component", "Rewriter"),
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
		hooks:   opts.HookManager,
	}
}

// orderFunc yields entry ids in output order until ok is false.
type orderFunc func() (entryID uint32, ok bool, err error)

// WriteRandomized writes every entry of src to dst in a uniformly random order.
func (rw *Rewriter) WriteRandomized(ctx context.Context, src Source, dst Sink, rnd Rand) (*Result, error) {
	ctx, span := rw.tracer.Start(ctx, "Rewriter.WriteRandomized")
	defer span.End()

	return rw.rewrite(ctx, span, ModePlain, src, dst, func(ctx context.Context, res *Result) (positionFunc, orderFunc, error) {
		_, indexSpan := rw.tracer.Start(ctx, "Rewriter.index")
		positions, err := indexPositions(src)
		indexSpan.SetAttributes(attribute.Int("entries", len(positions)))
		indexSpan.End()
		if err != nil {
			return nil, nil, err
		}
		rw.metrics.AddIndexed(ModePlain, len(positions))

		order := make([]uint32, len(positions))
		for i := range order {
			order[i] = uint32(i)
		}
		permute(order, rnd)

		position := func(id uint32) (dataset.Cursor, error) {
			if int(id) >= len(positions) {
				return dataset.Cursor{}, fmt.Errorf("%w: entry %d was never indexed", core.ErrLogicViolation, id)
			}
			return positions[id], nil
		}
		next := 0
		return position, func() (uint32, bool, error) {
			if next == len(order) {
				return 0, false, nil
			}
			next++
			return order[next-1], true, nil
		}, nil
	})
}

// WriteRandomizedClassifier writes every entry of src to dst in class-balanced
// random order: classify labels each entry and the BalancedSelector decides
// which class is drawn next.
func (rw *Rewriter) WriteRandomizedClassifier(ctx context.Context, src Source, dst Sink, classify Classifier, rnd Rand) (*Result, error) {
	ctx, span := rw.tracer.Start(ctx, "Rewriter.WriteRandomizedClassifier")
	defer span.End()

	return rw.rewrite(ctx, span, ModeBalanced, src, dst, func(ctx context.Context, res *Result) (positionFunc, orderFunc, error) {
		_, indexSpan := rw.tracer.Start(ctx, "Rewriter.index")
		table, err := BuildBucketTable(src, classify)
		if err != nil {
			indexSpan.End()
			return nil, nil, err
		}
		indexSpan.SetAttributes(attribute.Int("entries", int(table.EntryCount())), attribute.Int("classes", table.Len()))
		indexSpan.End()

		res.ClassCounts = table.ClassCounts()
		rw.metrics.AddIndexed(ModeBalanced, int(table.EntryCount()))
		rw.metrics.SetClassCount(table.Len())
		rw.logger.Debug("Classification pass complete", "source", src.Path(), "entries", table.EntryCount(), "classes", table.Len())

		if err := rw.hooks.Trigger(ctx, hooks.NewPostIndexEvent(hooks.PostIndexPayload{
			Source:      src.Path(),
			EntryCount:  table.EntryCount(),
			ClassCounts: table.ClassCounts(),
		})); err != nil {
			return nil, nil, err
		}

		selector := NewBalancedSelector(table)
		return table.Position, func() (uint32, bool, error) {
			id, _, ok, err := selector.Next(rnd)
			return id, ok, err
		}, nil
	})
}

type positionFunc func(entryID uint32) (dataset.Cursor, error)

type planFunc func(ctx context.Context, res *Result) (positionFunc, orderFunc, error)

func (rw *Rewriter) rewrite(ctx context.Context, span trace.Span, mode Mode, src Source, dst Sink, plan planFunc) (res *Result, err error) {
	start := time.Now()
	entryCount := src.EntryCount()
	span.SetAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("source", src.Path()),
		attribute.Int("entries", int(entryCount)),
	)

	if !src.Layout().Equal(dst.Layout()) || src.Compression() != dst.Compression() {
		err := fmt.Errorf("%w: source is %s/%s, sink is %s/%s", core.ErrLayoutMismatch,
			src.Layout(), src.Compression(), dst.Layout(), dst.Compression())
		span.RecordError(err)
		span.SetStatus(codes.Error, "layout_mismatch")
		return nil, err
	}

	if err := rw.hooks.Trigger(ctx, hooks.NewPreRewriteEvent(hooks.PreRewritePayload{
		Source:     src.Path(),
		Mode:       string(mode),
		EntryCount: entryCount,
	})); err != nil {
		span.SetStatus(codes.Error, "cancelled_by_hook")
		return nil, fmt.Errorf("rewrite cancelled: %w", err)
	}

	res = &Result{Mode: mode}
	defer func() {
		if resetErr := src.Reset(); resetErr != nil {
			rw.logger.Error("Failed to rewind source after rewrite", "source", src.Path(), "error", resetErr)
			if err == nil {
				err = fmt.Errorf("failed to rewind source: %w", resetErr)
			}
		}
		res.Duration = time.Since(start)

		kind := failureKind(err)
		rw.metrics.ObservePass(mode, kind, res.Duration.Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
			rw.logger.Error("Rewrite failed", "source", src.Path(), "mode", mode, "emitted", res.EntryCount, "error", err)
		} else {
			span.SetAttributes(attribute.Int64("bytes_written", res.BytesWritten))
			rw.logger.Info("Rewrite complete", "source", src.Path(), "mode", mode, "entries", res.EntryCount,
				"bytes", res.BytesWritten, "duration", res.Duration, "order_digest", fmt.Sprintf("%016x", res.OrderDigest))
		}
		rw.hooks.Trigger(ctx, hooks.NewPostRewriteEvent(hooks.PostRewritePayload{
			Source:       src.Path(),
			Mode:         string(mode),
			EntryCount:   res.EntryCount,
			BytesWritten: res.BytesWritten,
			OrderDigest:  res.OrderDigest,
			Duration:     res.Duration,
			Error:        err,
		}))
		if err != nil {
			res = nil
		}
	}()

	position, next, err := plan(ctx, res)
	if err != nil {
		return res, err
	}
	if err := rw.emit(src, dst, position, next, res); err != nil {
		return res, err
	}
	return res, nil
}

// emit copies entries in the order yielded by next. Every id must be emitted
// exactly once: a roaring bitmap tracks what was written.
func (rw *Rewriter) emit(src Source, dst Sink, position positionFunc, next orderFunc, res *Result) error {
	emitted := roaring.New()
	digest := xxhash.New()
	var idBuf [4]byte

	for {
		id, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !emitted.CheckedAdd(id) {
			return fmt.Errorf("%w: entry %d selected twice", core.ErrLogicViolation, id)
		}

		pos, err := position(id)
		if err != nil {
			return err
		}
		if err := src.Seek(pos); err != nil {
			return fmt.Errorf("failed to seek to entry %d: %w", id, err)
		}
		data, err := src.ReadRecord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: entry %d: %w", core.ErrCorruptRecord, id, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("failed to re-read entry %d: %w", id, err)
		}
		if err := dst.WriteRecord(data); err != nil {
			return fmt.Errorf("failed to write entry %d: %w", id, err)
		}

		binary.LittleEndian.PutUint32(idBuf[:], id)
		digest.Write(idBuf[:])
		res.EntryCount++
		res.BytesWritten += int64(len(data))
		rw.metrics.AddEmitted(res.Mode, 1, int64(len(data)))
	}

	if got, want := emitted.GetCardinality(), uint64(src.EntryCount()); got != want {
		return fmt.Errorf("%w: emitted %d distinct entries, source holds %d", core.ErrLogicViolation, got, want)
	}
	res.OrderDigest = digest.Sum64()
	return nil
}

func failureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsLogicViolation(err):
		return "logic_violation"
	case core.IsCorruption(err):
		return "corruption"
	default:
		return "io"
	}
}
