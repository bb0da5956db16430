package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/INLOpen/nexusdata/config"
	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
	"github.com/INLOpen/nexusdata/hooks"
	"github.com/INLOpen/nexusdata/hooks/listeners"
	"github.com/INLOpen/nexusdata/internal/cli"
	"github.com/INLOpen/nexusdata/shuffle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// indexBytesPerEntry approximates the memory held per entry while a pass runs:
// a position cursor, a bucket slot and the permutation slot.
const indexBytesPerEntry = 16 + 4 + 4

// overrides holds command-line values that replace configuration entries when set.
type overrides struct {
	mode        string
	seed        uint64
	classifier  string
	concurrency int
	logLevel    string
	logOutput   string
	metricsAddr string
}

func (o overrides) apply(cfg *config.Config) {
	if o.mode != "" {
		cfg.Shuffle.Mode = o.mode
	}
	if o.seed != 0 {
		cfg.Shuffle.Seed = o.seed
	}
	if o.classifier != "" {
		cfg.Shuffle.Classifier = o.classifier
	}
	if o.concurrency > 0 {
		cfg.Shuffle.Concurrency = o.concurrency
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logOutput != "" {
		cfg.Logging.Output = o.logOutput
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = o.metricsAddr
	}
}

func main() {
	configPath := flag.String("config", "", "Path to the configuration file (defaults are used when empty or missing)")
	output := flag.String("output", "", "Output path; only valid with a single input (default: input name plus the configured suffix)")
	var o overrides
	flag.StringVar(&o.mode, "mode", "", "Rewrite mode: plain or balanced")
	flag.Uint64Var(&o.seed, "seed", 0, "Random seed; 0 keeps the configured seed")
	flag.StringVar(&o.classifier, "classifier", "", "Class label decoder: argmax or threshold")
	flag.IntVar(&o.concurrency, "concurrency", 0, "Number of datasets rewritten at once")
	flag.StringVar(&o.logLevel, "log-level", "", "Logging level (debug, info, warn, error)")
	flag.StringVar(&o.logOutput, "log-output", "", "Log output (stdout, stderr, file, none)")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 || (*output != "" && len(inputs) != 1) {
		fmt.Println("Usage: shuffle-util [flags] <dataset.sds> [more.sds ...]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg, err = config.Load(nil)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := cli.NewLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	tp, tracerCleanup, err := cli.InitTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer tracerCleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics, registry, logger)
		defer stop()
	}

	// Interrupts stop new passes from starting; a running pass always completes or fails on its own.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r := runner{
		cfg:      cfg,
		logger:   logger,
		tracer:   tp.Tracer("github.com/INLOpen/nexusdata/shuffle"),
		registry: registry,
	}
	if err := r.run(ctx, inputs, *output); err != nil {
		logger.Error("Shuffle failed", "error", err)
		tracerCleanup()
		os.Exit(1)
	}
}

func serveMetrics(cfg config.MetricsConfig, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{Addr: cfg.ListenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Serving metrics", "address", cfg.ListenAddress, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

type runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	registry prometheus.Registerer
}

// run rewrites every input into its output path. Inputs are independent and
// processed concurrently, one reader per file.
func (r runner) run(ctx context.Context, inputs []string, output string) error {
	mode, err := shuffle.ParseMode(r.cfg.Shuffle.Mode)
	if err != nil {
		return err
	}
	classify, err := shuffle.ClassifierByName(r.cfg.Shuffle.Classifier, r.cfg.Shuffle.Threshold)
	if err != nil {
		return err
	}

	baseSeed := r.cfg.Shuffle.Seed
	if baseSeed == 0 {
		baseSeed = uint64(time.Now().UnixNano())
		r.logger.Info("No seed configured, drew one", "seed", baseSeed)
	}

	hookManager := hooks.NewHookManager(r.logger)
	defer hookManager.Stop()
	if r.cfg.Hooks.MinClassFraction > 0 {
		hookManager.Register(hooks.EventPostIndex, listeners.NewClassSkewAlerterListener(r.logger, r.cfg.Hooks.MinClassFraction))
	}
	if r.cfg.Hooks.MaxEntries > 0 || len(r.cfg.Hooks.AllowedModes) > 0 {
		hookManager.Register(hooks.EventPreRewrite, listeners.NewRewriteGuardListener(r.logger, listeners.GuardRules{
			MaxEntries:   r.cfg.Hooks.MaxEntries,
			AllowedModes: r.cfg.Hooks.AllowedModes,
		}))
	}

	rewriter := shuffle.NewRewriter(shuffle.Options{
		Logger:      r.logger,
		Tracer:      r.tracer,
		Metrics:     shuffle.NewMetrics(r.registry),
		HookManager: hookManager,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Shuffle.Concurrency)
	for i, input := range inputs {
		out := output
		if out == "" {
			out = core.OutputFileName(input, r.cfg.Dataset.OutputSuffix)
		}
		// Per-file seeds keep every file reproducible regardless of scheduling.
		seed := baseSeed + uint64(i)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("skipped %s: %w", input, err)
			}
			job := fileJob{input: input, output: out, mode: mode, classify: classify, seed: seed}
			if err := r.rewriteFile(ctx, rewriter, hookManager, job); err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type fileJob struct {
	input    string
	output   string
	mode     shuffle.Mode
	classify shuffle.Classifier
	seed     uint64
}

func (r runner) rewriteFile(ctx context.Context, rewriter *shuffle.Rewriter, hookManager hooks.HookManager, job fileJob) (err error) {
	logger := r.logger.With("input", job.input)
	src, err := dataset.Open(job.input, dataset.ReaderOptions{Logger: r.logger})
	if err != nil {
		return err
	}
	defer src.Close()

	if r.cfg.Dataset.MemoryCheck {
		r.checkMemory(logger, src.EntryCount())
	}

	opts := dataset.WriterOptions{
		Logger:      r.logger,
		LockTimeout: config.ParseDuration(r.cfg.Dataset.LockTimeout, dataset.DefaultLockTimeout, logger),
	}
	if r.cfg.Dataset.Preallocate {
		if info, statErr := os.Stat(job.input); statErr == nil {
			opts.Preallocate = info.Size()
		}
	}
	dst, err := dataset.CreateLike(job.output, src, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dst.Abort()
		}
	}()

	logger.Info("Rewriting dataset", "output", job.output, "mode", job.mode, "seed", job.seed, "entries", src.EntryCount())
	rnd := shuffle.NewRand(job.seed)
	var res *shuffle.Result
	switch job.mode {
	case shuffle.ModePlain:
		res, err = rewriter.WriteRandomized(ctx, src, dst, rnd)
	default:
		res, err = rewriter.WriteRandomizedClassifier(ctx, src, dst, job.classify, rnd)
	}
	if err != nil {
		return err
	}

	commit := hooks.CommitPayload{Path: job.output, EntryCount: res.EntryCount}
	if err := hookManager.Trigger(ctx, hooks.NewPreCommitEvent(commit)); err != nil {
		return fmt.Errorf("commit cancelled: %w", err)
	}
	commitErr := dst.Commit()
	commit.Error = commitErr
	hookManager.Trigger(ctx, hooks.NewPostCommitEvent(commit))
	if commitErr != nil {
		return commitErr
	}

	if r.cfg.Dataset.VerifyAfterCopy {
		if err := verifyCopy(src, job.output, r.logger); err != nil {
			return err
		}
	}
	logger.Info("Dataset shuffled", "output", job.output, "entries", res.EntryCount, "bytes", res.BytesWritten,
		"order_digest", fmt.Sprintf("%016x", res.OrderDigest), "duration", res.Duration)
	return nil
}

// verifyCopy compares content digests of source and committed output. A
// mismatching output is removed.
func verifyCopy(src *dataset.Reader, output string, logger *slog.Logger) error {
	want, err := dataset.Summarize(src)
	if err != nil {
		return err
	}
	out, err := dataset.Open(output, dataset.ReaderOptions{Logger: logger})
	if err != nil {
		return err
	}
	got, err := dataset.Summarize(out)
	out.Close()
	if err != nil {
		return err
	}
	if got.Entries != want.Entries || got.ContentDigest != want.ContentDigest {
		os.Remove(output)
		return fmt.Errorf("%w: output %s does not hold the source entries (digest %016x, want %016x)",
			core.ErrLogicViolation, output, got.ContentDigest, want.ContentDigest)
	}
	return nil
}

func (r runner) checkMemory(logger *slog.Logger, entries uint32) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debug("Memory check unavailable", "error", err)
		return
	}
	need := uint64(entries) * indexBytesPerEntry
	if need > vm.Available {
		logger.Warn("Entry index may not fit in available memory", "entries", entries, "index_bytes", need, "available_bytes", vm.Available)
	}
}
