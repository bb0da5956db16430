package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/dataset"
	"github.com/INLOpen/nexusdata/shuffle"
	"github.com/caio/go-tdigest/v4"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "dataset-util",
		Short:         "Inspect, generate and verify supervised dataset files.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	logger := func() *slog.Logger {
		if !verbose {
			return slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	root.AddCommand(newInspectCmd(logger), newGenerateCmd(logger), newVerifyCmd(logger))
	return root
}

func newInspectCmd(logger func() *slog.Logger) *cobra.Command {
	var classifier string
	var threshold float32
	cmd := &cobra.Command{
		Use:   "inspect <dataset.sds>",
		Short: "Print the layout, class histogram and record size distribution of a dataset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classify, err := shuffle.ClassifierByName(classifier, threshold)
			if err != nil {
				return err
			}
			r, err := dataset.Open(args[0], dataset.ReaderOptions{Logger: logger()})
			if err != nil {
				return err
			}
			defer r.Close()
			report, err := inspect(r, classify)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&classifier, "classifier", "argmax", "class label decoder: argmax or threshold")
	cmd.Flags().Float32Var(&threshold, "threshold", 0.5, "decision threshold for the threshold classifier")
	return cmd
}

// inspectReport holds what inspect prints about one dataset.
type inspectReport struct {
	Path        string
	Layout      dataset.Layout
	Compression core.CompressionType
	Entries     uint32
	StoredBytes int64
	Classes     map[uint32]int
	// Stored record size quantiles, keyed by percentile.
	RecordSizes map[int]float64
}

var reportPercentiles = []int{50, 90, 99}

func inspect(r *dataset.Reader, classify shuffle.Classifier) (*inspectReport, error) {
	rep := &inspectReport{
		Path:        r.Path(),
		Layout:      r.Layout(),
		Compression: r.Compression(),
		Entries:     r.EntryCount(),
		Classes:     make(map[uint32]int),
		RecordSizes: make(map[int]float64),
	}
	td, err := tdigest.New()
	if err != nil {
		return nil, fmt.Errorf("tdigest.New failed: %w", err)
	}

	if err := r.Reset(); err != nil {
		return nil, err
	}
	for i := uint32(0); i < rep.Entries; i++ {
		rec, err := r.ReadRecord()
		if err != nil {
			return nil, err
		}
		rep.StoredBytes += int64(len(rec))
		if err := td.AddWeighted(float64(len(rec)), 1); err != nil {
			return nil, fmt.Errorf("tdigest AddWeighted failed: %w", err)
		}
	}

	if err := r.Reset(); err != nil {
		return nil, err
	}
	output := make([]float32, rep.Layout.OutputNeuronCount())
	for {
		if err := r.Read(nil, output); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		rep.Classes[classify(output)]++
	}
	if td.Count() > 0 {
		for _, p := range reportPercentiles {
			rep.RecordSizes[p] = td.Quantile(float64(p) / 100.0)
		}
	}
	return rep, r.Reset()
}

func (rep *inspectReport) print(w io.Writer) {
	fmt.Fprintf(w, "path:        %s\n", rep.Path)
	fmt.Fprintf(w, "layout:      %s\n", rep.Layout)
	fmt.Fprintf(w, "compression: %s\n", rep.Compression)
	fmt.Fprintf(w, "entries:     %d\n", rep.Entries)
	fmt.Fprintf(w, "stored:      %d bytes\n", rep.StoredBytes)
	if len(rep.RecordSizes) > 0 {
		fmt.Fprint(w, "record size:")
		for _, p := range reportPercentiles {
			fmt.Fprintf(w, " p%d=%.0f", p, rep.RecordSizes[p])
		}
		fmt.Fprintln(w)
	}
	labels := make([]uint32, 0, len(rep.Classes))
	for label := range rep.Classes {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	fmt.Fprintln(w, "classes:")
	for _, label := range labels {
		n := rep.Classes[label]
		fmt.Fprintf(w, "  %4d: %8d (%.2f%%)\n", label, n, 100*float64(n)/float64(rep.Entries))
	}
}

func newGenerateCmd(logger func() *slog.Logger) *cobra.Command {
	var counts, compression string
	var inputSize uint32
	cmd := &cobra.Command{
		Use:   "generate <dataset.sds>",
		Short: "Write a synthetic one-hot dataset with the given per-class entry counts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perClass, err := parseCounts(counts)
			if err != nil {
				return err
			}
			ct, err := core.ParseCompressionType(compression)
			if err != nil {
				return err
			}
			n, err := generate(args[0], perClass, inputSize, ct, logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries over %d classes to %s\n", n, len(perClass), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&counts, "counts", "", "comma separated entry count per class, e.g. 6,3,1")
	cmd.Flags().StringVar(&compression, "compression", "snappy", "record codec: none, snappy, lz4 or zstd")
	cmd.Flags().Uint32Var(&inputSize, "input-size", 4, "input bytes per entry, at least 4")
	cmd.MarkFlagRequired("counts")
	return cmd
}

func parseCounts(s string) ([]int, error) {
	var counts []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, &core.ValidationError{Field: "counts", Value: s, Message: "expected non-negative integers"}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// generate writes counts[c] entries of class c, grouped by class. Each input
// starts with the entry id as little endian uint32.
func generate(path string, counts []int, inputSize uint32, ct core.CompressionType, logger *slog.Logger) (uint32, error) {
	if inputSize < 4 {
		return 0, &core.ValidationError{Field: "input-size", Value: strconv.Itoa(int(inputSize)), Message: "must be at least 4"}
	}
	layout := dataset.Layout{
		InputType: core.InputTypeByte,
		Input:     core.NewLayerConfiguration(1, inputSize),
		Output:    core.NewLayerConfiguration(1, uint32(len(counts))),
	}
	w, err := dataset.Create(path, layout, dataset.WriterOptions{Compression: ct, Logger: logger})
	if err != nil {
		return 0, err
	}
	input := make([]byte, inputSize)
	output := make([]float32, len(counts))
	var id uint32
	for class, n := range counts {
		clear(output)
		output[class] = 1
		for range n {
			binary.LittleEndian.PutUint32(input, id)
			if err := w.Write(input, output); err != nil {
				w.Abort()
				return 0, err
			}
			id++
		}
	}
	return id, w.Commit()
}

func newVerifyCmd(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <dataset.sds> [copy.sds]",
		Short: "Check every record of a dataset, or that a copy holds the same entries in any order.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries := make([]dataset.Summary, len(args))
			for i, path := range args {
				s, err := summarizeFile(path, logger())
				if err != nil {
					return err
				}
				summaries[i] = s
				fmt.Fprintf(cmd.OutOrStdout(), "%s: entries=%d digest=%016x raw=%d stored=%d\n",
					path, s.Entries, s.ContentDigest, s.RawBytes, s.StoredBytes)
			}
			if len(summaries) == 2 {
				a, b := summaries[0], summaries[1]
				if a.Entries != b.Entries || a.ContentDigest != b.ContentDigest {
					return fmt.Errorf("%s and %s hold different entries", args[0], args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), "match")
			}
			return nil
		},
	}
}

func summarizeFile(path string, logger *slog.Logger) (dataset.Summary, error) {
	r, err := dataset.Open(path, dataset.ReaderOptions{Logger: logger})
	if err != nil {
		return dataset.Summary{}, err
	}
	defer r.Close()
	return dataset.Summarize(r)
}
