// Package merge parses many log files concurrently and folds their results
// into one index. Results are folded in the order the files were
// submitted, whatever order the workers finish in, so the output of a run
// depends only on its input.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cdtdelta/easlog/internal/easparser"
	"github.com/cdtdelta/easlog/internal/model"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

var (
	// ErrNoInput is returned by Run when there is no file to schedule.
	ErrNoInput = errors.New("no input files")

	errPoolClosed = errors.New("pool is shut down")
)

// TaskError reports a file whose task failed. Other files are unaffected.
type TaskError struct {
	Path string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Reducer owns the index of a run and is its only writer.
type Reducer struct {
	idx *model.Index
}

// NewReducer returns a Reducer folding into idx.
func NewReducer(idx *model.Index) *Reducer {
	return &Reducer{idx: idx}
}

// Fold merges one file's devices into the index. Entries folded later
// replace earlier ones at the same timestamp.
func (r *Reducer) Fold(part *model.Index) {
	r.idx.Merge(part)
}

// Index returns the index being built.
func (r *Reducer) Index() *model.Index { return r.idx }

// Options controls Run.
type Options struct {
	Workers int
	Logger  *slog.Logger
}

// Summary describes a completed run.
type Summary struct {
	Files    int
	Parsed   int
	Failed   []*TaskError
	Entries  int // registered entries across files, before merging
	Excluded int
	Lines    int
	Devices  int
	Elapsed  time.Duration
}

// Err joins every task failure, or returns nil.
func (s Summary) Err() error {
	errs := make([]error, len(s.Failed))
	for i, f := range s.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (s Summary) String() string {
	return fmt.Sprintf("%s files parsed (%d failed), %s lines, %s entries kept, %s excluded, %s devices in %s",
		humanize.Comma(int64(s.Parsed)), len(s.Failed), humanize.Comma(int64(s.Lines)),
		humanize.Comma(int64(s.Entries)), humanize.Comma(int64(s.Excluded)),
		humanize.Comma(int64(s.Devices)), s.Elapsed.Round(time.Millisecond))
}

// ParseFile returns a ParseFunc that reads files with easparser.ReadDevices.
func ParseFile(opts easparser.Options) ParseFunc {
	return func(_ context.Context, path string) (*easparser.ReadResult, error) {
		return easparser.ReadDevices(path, opts)
	}
}

// Run parses files on a worker pool and merges the results in submission
// order. Failed files are recorded in the summary and skipped. The
// returned error is ErrNoInput for an empty file list and the context
// error if ctx was cancelled; task failures alone do not make Run fail.
func Run(ctx context.Context, files []string, parse ParseFunc, opts Options) (*model.Index, Summary, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	sum := Summary{Files: len(files)}
	if len(files) == 0 {
		return model.NewIndex(), sum, ErrNoInput
	}

	start := time.Now()
	pool := NewPool(ctx, workers)
	futures := make([]*Future, 0, len(files))
	for _, f := range files {
		futures = append(futures, pool.Submit(f, parse))
	}
	log.Debug("scheduled files", "files", len(files), "workers", workers)

	red := NewReducer(model.NewIndex())
	for _, fut := range futures {
		res, err := fut.Wait()
		if err != nil {
			var te *TaskError
			errors.As(err, &te)
			sum.Failed = append(sum.Failed, te)
			log.Warn("file failed", "path", fut.Path, "error", te.Err)
			continue
		}
		red.Fold(res.Devices)
		sum.Parsed++
		sum.Entries += res.Count
		sum.Excluded += res.Excluded
		sum.Lines += res.Lines
		log.Debug("file merged",
			"path", fut.Path,
			"encoding", res.Encoding,
			"attempts", res.Attempts,
			"entries", res.Count,
			"excluded", res.Excluded)
	}

	if err := pool.Shutdown(); err != nil {
		return red.Index(), sum, fmt.Errorf("shutting down pool: %w", err)
	}

	sum.Devices = red.Index().Len()
	sum.Elapsed = time.Since(start)
	log.Info("merge complete",
		"files", sum.Files,
		"failed", len(sum.Failed),
		"devices", sum.Devices,
		"entries", red.Index().EntryCount())

	if err := ctx.Err(); err != nil {
		return red.Index(), sum, fmt.Errorf("run interrupted: %w", err)
	}
	return red.Index(), sum, nil
}
