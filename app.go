package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cdtdelta/easlog/internal/config"
	"github.com/cdtdelta/easlog/internal/database"
	"github.com/cdtdelta/easlog/internal/discover"
	"github.com/cdtdelta/easlog/internal/easparser"
	"github.com/cdtdelta/easlog/internal/merge"
	"github.com/cdtdelta/easlog/internal/model"
	"github.com/cdtdelta/easlog/internal/query"
	"github.com/cdtdelta/easlog/internal/report"
	"github.com/cdtdelta/easlog/internal/server"
	"github.com/cdtdelta/easlog/internal/source"
)

// App runs the easlog commands against one validated configuration.
type App struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer
}

// NewApp creates a new App instance.
func NewApp(cfg *config.Config, log *slog.Logger, stdout io.Writer) *App {
	return &App{cfg: cfg, log: log, stdout: stdout}
}

// -- Parsing --

// Parse reads every log file named by args, merges the per-device
// histories and writes the report. When a database is configured the
// merged entries are stored as a new run.
func (a *App) Parse(ctx context.Context, args []string) error {
	files, problems := discover.Expand(args)
	for _, p := range problems {
		a.log.Warn("skipping input", "error", p)
	}

	runID := uuid.NewString()
	started := time.Now()
	a.log.Debug("starting run", "run_id", runID, "files", len(files), "workers", a.cfg.Workers)

	idx, sum, err := merge.Run(ctx, files, a.parseFunc(), merge.Options{
		Workers: a.cfg.Workers,
		Logger:  a.log,
	})
	if err != nil {
		return err
	}
	a.log.Info(sum.String())
	a.checkKeep(idx)

	if err := a.writeReport(idx); err != nil {
		return err
	}

	if a.cfg.Database.DSN != "" {
		if err := a.storeRun(runID, started, idx, sum); err != nil {
			return err
		}
	}
	return nil
}

// parseFunc reads one file, logging progress on large inputs.
func (a *App) parseFunc() merge.ParseFunc {
	return func(_ context.Context, path string) (*easparser.ReadResult, error) {
		return easparser.ReadDevices(path, easparser.Options{
			Charsets: a.cfg.Charsets,
			OnProgress: func(lines int) {
				a.log.Debug("reading", "path", path, "lines", lines)
			},
		})
	}
}

// checkKeep warns about --keep devices that no parsed file mentions.
func (a *App) checkKeep(idx *model.Index) {
	if a.cfg.Keep.Empty() {
		return
	}
	for _, id := range a.cfg.Keep.Devices() {
		if idx.History(id) == nil {
			a.log.Warn("kept device not found in any log", "device", id)
		}
	}
}

// reportPath returns the output path, adding the compression suffix when
// the configured name lacks it.
func (a *App) reportPath() string {
	ext := a.cfg.Compress.Extension()
	if a.cfg.Output == "-" || ext == "" || source.Detect(a.cfg.Output) == a.cfg.Compress {
		return a.cfg.Output
	}
	return a.cfg.Output + ext
}

// writeReport renders idx to the configured output. Uncompressed reports
// on stdout go straight to the terminal so the text renderer can style them.
func (a *App) writeReport(idx *model.Index) error {
	if a.cfg.Output == "-" && a.cfg.Compress == source.None {
		r, err := report.New(a.cfg.Format, a.stdout)
		if err != nil {
			return err
		}
		return r.Render(idx, a.cfg.Keep)
	}

	out := a.stdout
	path := a.reportPath()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		out = f
	}

	counter := &report.Counter{W: out}
	w, err := report.NewWriter(counter, a.cfg.Compress)
	if err != nil {
		return err
	}
	r, err := report.New(a.cfg.Format, w)
	if err != nil {
		w.Close()
		return err
	}
	if err := r.Render(idx, a.cfg.Keep); err != nil {
		w.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}

	a.log.Info("report written", "output", path, "compress", a.cfg.Compress, "size", counter.Size())
	return nil
}

// storeRun writes the merged entries to the configured database.
func (a *App) storeRun(runID string, started time.Time, idx *model.Index, sum merge.Summary) error {
	store, err := database.CreateStore(a.cfg.Database.Driver, a.cfg.Database.DSN, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	n, err := store.InsertIndex(runID, idx, func(count int) {
		a.log.Debug("inserting entries", "count", count)
	})
	if err != nil {
		return fmt.Errorf("storing entries: %w", err)
	}

	if err := store.UpdateMetadata(); err != nil {
		return fmt.Errorf("updating metadata: %w", err)
	}

	err = store.RecordRun(database.Run{
		ID:        runID,
		StartedAt: started.UTC().Truncate(time.Second),
		Files:     sum.Files,
		Failed:    len(sum.Failed),
		Entries:   n,
	})
	if err != nil {
		return err
	}

	a.log.Info("run stored", "run_id", runID, "entries", n, "db", store.Path())
	return nil
}

// -- Database views --

// QueryRequest selects stored entries for the query command.
type QueryRequest struct {
	Device string
	Where  string // raw SQL WHERE clause
	Limit  int
	Page   int
}

var errNoDatabase = errors.New("no database configured (use --db or EASLOG_DATABASE_DSN)")

// Query prints stored entries through the configured renderer.
func (a *App) Query(req QueryRequest) error {
	if req.Device != "" && req.Where != "" {
		return errors.New("--device and --where cannot be combined")
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var q *query.Query
	var build func() (string, []any)
	if req.Where != "" {
		rq := query.NewRaw(req.Limit, req.Where)
		q, build = &rq.Query, rq.Build
	} else {
		q = query.New(req.Limit)
		if req.Device != "" {
			q.AddPredicate(query.Simple("device_id", query.Equal, req.Device))
		}
		build = q.Build
	}
	q.SetDialect(store.Dialect())
	if err := q.OrderBy("requested_at", false); err != nil {
		return err
	}
	q.SetPage(req.Page)

	sql, args := build()
	a.log.Debug("querying", "sql", sql)
	entries, err := store.ExecuteQuery(sql, args)
	if err != nil {
		return err
	}

	idx := model.NewIndex()
	for _, e := range entries {
		idx.Put(e)
	}
	a.log.Info("query complete", "rows", len(entries), "devices", idx.Len())
	return a.writeReport(idx)
}

// Serve starts the read-only viewer and blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return server.New(store, a.cfg.Server.Addr, a.log).Start(ctx)
}

func (a *App) openStore() (database.Store, error) {
	if a.cfg.Database.DSN == "" {
		return nil, errNoDatabase
	}
	store, err := database.OpenStore(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}
