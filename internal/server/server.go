// Package server serves a read-only JSON API over an easlog database.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cdtdelta/easlog/internal/database"
	"github.com/cdtdelta/easlog/internal/model"
	"github.com/cdtdelta/easlog/internal/query"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	shutdownTimeout = 5 * time.Second
)

// Server exposes a read-only JSON view of an easlog database.
type Server struct {
	engine *gin.Engine
	store  database.Store
	logger *slog.Logger
	addr   string
}

// New creates a viewer for store listening on addr.
func New(store database.Store, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine: engine,
		store:  store,
		logger: logger,
		addr:   addr,
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("viewer listening", "addr", s.addr, "db", s.store.Path())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down viewer: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/devices", s.handleDevices)
	api.GET("/entries", s.handleEntries)
	api.GET("/timeline", s.handleTimeline)
	api.GET("/runs", s.handleRuns)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.CountEntries("", nil)
	if err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"db":      s.store.Path(),
		"entries": count,
	})
}

func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.store.ListDevices()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) handleRuns(c *gin.Context) {
	runs, err := s.store.ListRuns()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

type entriesResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Entries  []model.Entry `json:"entries"`
}

func (s *Server) handleEntries(c *gin.Context) {
	page, err := intParam(c, "page", 1)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	pageSize, err := intParam(c, "page_size", defaultPageSize)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	pageSize = min(pageSize, maxPageSize)

	q := query.New(pageSize)
	q.SetDialect(s.store.Dialect())
	preds, err := filterPredicates(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	for _, p := range preds {
		q.AddPredicate(p)
	}
	if err := q.OrderBy("requested_at", false); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	q.SetPage(page)

	countSQL, countArgs := q.BuildCount()
	total, err := s.store.ExecuteCountQuery(countSQL, countArgs)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	sql, args := q.Build()
	entries, err := s.store.ExecuteQuery(sql, args)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []model.Entry{}
	}

	c.JSON(http.StatusOK, entriesResponse{
		Total:    total,
		Page:     q.PageNumber(),
		PageSize: pageSize,
		Entries:  entries,
	})
}

func (s *Server) handleTimeline(c *gin.Context) {
	var where string
	var args []any
	if device := c.Query("device"); device != "" {
		clause, a := query.Simple("device_id", query.Equal, device).WhereClause(s.store.Dialect())
		where, args = "WHERE "+clause, a
	}

	buckets, err := s.store.GetTimelineHistogram(where, args)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

// filterPredicates turns the device, from, to and contains parameters into
// query predicates.
func filterPredicates(c *gin.Context) ([]*query.Predicate, error) {
	var preds []*query.Predicate
	if device := c.Query("device"); device != "" {
		preds = append(preds, query.Simple("device_id", query.Equal, device))
	}
	if v := c.Query("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
		preds = append(preds, query.Simple("requested_at", query.GreaterOrEqual, t))
	}
	if v := c.Query("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		preds = append(preds, query.Simple("requested_at", query.LessOrEqual, t))
	}
	if v := c.Query("contains"); v != "" {
		preds = append(preds, query.Simple("body", query.Like, v))
	}
	return preds, nil
}

// parseTime accepts the stored layout, RFC 3339 and a bare date.
func parseTime(v string) (time.Time, error) {
	for _, layout := range []string{model.TimeLayout, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, v)
	}
	return n, nil
}
