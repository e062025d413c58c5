package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
	"github.com/tinytelemetry/flowdash/internal/duckdb/migrate"
	"github.com/tinytelemetry/flowdash/internal/metrics"
	"github.com/tinytelemetry/flowdash/internal/model"
	"github.com/tinytelemetry/flowdash/internal/render"
)

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	model.SchemaQuerier
	TotalFlowCount() (int64, error)
	LoadHistory(limit int) ([]model.LoadRecord, error)
	SchemaStatus() (migrate.Status, error)
}

// Server provides an HTTP API for the flow dashboard.
type Server struct {
	addr      string
	store     QueryStore
	views     model.ViewComputer
	metrics   *metrics.Recorder
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. rec may be nil to disable /metrics.
func NewServer(addr string, store QueryStore, views model.ViewComputer, rec *metrics.Recorder) *Server {
	if addr == "" {
		addr = "0.0.0.0:8050"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		views:     views,
		metrics:   rec,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler returns the gzip-wrapped router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.countRequests())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/options", s.handleOptions)
	r.GET("/api/dataset", s.handleDataset)
	r.GET("/api/view", s.handleView)
	r.POST("/api/view", s.handleView)
	r.GET("/api/charts/:id", s.handleChart)
	r.GET("/api/charts/:id/png", s.handleChartPNG)
	r.GET("/api/summary", s.handleSummary)
	r.GET("/api/summary.html", s.handleSummaryHTML)
	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/query", s.handleQuery)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	return gzhttp.GzipHandler(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpserver: serve: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.metrics != nil {
			s.metrics.ObserveRequest(c.FullPath(), c.Writer.Status())
		}
	}
}

// selectionFromQuery reads protocol, ip, min and max query parameters.
func selectionFromQuery(c *gin.Context) (model.Selection, error) {
	sel := model.Selection{
		Protocol: c.Query("protocol"),
		SourceIP: c.Query("ip"),
	}
	if v := c.Query("min"); v != "" {
		lo, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return sel, fmt.Errorf("%w: min: %v", dashboard.ErrInvalidSelection, err)
		}
		sel = sel.WithMin(lo)
	}
	if v := c.Query("max"); v != "" {
		hi, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return sel, fmt.Errorf("%w: max: %v", dashboard.ErrInvalidSelection, err)
		}
		sel = sel.WithMax(hi)
	}
	return sel, nil
}

func (s *Server) selection(c *gin.Context) (model.Selection, bool) {
	if c.Request.Method == http.MethodPost {
		var sel model.Selection
		if err := c.ShouldBindJSON(&sel); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON selection body"})
			return sel, false
		}
		return sel, true
	}
	sel, err := selectionFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return sel, false
	}
	return sel, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dashboard.ErrInvalidSelection):
		status = http.StatusBadRequest
	case errors.Is(err, dashboard.ErrUnknownChart):
		status = http.StatusNotFound
	case errors.Is(err, render.ErrUnsupportedKind), errors.Is(err, render.ErrNoData):
		status = http.StatusUnprocessableEntity
	default:
		log.Printf("httpserver: request %v failed: %v", c.GetString("request_id"), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	rows, err := s.store.TotalFlowCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	schema, err := s.store.SchemaStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime":         time.Since(s.startTime).String(),
		"rows":           rows,
		"schema_version": schema.Version,
		"pending":        len(schema.Pending),
	})
}

func (s *Server) handleOptions(c *gin.Context) {
	info := s.views.Info()
	c.JSON(http.StatusOK, gin.H{
		"protocols":     info.Protocols,
		"malicious_ips": info.MaliciousIPs,
		"duration":      info.Duration,
		"label_counts":  info.LabelCounts,
		"slider_step":   10000,
	})
}

func (s *Server) handleDataset(c *gin.Context) {
	history, err := s.store.LoadHistory(20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dataset": s.views.Info(),
		"loads":   history,
	})
}

func (s *Server) handleView(c *gin.Context) {
	sel, ok := s.selection(c)
	if !ok {
		return
	}
	view, err := s.views.ComputeView(c.Request.Context(), sel)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) chart(c *gin.Context) (*model.ChartSpec, bool) {
	id := c.Param("id")
	known := false
	for _, cid := range model.ChartIDs {
		if cid == id {
			known = true
		}
	}
	if !known {
		writeError(c, fmt.Errorf("%w: %s", dashboard.ErrUnknownChart, id))
		return nil, false
	}
	sel, ok := s.selection(c)
	if !ok {
		return nil, false
	}
	view, err := s.views.ComputeView(c.Request.Context(), sel)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	spec, _ := view.Chart(id)
	return &spec, true
}

func (s *Server) handleChart(c *gin.Context) {
	spec, ok := s.chart(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, spec)
}

func (s *Server) handleChartPNG(c *gin.Context) {
	spec, ok := s.chart(c)
	if !ok {
		return
	}
	size := render.DefaultSize
	if w, err := strconv.Atoi(c.Query("width")); err == nil && w > 0 && w <= 4096 {
		size.Width = w
	}
	if h, err := strconv.Atoi(c.Query("height")); err == nil && h > 0 && h <= 4096 {
		size.Height = h
	}

	var buf bytes.Buffer
	if err := render.PNG(&buf, *spec, size); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handleSummary(c *gin.Context) {
	sel, ok := s.selection(c)
	if !ok {
		return
	}
	view, err := s.views.ComputeView(c.Request.Context(), sel)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Summary)
}

func (s *Server) handleSummaryHTML(c *gin.Context) {
	sel, ok := s.selection(c)
	if !ok {
		return
	}
	view, err := s.views.ComputeView(c.Request.Context(), sel)
	if err != nil {
		writeError(c, err)
		return
	}
	html, err := dashboard.RenderSummaryHTML(view.Summary)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleSchema(c *gin.Context) {
	description := s.store.GetSchemaDescription()

	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
