package httpserver

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinytelemetry/sadcompare/internal/metrics"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"go.uber.org/zap"
)

// Server provides a read-only HTTP API over the result store.
type Server struct {
	addr      string
	store     model.ResultReader
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store model.ResultReader, logger *zap.Logger) *Server {
	if addr == "" {
		addr = model.DefaultAPIAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/wins/counts", s.handleWinCounts)
	api.GET("/values", s.handleValues)
	api.GET("/schema", s.handleSchema)
	api.POST("/query", s.handleQuery)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// fail writes a JSON error body. Server-side failures are logged with the
// underlying cause, which is not exposed to the client.
func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	if status >= http.StatusInternalServerError && err != nil {
		s.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
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
	s.logger.Info("query API listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("query API stopped", zap.Error(err))
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

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read health metrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"row_counts": counts,
	})
}

type modelCount struct {
	Code  int    `json:"model_code"`
	Name  string `json:"model_name"`
	Count int64  `json:"count"`
}

func (s *Server) handleWinCounts(c *gin.Context) {
	dataset := c.Query("dataset")
	counts, err := s.store.CountWinsByModel(dataset)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to count wins", err)
		return
	}

	// every model is listed, in code order, so clients can index by code
	models := make([]modelCount, model.Count)
	var total int64
	for i, m := range model.Models() {
		models[i] = modelCount{Code: m.Code(), Name: m.Name(), Count: counts[m]}
		total += counts[m]
	}
	c.JSON(http.StatusOK, gin.H{"dataset": dataset, "models": models, "total": total})
}

// valueQuery builds a ValueQuery from the model, type, dataset,
// exclude_absent and positive query parameters. type defaults to AICc weight.
func valueQuery(c *gin.Context) (model.ValueQuery, error) {
	q := model.ValueQuery{ValueType: model.AICcWeight, Dataset: c.Query("dataset")}

	var err error
	if q.Model, err = model.ParseModel(c.Query("model")); err != nil {
		return q, err
	}
	if raw, ok := c.GetQuery("type"); ok && raw != "" {
		if q.ValueType, err = model.ParseValueType(raw); err != nil {
			return q, err
		}
	}
	for name, dst := range map[string]*bool{"exclude_absent": &q.ExcludeAbsent, "positive": &q.PositiveOnly} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		if *dst, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("%s: %w", name, err)
		}
	}
	return q, nil
}

func (s *Server) handleValues(c *gin.Context) {
	q, err := valueQuery(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	scores, err := s.store.Values(q)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read values", err)
		return
	}

	// absent values encode as JSON null
	values := make([]*float64, len(scores))
	for i := range scores {
		if scores[i].Valid {
			values[i] = &scores[i].Value
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"model":      q.Model.Name(),
		"value_type": q.ValueType.String(),
		"dataset":    q.Dataset,
		"values":     values,
		"count":      len(values),
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	tables, err := s.store.TableColumns()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read schema metadata", err)
		return
	}
	counts, err := s.store.TableRowCounts()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to read table row counts", err)
		return
	}
	datasets, err := s.store.ListDatasets()
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "failed to list datasets", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      tables,
		"row_counts":  counts,
		"datasets":    datasets,
	})
}

type queryRequest struct {
	SQL string `json:"sql" binding:"required"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid JSON body or missing sql field", nil)
		return
	}

	rows, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var columns []string
	if len(rows) > 0 {
		columns = slices.Sorted(maps.Keys(rows[0]))
	}
	c.JSON(http.StatusOK, gin.H{"columns": columns, "rows": rows, "row_count": len(rows)})
}
