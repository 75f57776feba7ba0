// Package api serves the exact tests over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"goexact/adapters/excel"
	"goexact/adapters/stats/exact"
	"goexact/app"
	"goexact/domain/contingency"
	"goexact/domain/core"
	"goexact/internal/errors"
	"goexact/internal/report"
	"goexact/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// Server is the HTTP front end of ExactService
type Server struct {
	router  *gin.Engine
	exact   *app.ExactService
	results ports.ResultRepository
	logger  *zap.Logger
}

// NewServer creates a server; results may be nil, which disables the
// result lookup endpoints.
func NewServer(exactService *app.ExactService, results ports.ResultRepository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  gin.New(),
		exact:   exactService,
		results: results,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures Gin middleware
func (s *Server) setupMiddleware() {
	s.router.Use(requestID())
	s.router.Use(s.requestLogger())
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("handler panicked", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		s.writeError(c, errors.InternalError("internal server error"))
	}))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.POST("/fisher", s.handleFisher)
	v1.POST("/barnard", s.handleBarnard)
	v1.POST("/barnard/maximize", s.handleBarnardMaximize)
	v1.POST("/scan", s.handleScan)

	if s.results != nil {
		v1.GET("/results/:id", s.handleGetResult)
		v1.GET("/runs/:runID/results", s.handleListRunResults)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestID keeps an incoming X-Request-Id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.String("request_id", c.GetString("requestID")),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFisher(c *gin.Context) {
	var req FisherRequest
	if !s.decode(c, &req) {
		return
	}
	t, err := req.table()
	if err != nil {
		s.writeError(c, err)
		return
	}
	variant := exact.FisherMinTailVariant
	if req.Variant != "" {
		if variant, err = exact.ParseFisherVariant(req.Variant); err != nil {
			s.writeError(c, err)
			return
		}
	}
	res, err := s.exact.Fisher(t.Margins, t.Cell, variant)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBarnard(c *gin.Context) {
	s.barnard(c, false)
}

func (s *Server) handleBarnardMaximize(c *gin.Context) {
	s.barnard(c, true)
}

func (s *Server) barnard(c *gin.Context, maximize bool) {
	var req BarnardRequest
	if !s.decode(c, &req) {
		return
	}
	t, err := req.table()
	if err != nil {
		s.writeError(c, err)
		return
	}
	in := app.BarnardRequest{
		Margins:  t.Margins,
		Cell:     t.Cell,
		Maximize: maximize,
	}
	if maximize {
		in.Grid = exact.NuisanceGrid(req.Grid)
		in.Refine = req.Refine
		if req.RunID != "" {
			if in.RunID, err = core.ParseRunID(req.RunID); err != nil {
				s.writeError(c, errors.WithCode(errors.CodeInvalidInput, err))
				return
			}
		}
	} else {
		in.Pi = req.Pi
	}

	res, err := s.exact.BarnardPValue(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleScan answers JSON by default; ?format=xlsx returns a workbook and
// ?format=html a rendered table.
func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if !s.decode(c, &req) {
		return
	}
	m, err := contingency.NewMargins(req.N, req.N1)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var variant exact.FisherVariant
	if req.Fisher != "" {
		if variant, err = exact.ParseFisherVariant(req.Fisher); err != nil {
			s.writeError(c, err)
			return
		}
	}
	rows, err := s.exact.Scan(c.Request.Context(), app.ScanRequest{
		Margins:  m,
		X:        req.X,
		Fisher:   variant,
		Floor:    req.Floor,
		Maximize: req.Maximize,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch c.Query("format") {
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="scan.xlsx"`)
		c.Status(http.StatusOK)
		if err := excel.WriteScan(c.Writer, excel.ScanExport{Margins: m, X: req.X, Fisher: variant, Rows: rows}); err != nil {
			s.logger.Error("scan export failed", zap.Error(err))
		}
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML("Cell scan", report.ScanMarkdown(m, req.X, rows)))
	default:
		c.JSON(http.StatusOK, ScanResponse{Margins: m, X: req.X, Rows: rows})
	}
}

func (s *Server) handleGetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, errors.InvalidInput("result id must be a UUID"))
		return
	}
	res, err := s.results.GetBarnardResult(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListRunResults(c *gin.Context) {
	runID, err := core.ParseRunID(c.Param("runID"))
	if err != nil {
		s.writeError(c, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	res, err := s.results.ListByRun(c.Request.Context(), runID.String())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// decode reads a JSON body, rejecting fields the request type does not name.
func (s *Server) decode(c *gin.Context, v interface{}) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err), zap.String("request_id", c.GetString("requestID")))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func statusFor(code string) int {
	switch code {
	case errors.CodeInvalidInput, errors.CodeMalformedInput, errors.CodeValidationError:
		return http.StatusBadRequest
	case errors.CodeDomainError, errors.CodeInfeasibleTable:
		return http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
