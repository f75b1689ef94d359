// Package httpapi provides the HTTP API for newsragd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/extract"
	"github.com/fyrsmithlabs/newsragd/internal/ingest"
	"github.com/fyrsmithlabs/newsragd/internal/rag"
	"github.com/fyrsmithlabs/newsragd/internal/records"
)

// maxUploadBytes bounds PDF uploads.
const maxUploadBytes = 20 * 1024 * 1024 // 20MB

// Pipeline is the ingestion surface the upload handler needs.
type Pipeline interface {
	IngestDocument(ctx context.Context, rec records.Record) (ingest.Result, error)
}

// Answerer is the question-answering surface.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Server provides HTTP endpoints for newsragd.
type Server struct {
	echo      *echo.Echo
	pipeline  Pipeline
	answerer  Answerer
	extractor extract.Extractor
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// NewServer creates a new HTTP server.
func NewServer(pipeline Pipeline, answerer Answerer, extractor extract.Extractor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 5000,
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		pipeline:  pipeline,
		answerer:  answerer,
		extractor: extractor,
		logger:    logger,
		config:    cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/ask", s.handleAsk)
	s.echo.POST("/upload_pdf", s.handleUploadPDF)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// handleAsk answers a question grounded in the indexed documents.
func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoQuestion})
	}
	if strings.TrimSpace(req.Question) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoQuestion})
	}

	answer, err := s.answerer.Answer(c.Request().Context(), req.Question)
	switch {
	case errors.Is(err, rag.ErrUnavailable):
		s.logger.Error("answering service unavailable", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: msgUnavailable})
	case errors.Is(err, rag.ErrEmptyQuestion):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoQuestion})
	case err != nil:
		s.logger.Error("answer generation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgGenerateFailed})
	}

	return c.JSON(http.StatusOK, askResponse{Answer: answer})
}

// handleUploadPDF ingests an uploaded PDF as a new document.
func (s *Server) handleUploadPDF(c echo.Context) error {
	fileHeader, err := c.FormFile("pdf_file")
	if err != nil {
		s.logger.Warn("upload without pdf_file field", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoFile})
	}

	filename := filepath.Base(fileHeader.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgEmptyFilename})
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		s.logger.Warn("upload is not a pdf", zap.String("filename", filename))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNotPDF})
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("opening uploaded file failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgUnreadablePDF})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		s.logger.Error("reading uploaded file failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgUnreadablePDF})
	}
	if len(data) > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgTooLarge})
	}

	ctx := c.Request().Context()
	text, err := s.extractor.Extract(ctx, data)
	switch {
	case errors.Is(err, extract.ErrEmptyDocument):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoText})
	case err != nil:
		s.logger.Warn("pdf extraction failed", zap.String("filename", filename), zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgUnreadablePDF})
	}

	rec := records.Record{
		Title:         extract.TitleFromFilename(filename),
		URL:           "file_upload://" + filename,
		Content:       text,
		PublishedDate: time.Now().UTC(),
		Source:        "PDF Upload",
		ContentHash:   ingest.ContentHash(data),
	}

	result, err := s.pipeline.IngestDocument(ctx, rec)
	var partial *ingest.PartialError
	switch {
	case errors.As(err, &partial):
		s.logger.Error("pdf saved but not embedded",
			zap.String("filename", filename),
			zap.String("news_id", partial.ID),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgNotEmbedded})
	case err != nil:
		s.logger.Error("pdf save failed", zap.String("filename", filename), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgNotSaved})
	case result.Duplicate:
		return c.JSON(http.StatusOK, uploadResponse{Message: msgAlreadyDone, NewsID: result.ID})
	}

	s.logger.Info("pdf processed",
		zap.String("filename", filename),
		zap.String("news_id", result.ID),
	)
	return c.JSON(http.StatusOK, uploadResponse{Message: msgUploadOK, NewsID: result.ID})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
