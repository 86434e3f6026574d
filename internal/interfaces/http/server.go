// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/settlement"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// WorkbookWriter renders an expedition export
type WorkbookWriter interface {
	Write(exp *entity.Expedition, summary *settlement.Summary, clients map[string]*entity.Client, w io.Writer) error
}

// HealthFunc reports component health for /health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
	CORSOrigin    string // empty disables CORS headers
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  120 * time.Second,
		MaxUploadSize: 20 << 20,
	}
}

// Services groups the application services exposed over HTTP
type Services struct {
	Packages     service.PackageService
	Expeditions  service.ExpeditionService
	Verification service.VerificationService
	Catalog      service.CatalogService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, workbook WorkbookWriter, health HealthFunc, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadSize

	server := &Server{
		config:   config,
		router:   router,
		handlers: NewHandlers(services, workbook, health, config.MaxUploadSize, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.config.CORSOrigin != "" {
		s.router.Use(corsMiddleware(s.config.CORSOrigin))
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+actorHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"actor", c.GetString(actorKey),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.Use(requireActor())
	{
		api.GET("/clients", h.ListClients)
		api.POST("/clients", h.CreateClient)
		api.GET("/categories", h.ListCategories)
		api.POST("/categories", h.CreateCategory)

		api.GET("/expeditions", h.ListExpeditions)
		api.POST("/expeditions", h.CreateExpedition)
		api.GET("/expeditions/:id", h.GetExpedition)
		api.PUT("/expeditions/:id", h.UpdateExpedition)
		api.DELETE("/expeditions/:id", h.DeleteExpedition)
		api.GET("/expeditions/:id/summary", h.ExpeditionSummary)
		api.GET("/expeditions/:id/reference-price", h.ExpeditionReferencePrice)
		api.GET("/expeditions/:id/export", h.ExportExpedition)

		api.POST("/packages", h.CreatePackage)
		api.GET("/packages/:id", h.GetPackage)
		api.PATCH("/packages/:id", h.EditPackage)
		api.DELETE("/packages/:id", h.DeletePackage)
		api.GET("/packages/:id/history", h.PackageHistory)

		api.POST("/packages/:id/lines", h.AddLine)
		api.DELETE("/packages/:id/lines/:lineId", h.RemoveLine)
		api.PUT("/packages/:id/unit-price", h.SetUnitPrice)
		api.PUT("/packages/:id/counterparty-close", h.SetCounterpartyClose)
		api.PUT("/packages/:id/status", h.SetStatus)
		api.PUT("/packages/:id/payment-status", h.SetPaymentStatus)
		api.POST("/packages/:id/comments", h.AddComment)
		api.DELETE("/packages/:id/comments/:commentId", h.RemoveComment)

		api.POST("/packages/:id/invoice", h.UploadInvoice)
		api.DELETE("/packages/:id/invoice", h.DeleteInvoice)
		api.POST("/packages/:id/verify", h.Verify)
		api.DELETE("/packages/:id/verification", h.ClearVerification)
		api.POST("/packages/:id/validate", h.Validate)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
