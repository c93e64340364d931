package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/apperrors"
	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/collections"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/orders"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the components the HTTP routes call into.
type Services struct {
	Store       Pinger
	Collections *collections.Proxy
	Catalog     *catalog.Catalog
	Orders      *orders.Service
}

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	services Services
}

func NewGateway(cfg *config.Config, logger *zap.Logger, services Services) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		services: services,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to our homepage!")
	})

	// Health checks
	g.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	g.router.GET("/readyz", g.ready)

	cols := g.router.Group("/collections")
	{
		cols.GET("/products", g.listProducts)
		cols.GET("/:collectionName", g.listCollection)
		cols.GET("/:collectionName/:max/:sortField/:direction", g.listBounded)
		cols.POST("/:collectionName", g.createRecord)
		cols.PUT("/:collectionName/:id", g.updateRecord)
		cols.DELETE("/:collectionName/:id", g.deleteRecord)
	}

	g.router.GET("/search", g.search)

	order := g.router.Group("/order")
	{
		order.POST("/start", g.startOrder)
		order.GET("/:id", g.getOrder)
		order.PUT("/:id/cart", g.setCart)
		order.DELETE("/:id", g.cancelOrder)
		order.POST("/:id/submit", g.submitOrder)
	}

	g.router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Resource not found")
	})
}

// Engine exposes the router, mainly for tests.
func (g *Gateway) Engine() *gin.Engine {
	return g.router
}

// Start serves HTTP on the configured address until ctx is done, then
// shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	addr := g.config.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("Gateway starting", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	g.logger.Info("Gateway stopped")
	return nil
}

func (g *Gateway) ready(c *gin.Context) {
	if err := g.services.Store.Ping(c.Request.Context()); err != nil {
		g.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps an error from the services onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case apperrors.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnknownCollection), errors.Is(err, apperrors.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidState), errors.Is(err, apperrors.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body. Client errors carry a "message"
// field; internal failures are logged and answered with a generic "error".
func (g *Gateway) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("Request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
