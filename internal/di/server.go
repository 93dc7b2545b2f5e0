package di

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
	httpctrl "github.com/jrjohn/arcana-pos-go/internal/controller/http"
	"github.com/jrjohn/arcana-pos-go/internal/middleware"
	"github.com/jrjohn/arcana-pos-go/internal/observability"
)

const readHeaderTimeout = 10 * time.Second

// HTTPServerModule provides the local agent API server
var HTTPServerModule = fx.Module("http_server",
	fx.Provide(provideGinEngine),
	fx.Provide(provideHTTPServer),
	fx.Invoke(registerHTTPRoutes),
	fx.Invoke(startHTTPServer),
)

func provideGinEngine(app *config.AppConfig, cfg *config.AgentConfig, metrics *observability.Metrics, logger *zap.Logger) *gin.Engine {
	if !app.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(observability.HTTPMiddleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins...)))
	router.Use(middleware.LocalOnly())

	return router
}

func provideHTTPServer(cfg *config.AgentConfig, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Controllers is a struct that holds all HTTP controllers for fx to inject
type Controllers struct {
	fx.In

	Offline *httpctrl.OfflineController
	Session *httpctrl.SessionController
}

func registerHTTPRoutes(router *gin.Engine, controllers Controllers, metrics *observability.Metrics) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")

	controllers.Offline.RegisterRoutes(api)
	controllers.Session.RegisterRoutes(api)
}

func startHTTPServer(lc fx.Lifecycle, server *http.Server, cfg *config.AgentConfig, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Bind synchronously so a taken port fails startup
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Info("Starting agent API", zap.String("address", listener.Addr().String()))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Agent API error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping agent API")
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(ctx)
		},
	})
}
