package di

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/apiclient"
	"github.com/jrjohn/arcana-pos-go/internal/cache"
	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/observability"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/resilience"
	"github.com/jrjohn/arcana-pos-go/internal/session"
)

// ClientModule provides the response cache and the REST client
var ClientModule = fx.Module("client",
	fx.Provide(
		provideCache,
		provideAPIClient,
	),
)

func provideCache(metrics *observability.Metrics, logger *zap.Logger) *cache.ResponseCache {
	return cache.New(logger, cache.WithRecorder(metrics))
}

func provideAPIClient(
	cfg *config.APIConfig,
	sessions *session.Manager,
	monitor *network.Monitor,
	service *offline.Service,
	responses *cache.ResponseCache,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *apiclient.Client {
	client := apiclient.New(cfg.BaseURL, cfg.Timeout, logger,
		apiclient.WithTokenSource(sessions),
		apiclient.WithConnectivity(monitor),
		apiclient.WithQueue(service),
		apiclient.WithCache(responses),
		apiclient.WithRetryAttempts(cfg.RetryAttempts),
	)

	breaker := client.Breaker()
	metrics.SetBreakerState(breaker.Name(), int(breaker.State()))
	breaker.OnStateChange(func(name string, from, to resilience.State) {
		metrics.SetBreakerState(name, int(to))
	})
	return client
}
