package di

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	"github.com/jrjohn/arcana-pos-go/internal/testutil"
)

const configTemplate = `
app:
  name: till-test
log:
  level: error
api:
  base_url: %s
  timeout: 2s
storage:
  driver: memory
network:
  source: static
sync:
  halt_on_failure: %t
  sync_on_start: false
agent:
  listen_addr: 127.0.0.1:0
`

func writeConfig(t *testing.T, path, baseURL string, halt bool) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, baseURL, halt)), 0o600))
}

func TestPrintBanner(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{
			Name:        "test-app",
			Version:     "1.0.0",
			Environment: "test",
		},
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		Network: config.NetworkConfig{Source: config.SourceStatic},
	}

	assert.NotPanics(t, func() { PrintBanner(cfg, zap.NewNop()) })
}

func TestProvideLogger(t *testing.T) {
	lc := fxtest.NewLifecycle(t)

	logger, err := provideLogger(lc, &config.LogConfig{Level: "debug", Encoding: "json"}, &config.AppConfig{Name: "till", Debug: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestModulesNotNil(t *testing.T) {
	modules := map[string]fx.Option{
		"AppModule":           AppModule,
		"CoreModule":          CoreModule,
		"ConfigModule":        ConfigModule,
		"LoggerModule":        LoggerModule,
		"ObservabilityModule": ObservabilityModule,
		"StorageModule":       StorageModule,
		"OfflineModule":       OfflineModule,
		"NetworkModule":       NetworkModule,
		"ClientModule":        ClientModule,
		"SessionModule":       SessionModule,
		"EventsModule":        EventsModule,
		"SyncModule":          SyncModule,
		"ControllerModule":    ControllerModule,
		"HTTPServerModule":    HTTPServerModule,
	}
	for name, module := range modules {
		assert.NotNil(t, module, name)
	}
}

func TestAppModule_ValidGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "http://127.0.0.1:1", false)

	require.NoError(t, fx.ValidateApp(fx.Supply(ConfigPath(path)), AppModule, fx.NopLogger))
}

func TestAppModule_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var orders atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/orders" {
			orders.Add(1)
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer api.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, api.URL, false)

	var (
		service *offline.Service
		engine  *syncer.Engine
		router  *gin.Engine
	)
	app := fxtest.New(t,
		fx.Supply(ConfigPath(path)),
		AppModule,
		fx.NopLogger,
		fx.Populate(&service, &engine, &router),
	)
	app.RequireStart()
	defer app.RequireStop()

	_, err := service.EnqueueRequest(context.Background(), offline.Request{
		Method:   offline.MethodPost,
		Endpoint: "/orders",
		Payload:  json.RawMessage(`{"total":500}`),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/offline/sync", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), orders.Load())
	assert.Zero(t, service.GetQueueSize())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "arcana_pos_sync_replays_total")

	writeConfig(t, path, api.URL, true)
	testutil.WaitForCondition(t, 5*time.Second, engine.HaltOnFailure, "halt_on_failure reloaded")
}
