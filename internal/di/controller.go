package di

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	httpctrl "github.com/jrjohn/arcana-pos-go/internal/controller/http"
	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	"github.com/jrjohn/arcana-pos-go/internal/session"
	"github.com/jrjohn/arcana-pos-go/internal/websocket"
)

// ControllerModule provides HTTP controller dependencies
var ControllerModule = fx.Module("controller",
	fx.Provide(
		provideOfflineController,
		provideSessionController,
	),
)

func provideOfflineController(
	service *offline.Service,
	engine *syncer.Engine,
	monitor *network.Monitor,
	hub *websocket.Hub,
	logger *zap.Logger,
) *httpctrl.OfflineController {
	var ctrl *httpctrl.OfflineController
	events := websocket.NewHandler(hub, func() any { return ctrl.Snapshot() }, logger)
	ctrl = httpctrl.NewOfflineController(service, engine, monitor, events.Serve)
	return ctrl
}

func provideSessionController(sessions *session.Manager) *httpctrl.SessionController {
	return httpctrl.NewSessionController(sessions)
}
