package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/websocket"
)

// EventsModule provides the websocket hub that pushes queue and network changes to the UI
var EventsModule = fx.Module("events",
	fx.Provide(provideHub),
	fx.Invoke(forwardEvents),
)

func provideHub(lc fx.Lifecycle, logger *zap.Logger) *websocket.Hub {
	hub := websocket.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hub.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return hub
}

func forwardEvents(lc fx.Lifecycle, hub *websocket.Hub, service *offline.Service, monitor *network.Monitor) {
	var unsubscribe []func()

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			unsubscribe = append(unsubscribe,
				service.Subscribe(func(e offline.Event) {
					hub.Broadcast(websocket.NewMessage(websocket.MessageTypeQueue, string(e.Type), e))
				}),
				monitor.Subscribe(func(s network.State) {
					hub.Broadcast(websocket.NewMessage(websocket.MessageTypeNetwork, "changed", s))
				}),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			for _, fn := range unsubscribe {
				fn()
			}
			return nil
		},
	})
}
