package network

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
)

// Source answers connectivity checks and may push state changes
type Source interface {
	// Check performs one connectivity check
	Check(ctx context.Context) (State, error)
	// Events delivers state changes observed by the source; nil if it never pushes
	Events() <-chan State
}

// Runner is implemented by sources that need a background loop.
// Run blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// NewSource builds the source selected by cfg.Source
func NewSource(cfg *config.NetworkConfig, logger *zap.Logger) (Source, error) {
	switch cfg.Source {
	case config.SourceProbe:
		return NewProbeSource(ProbeConfig{
			URL:      cfg.ProbeURL,
			Timeout:  cfg.ProbeTimeout,
			Schedule: cfg.ProbeSchedule,
		}, logger)
	case config.SourceSocket:
		return NewSocketSource(cfg.SocketURL, logger), nil
	case config.SourceStatic:
		return NewStaticSource(State{
			Connected:         true,
			InternetReachable: Reachable(true),
			Type:              TypeUnknown,
			CheckedAt:         time.Now(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported connectivity source %q", cfg.Source)
	}
}

// publish replaces any undelivered state so readers always see the latest
func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
