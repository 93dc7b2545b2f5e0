package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ProbeConfig configures a ProbeSource
type ProbeConfig struct {
	URL      string
	Timeout  time.Duration
	Schedule string
}

// ProbeSource decides connectivity from the local interfaces plus an HTTP HEAD
// against a health URL, re-checked on a cron schedule.
type ProbeSource struct {
	cfg        ProbeConfig
	client     *http.Client
	interfaces InterfaceLister
	logger     *zap.Logger
	events     chan State
	now        func() time.Time
}

// ProbeOption configures a ProbeSource
type ProbeOption func(*ProbeSource)

// WithInterfaceLister replaces net.Interfaces
func WithInterfaceLister(fn InterfaceLister) ProbeOption {
	return func(p *ProbeSource) { p.interfaces = fn }
}

// WithHTTPClient replaces the probe client
func WithHTTPClient(client *http.Client) ProbeOption {
	return func(p *ProbeSource) { p.client = client }
}

// NewProbeSource validates cfg and creates the source
func NewProbeSource(cfg ProbeConfig, logger *zap.Logger, opts ...ProbeOption) (*ProbeSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30s"
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid probe schedule %q: %w", cfg.Schedule, err)
	}

	p := &ProbeSource{
		cfg:        cfg,
		client:     defaultHTTPClient(cfg.Timeout),
		interfaces: net.Interfaces,
		logger:     logger.With(zap.String("component", "probe_source")),
		events:     make(chan State, 1),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Check inspects the interfaces and, when a link is up, probes the health URL
func (p *ProbeSource) Check(ctx context.Context) (State, error) {
	connected, typ, err := linkState(p.interfaces)
	if err != nil {
		return State{}, fmt.Errorf("failed to list interfaces: %w", err)
	}
	if !connected {
		return offlineState(p.now()), nil
	}

	return State{
		Connected:         true,
		InternetReachable: Reachable(p.probe(ctx)),
		Type:              typ,
		CheckedAt:         p.now(),
	}, nil
}

// probe reports whether the health URL answered. Any status below 500 counts.
func (p *ProbeSource) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.URL, nil)
	if err != nil {
		p.logger.Warn("Invalid probe request", zap.Error(err))
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Probe failed", zap.String("url", p.cfg.URL), zap.Error(err))
		return false
	}
	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// Events delivers the result of every scheduled check
func (p *ProbeSource) Events() <-chan State {
	return p.events
}

// Run checks connectivity on the configured schedule until ctx is cancelled
func (p *ProbeSource) Run(ctx context.Context) {
	c := cron.New()
	_, err := c.AddFunc(p.cfg.Schedule, func() {
		state, err := p.Check(ctx)
		if err != nil {
			p.logger.Warn("Scheduled connectivity check failed", zap.Error(err))
			state = offlineState(p.now())
		}
		publish(p.events, state)
	})
	if err != nil {
		p.logger.Error("Failed to schedule connectivity checks", zap.String("schedule", p.cfg.Schedule), zap.Error(err))
		return
	}

	p.logger.Info("Connectivity probe started",
		zap.String("url", p.cfg.URL),
		zap.String("schedule", p.cfg.Schedule),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}
