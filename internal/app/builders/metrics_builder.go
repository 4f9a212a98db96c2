package builders

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vultr740-byte/openclaw/internal/config"
	"github.com/vultr740-byte/openclaw/internal/cron"
	"github.com/vultr740-byte/openclaw/internal/logger"
	"github.com/vultr740-byte/openclaw/internal/workers"
)

// Metrics holds the registry and the component collectors. The zero value
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry
	Cron     *cron.Metrics
	Workers  *workers.Metrics
}

type MetricsBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewMetricsBuilder(cfg *config.Config, log *logger.Logger) *MetricsBuilder {
	return &MetricsBuilder{
		config: cfg,
		logger: log,
	}
}

// Build registers all collectors, or returns an empty Metrics when the
// endpoint is disabled.
func (b *MetricsBuilder) Build() *Metrics {
	if !b.config.Metrics.Enabled {
		return &Metrics{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ns := b.config.Metrics.Namespace
	return &Metrics{
		Registry: reg,
		Cron:     cron.InitPrometheusMetrics(ns, reg),
		Workers:  workers.InitPrometheusMetrics(ns, reg),
	}
}

// MetricsServer serves /metrics.
type MetricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *logger.Logger
}

// Serve starts the HTTP endpoint for m. It returns nil when metrics are
// disabled.
func (b *MetricsBuilder) Serve(m *Metrics) (*MetricsServer, error) {
	if m == nil || m.Registry == nil {
		return nil, nil
	}

	ln, err := net.Listen("tcp", b.config.Metrics.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", b.config.Metrics.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	s := &MetricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: b.logger,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", err)
		}
	}()

	b.logger.Info("metrics endpoint listening", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return s, nil
}

// Addr is the address the server listens on.
func (s *MetricsServer) Addr() string {
	return s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
