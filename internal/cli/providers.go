package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/config"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/metrics"
)

// NewAllocator creates the allocator described by the allocator config section
func NewAllocator(cfg config.AllocatorConfig, logger *slog.Logger) (*distribution.Allocator, error) {
	rounding, err := distribution.ParseRounding(cfg.Rounding)
	if err != nil {
		return nil, fmt.Errorf("allocator config: %w", err)
	}

	return distribution.NewAllocator(distribution.Config{
		Rounding: rounding,
		Strict:   cfg.Strict,
	}, logger.With("system", "allocator")), nil
}

// NewRecorder creates the metrics recorder. With metrics disabled it returns a
// no-op recorder and a nil gatherer.
func NewRecorder(cfg config.MetricsConfig) (metrics.Recorder, prometheus.Gatherer) {
	if !cfg.Enabled {
		return metrics.NewNop(), nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return metrics.NewPrometheus(reg, cfg.Namespace), reg
}
