// Package report is the exception channel for non-fatal integrity alarms:
// conditions that must reach an operator but never abort a poll cycle.
package report

import (
	"context"
	"log/slog"

	"github.com/opencustody/recon/internal/logging"
	"github.com/opencustody/recon/internal/metrics"
)

type Reporter interface {
	Exception(ctx context.Context, msg string, fields ...any)
}

// LogReporter reports exceptions through structured logging and counts them.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Exception(ctx context.Context, msg string, fields ...any) {
	log := r.logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	log.Error(msg, fields...)
	metrics.ExceptionsTotal.Inc()
}
