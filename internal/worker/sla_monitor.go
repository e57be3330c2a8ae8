package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// SLAMonitor periodically refreshes the open/breached ticket gauges from
// store counts. It only feeds metrics; ticket breach flags are written on the
// request path, never here.
type SLAMonitor struct {
	tickets  repository.TicketRepository
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
}

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(tickets repository.TicketRepository, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration) *SLAMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SLAMonitor{tickets: tickets, metrics: metrics, logger: logger, interval: interval}
}

// Start runs the refresh loop until the context is cancelled.
func (m *SLAMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			m.refresh(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *SLAMonitor) refresh(ctx context.Context) {
	open, err := m.tickets.CountByStatusOpenOrInProgress(ctx)
	if err != nil {
		m.logger.Warn("sla monitor: open count failed", zap.Error(err))
		return
	}
	breached, err := m.tickets.CountBreachedUnresolved(ctx)
	if err != nil {
		m.logger.Warn("sla monitor: breached count failed", zap.Error(err))
		return
	}

	m.metrics.OpenTickets.Set(float64(open))
	m.metrics.BreachedTickets.Set(float64(breached))
	m.logger.Debug("sla gauges refreshed", zap.Int("open", open), zap.Int("breached", breached))
}
