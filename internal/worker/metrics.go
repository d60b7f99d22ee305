package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WorkerMetrics holds the instruments the watch handler records. A nil
// receiver is safe so handlers run unchanged when metrics fail to init.
type WorkerMetrics struct {
	watchChecksTotal          metric.Int64Counter
	watchTerminalTotal        metric.Int64Counter
	notificationsCreatedTotal metric.Int64Counter
}

func NewWorkerMetrics() (*WorkerMetrics, error) {
	meter := otel.Meter("kalam/worker")

	watchChecks, err := meter.Int64Counter(
		"worker.watch.checks.total",
		metric.WithDescription("Total number of watch-task status checks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	watchTerminal, err := meter.Int64Counter(
		"worker.watch.terminal.total",
		metric.WithDescription("Total number of watched jobs observed reaching a terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"worker.notifications.created.total",
		metric.WithDescription("Total number of notifications written by the worker"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkerMetrics{
		watchChecksTotal:          watchChecks,
		watchTerminalTotal:        watchTerminal,
		notificationsCreatedTotal: notifications,
	}, nil
}

func (m *WorkerMetrics) recordCheck(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.watchChecksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *WorkerMetrics) recordTerminal(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.watchTerminalTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *WorkerMetrics) recordNotification(ctx context.Context) {
	if m == nil {
		return
	}
	m.notificationsCreatedTotal.Add(ctx, 1)
}
