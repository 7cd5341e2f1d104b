// Package notify dispatches publish-cycle notifications and data-quality
// findings to configured sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snapline-io/snapline/internal/metrics"
	"github.com/snapline-io/snapline/pkg/types"
)

// Sink is a notification destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher routes alerts to configured sinks. Delivery is best-effort: a
// failing sink never fails a publish cycle.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from sink configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// Dispatch sends an alert to all configured sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			metrics.AlertsFailed.Add(1)
			d.logger.Warn("sending alert", "sink", sink.Name(), "error", err)
			continue
		}
		metrics.AlertsDispatched.Add(1)
	}
}

// AlertFunc returns a callback suitable for the publisher's alert hook.
func (d *Dispatcher) AlertFunc() func(types.Alert) {
	return func(alert types.Alert) {
		d.Dispatch(context.Background(), alert)
	}
}

func newSink(cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertSQS:
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("SQS queue URL required")
		}
		return NewSQSSink(cfg.QueueURL, cfg.Region)
	case types.AlertEventBridge:
		if cfg.BusName == "" {
			return nil, fmt.Errorf("EventBridge bus name required")
		}
		return NewEventBridgeSink(cfg.BusName, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}
