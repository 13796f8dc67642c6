package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
)

// Dispatcher queues alerts and delivers them to a webhook in the
// background. A nil Dispatcher is valid and discards every alert.
type Dispatcher struct {
	sender      *WebhookSender
	minSeverity Severity
	logger      *logging.Logger

	queue    chan Alert
	dropped  atomic.Int64
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher from the alerting configuration.
// Returns nil when alerting is disabled or no webhook is configured;
// dispatching to a nil Dispatcher is a no-op.
func NewDispatcher(cfg config.AlertingConfig, logger *logging.Logger) *Dispatcher {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return nil
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	minSeverity := Severity(cfg.MinSeverity)
	if minSeverity.Rank() == 0 {
		minSeverity = SeverityWarning
	}

	d := &Dispatcher{
		sender:      NewWebhookSender(cfg.WebhookURL, cfg.Timeout),
		minSeverity: minSeverity,
		logger:      logger,
		queue:       make(chan Alert, queueSize),
		stopCh:      make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Dispatch queues an alert for delivery. It never blocks: alerts below the
// minimum severity are ignored, and alerts that arrive while the queue is
// full are dropped and counted.
func (d *Dispatcher) Dispatch(_ context.Context, a Alert) {
	if d == nil {
		return
	}
	if a.Severity.Rank() < d.minSeverity.Rank() {
		return
	}
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}

	select {
	case d.queue <- a:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many alerts were discarded because the queue was
// full.
func (d *Dispatcher) Dropped() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops the delivery worker after draining queued alerts.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case a := <-d.queue:
			d.deliver(a)
		case <-d.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case a := <-d.queue:
					d.deliver(a)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(a Alert) {
	if err := d.sender.Send(a); err != nil {
		d.logger.Warn("alert delivery failed",
			"component", a.Component,
			"severity", string(a.Severity),
			"error", err)
	}
}
