// internal/alerting/alerter.go
package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const defaultNotifyTimeout = 10 * time.Second

// Broadcaster pushes alerts to connected dashboards.
type Broadcaster interface {
	BroadcastAlert(alert interface{})
}

// Notifier delivers a batch of alerts to one downstream channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alerts []data.Alert) error
}

// Alerter sends alerts via the configured channels: the dashboard hub synchronously,
// every other notifier in the background.
type Alerter struct {
	hub       Broadcaster
	notifiers []Notifier
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewAlerter(hub Broadcaster, logger *zap.Logger, notifiers ...Notifier) *Alerter {
	return &Alerter{
		hub:       hub,
		notifiers: notifiers,
		timeout:   defaultNotifyTimeout,
		logger:    logger,
	}
}

// ProcessAlerts fans out newly logged alerts.
func (a *Alerter) ProcessAlerts(alerts []data.Alert) {
	if len(alerts) == 0 {
		return
	}

	a.logger.Info("Processing alerts", zap.Int("count", len(alerts)))
	for _, alert := range alerts {
		if a.hub != nil {
			a.hub.BroadcastAlert(alert)
		}
	}

	batch := make([]data.Alert, len(alerts))
	copy(batch, alerts)
	for _, n := range a.notifiers {
		a.wg.Add(1)
		go func(n Notifier) {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			defer cancel()
			if err := n.Notify(ctx, batch); err != nil {
				a.logger.Warn("Alert notification failed", zap.String("notifier", n.Name()), zap.Error(err))
			}
		}(n)
	}
}

// Wait blocks until in-flight notifications have finished.
func (a *Alerter) Wait() {
	a.wg.Wait()
}
