package syncagent

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// AlertCriticalVulnerabilities fires when a light sync observes more critical
// vulnerabilities on a device than the previous pass.
const AlertCriticalVulnerabilities = "critical_vulnerabilities"

// Alert is an observable side effect of a sync, consumed by whatever paging
// or notification channel the operator wires in.
type Alert struct {
	Type     string
	Hostname string
	Previous int
	Current  int
	At       time.Time
}

// AlertSink receives alerts raised by the engine. Implementations must not
// block the sync path for long.
type AlertSink interface {
	Raise(ctx context.Context, alert Alert)
}

// logAlertSink is the default sink: alerts land in the structured log.
type logAlertSink struct{}

func (logAlertSink) Raise(_ context.Context, alert Alert) {
	log.Warn().
		Str("alert", alert.Type).
		Str("hostname", alert.Hostname).
		Int("previous", alert.Previous).
		Int("current", alert.Current).
		Msg("syncagent: alert raised")
}
