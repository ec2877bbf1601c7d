package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertLockoutSpike      AlertType = "lockout_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// spikeDetector raises an alert when threshold hits land within window.
// The hit count restarts after each alert so one spike alerts once.
type spikeDetector struct {
	alert     AlertType
	message   string
	window    time.Duration
	threshold int
	hits      []time.Time
}

// hit records an occurrence at now and returns the alert it triggers, if any.
func (d *spikeDetector) hit(now time.Time) (AlertEvent, bool) {
	cutoff := now.Add(-d.window)
	kept := d.hits[:0]
	for _, t := range d.hits {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	d.hits = append(kept, now)
	if len(d.hits) < d.threshold {
		return AlertEvent{}, false
	}
	ev := AlertEvent{
		Type:      d.alert,
		Message:   d.message,
		Count:     len(d.hits),
		Threshold: d.threshold,
		Timestamp: now,
	}
	d.hits = d.hits[:0]
	return ev, true
}

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultLockoutWindow         = 5 * time.Minute
	defaultLockoutThreshold      = 20
)

// metricsCollector feeds audit events to the spike detector watching
// each event type.
type metricsCollector struct {
	mu        sync.Mutex
	detectors map[AuditEvent]*spikeDetector
	alertFn   AlertFunc
	now       func() time.Time
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		detectors: map[AuditEvent]*spikeDetector{
			AuditLoginFailure: {
				alert:     AlertLoginFailureSpike,
				message:   "login failure rate exceeds threshold",
				window:    defaultLoginFailureWindow,
				threshold: defaultLoginFailureThreshold,
			},
			// Many refused logins at once means many usernames are being guessed.
			AuditLoginRateLimited: {
				alert:     AlertLockoutSpike,
				message:   "locked-out login rate exceeds threshold",
				window:    defaultLockoutWindow,
				threshold: defaultLockoutThreshold,
			},
		},
		alertFn: alertFn,
		now:     time.Now,
	}
}

// recordEvent counts event and invokes the alert callback, outside the
// lock, when a spike is detected.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	d, ok := m.detectors[event]
	if !ok {
		return
	}
	m.mu.Lock()
	ev, fired := d.hit(m.now())
	m.mu.Unlock()
	if fired {
		m.alertFn(ev)
	}
}
