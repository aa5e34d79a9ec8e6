// Package metrics registers the watchdog's OpenTelemetry instruments
// on the global meter provider. Without a metrics SDK installed every
// instrument is a no-op, so the pipeline can update counters
// unconditionally.
package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vigil.watchdog"

// Watch bundles the counters the watch pipeline updates.
type Watch struct {
	EventsReceived    metric.Int64Counter
	EventsExcluded    metric.Int64Counter
	Analyses          metric.Int64Counter
	RemindersAppended metric.Int64Counter
	LogWriteFailures  metric.Int64Counter
}

// NewWatch creates the pipeline counters on the global meter.
func NewWatch() (*Watch, error) {
	meter := otel.Meter(meterName)

	received, err := meter.Int64Counter("watchdog.events.received",
		metric.WithDescription("File change events delivered by the watcher"))
	if err != nil {
		return nil, err
	}
	excluded, err := meter.Int64Counter("watchdog.events.excluded",
		metric.WithDescription("Events discarded by exclusion rules"))
	if err != nil {
		return nil, err
	}
	analyses, err := meter.Int64Counter("watchdog.analyses",
		metric.WithDescription("Settled events handed to the analyzer"))
	if err != nil {
		return nil, err
	}
	appended, err := meter.Int64Counter("watchdog.reminders.appended",
		metric.WithDescription("Reminder records written to the log"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("watchdog.log.write_failures",
		metric.WithDescription("Reminder log writes that failed"))
	if err != nil {
		return nil, err
	}

	return &Watch{
		EventsReceived:    received,
		EventsExcluded:    excluded,
		Analyses:          analyses,
		RemindersAppended: appended,
		LogWriteFailures:  failures,
	}, nil
}
