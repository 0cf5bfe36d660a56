// Package telemetry reports categorized errors to Sentry when the user has
// opted in. Without a configured DSN nothing is initialized and error
// building stays on its fast path.
package telemetry

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/averho/wildset/internal/conf"
	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
)

// Package-level logger specific to telemetry
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/telemetry.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "telemetry", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("telemetry")
		closeLogger = func() error { return nil }
	}
}

var enabled atomic.Bool

// Init starts Sentry reporting when telemetry is enabled and a DSN is set,
// and registers the reporter with the errors package. It is a no-op
// otherwise.
func Init(settings *conf.Settings, version string) error {
	if !settings.Telemetry.Enabled || settings.Telemetry.DSN == "" {
		logger.Debug("telemetry disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Telemetry.DSN,
		SampleRate: 1.0,
		Debug:      false,

		// Keep events free of host identity
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",

		Release: fmt.Sprintf("wildset@%s", version),

		BeforeSend: scrubEvent,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	enabled.Store(true)
	errors.SetTelemetryReporter(&SentryReporter{})
	logger.Info("telemetry initialized")
	return nil
}

// scrubEvent strips user and host identifying fields before an event leaves
// the process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// SentryReporter forwards enhanced errors to Sentry.
type SentryReporter struct{}

// IsEnabled reports whether events will actually be sent.
func (r *SentryReporter) IsEnabled() bool {
	return enabled.Load()
}

// ReportError captures one enhanced error with its component and category as
// tags and its context as extras. Already-reported errors are skipped.
func (r *SentryReporter) ReportError(ee *errors.EnhancedError) {
	if ee == nil || ee.IsReported() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", ee.GetCategory())
		for k, v := range ee.GetContext() {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(ee)
	})
	ee.MarkReported()
}

// Flush waits up to timeout for buffered events to reach Sentry. Call before
// process exit.
func Flush(timeout time.Duration) {
	if !enabled.Load() {
		return
	}
	sentry.Flush(timeout)
}
