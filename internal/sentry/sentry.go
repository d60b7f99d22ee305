package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init configures the global Sentry client. An empty DSN disables
// reporting entirely, which is the normal local-development state.
func Init(dsn, env, serviceName, serviceVersion string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		ServerName:       serviceName,
		Release:          serviceVersion,
		AttachStacktrace: true,
		// Tracing is handled by OpenTelemetry; Sentry only sees errors.
		TracesSampleRate: 0.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return nil
}

// Flush drains pending events. Deferred in the binaries so shutdown
// does not drop the last errors.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Recover captures a panic and forwards it to Sentry. Deferred at the
// top of each binary's main.
func Recover() {
	sentry.Recover()
}
