package tenant

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// FatalReporter sends a tenant's Broken transitions to Sentry. A nil
// *FatalReporter is valid and Report on it is a no-op, so tests and
// environments without a DSN configured can construct a Tenant
// without wiring sentry at all.
type FatalReporter struct {
	hub *sentry.Hub
}

// NewFatalReporter initializes a dedicated sentry Hub from dsn. An
// empty dsn produces a reporter whose Report calls are silently
// dropped by the underlying client, the same behavior sentry-go gives
// any unconfigured client.
func NewFatalReporter(dsn, release string) (*FatalReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return nil, err
	}
	return &FatalReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures err as a fatal-path event. Safe to call on a nil
// receiver.
func (r *FatalReporter) Report(err error) {
	if r == nil || r.hub == nil {
		return
	}
	r.hub.CaptureException(err)
}

// Flush blocks until queued events are delivered or the timeout
// elapses. Safe to call on a nil receiver.
func (r *FatalReporter) Flush(timeoutMillis int) {
	if r == nil || r.hub == nil {
		return
	}
	r.hub.Flush(time.Duration(timeoutMillis) * time.Millisecond)
}
