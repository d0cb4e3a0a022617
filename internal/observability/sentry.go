package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry enables error reporting when dsn is set. With an empty dsn it
// does nothing, and CaptureError and FlushSentry become no-ops.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	})
}

// CaptureError reports err with the command that produced it.
func CaptureError(err error, command string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("command", command)
		sentry.CaptureException(err)
	})
}

// FlushSentry waits briefly for queued events to be sent.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
