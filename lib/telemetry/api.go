package telemetry

import (
	"fmt"
	"log/slog"
)

// API is an abstraction over logging/metrics reports made by the store,
// matcher and reconcile packages, so that tests can assert on what was
// reported.
type API interface {
	// ReportBroken reports a component that failed in a way that should be
	// addressed. `id` names the component, not the line that broke, in the
	// form `<struct or intf>.<method>`, lowercase, dashes between words.
	// ex. `client.match`, `sink.persist`
	ReportBroken(id string, params ...any)

	// ReportWarning reports degraded success that may be subject to
	// investigation, ex. a docker answering for fewer rows than it was sent.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is ignored in production.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a count for a specific event at the current time.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, kind of like a sub logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// SlogAPI implements API on top of the default slog logger. params are
// expected to be key/value pairs like any other slog call.
type SlogAPI struct{}

func (SlogAPI) ReportBroken(id string, params ...any) {
	slog.Error("broken component", append([]any{"id", id}, params...)...)
}

func (SlogAPI) ReportWarning(id string, params ...any) {
	slog.Warn("warning", append([]any{"id", id}, params...)...)
}

func (SlogAPI) ReportDebug(msg string, params ...any) {
	slog.Debug(msg, params...)
}

func (SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}
