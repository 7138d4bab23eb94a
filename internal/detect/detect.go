// Package detect implements the intrusion detection engine: five stateless
// rule evaluators over historical login/request activity, an IP reputation
// scorer, and the orchestrator that fans them out per security event.
//
// The engine fails open. Any event-store failure during a detector's or the
// scorer's read is treated as absence of evidence: the detector reports
// nothing found and the scorer contributes zero. A detection miss under a
// store outage is preferred over turning the outage into request failures.
package detect

import (
	"context"
	"time"

	"sentinel-ids/internal/schema"
)

// Gateway is the read contract the engine requires from the event store.
// All operations are windowed aggregates ending "now"; none mutate state.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// CountFailedLogins returns failed login attempts from ip in the window.
	CountFailedLogins(ctx context.Context, ip string, window time.Duration) (int, error)

	// CountDistinctAccounts returns distinct account identifiers attempted
	// from ip in the window.
	CountDistinctAccounts(ctx context.Context, ip string, window time.Duration) (int, error)

	// CountRequests returns audited requests from ip in the window.
	CountRequests(ctx context.Context, ip string, window time.Duration) (int, error)

	// HasSuccessfulLogin reports whether ip completed a successful login
	// in the window.
	HasSuccessfulLogin(ctx context.Context, ip string, window time.Duration) (bool, error)
}

// Alerter receives the anomalies found by one orchestrator pass. The return
// value reports whether the alert was durably recorded; the orchestrator
// logs a false result but does not let it affect the detection outcome.
type Alerter interface {
	RaiseAlert(ctx context.Context, event *schema.SecurityEvent, anomalies []schema.Anomaly) bool
}

// Result is the outcome of one detector evaluation. It distinguishes "no
// evidence" from "store unreachable" so the distinction survives into logs,
// even though callers of the orchestrator only ever see detected anomalies.
type Result struct {
	anomaly *schema.Anomaly
	err     error
}

// Detected builds a Result carrying a found anomaly.
func Detected(a schema.Anomaly) Result {
	return Result{anomaly: &a}
}

// NotDetected is the neutral result: nothing found, store healthy.
func NotDetected() Result {
	return Result{}
}

// StoreFailure builds a Result for a read that failed. It collapses to
// NotDetected at the orchestrator boundary after being logged.
func StoreFailure(err error) Result {
	return Result{err: err}
}

// Found reports whether the detector produced an anomaly.
func (r Result) Found() bool {
	return r.anomaly != nil
}

// Anomaly returns the detected anomaly, or nil.
func (r Result) Anomaly() *schema.Anomaly {
	return r.anomaly
}

// StoreErr returns the store failure behind a negative result, or nil.
func (r Result) StoreErr() error {
	return r.err
}
