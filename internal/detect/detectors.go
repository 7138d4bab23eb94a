package detect

import (
	"context"
	"fmt"

	"sentinel-ids/internal/schema"
)

// checkBruteForce flags repeated failed logins from one IP. Severity
// escalates to CRITICAL past 20 attempts regardless of the configured
// trigger threshold.
func (e *Engine) checkBruteForce(ctx context.Context, ip string) Result {
	failedCount, err := e.gateway.CountFailedLogins(ctx, ip, e.cfg.FailedLoginsWindow)
	if err != nil {
		return StoreFailure(err)
	}

	if failedCount < e.cfg.FailedLoginsThreshold {
		return NotDetected()
	}

	severity := schema.SeverityHigh
	if failedCount > 20 {
		severity = schema.SeverityCritical
	}

	return Detected(schema.Anomaly{
		Type:      schema.AnomalyBruteForce,
		Severity:  severity,
		IPAddress: ip,
		Details: map[string]any{
			"failedAttempts": failedCount,
			"timeWindow":     fmt.Sprintf("%d minutes", int(e.cfg.FailedLoginsWindow.Minutes())),
		},
		Recommendation: fmt.Sprintf("Block IP %s from login for 24 hours", ip),
	})
}

// checkAccountEnumeration flags one IP probing many distinct accounts.
func (e *Engine) checkAccountEnumeration(ctx context.Context, ip string) Result {
	uniqueAccounts, err := e.gateway.CountDistinctAccounts(ctx, ip, e.cfg.EnumerationWindow)
	if err != nil {
		return StoreFailure(err)
	}

	if uniqueAccounts < e.cfg.AccountEnumThreshold {
		return NotDetected()
	}

	return Detected(schema.Anomaly{
		Type:      schema.AnomalyEnumeration,
		Severity:  schema.SeverityHigh,
		IPAddress: ip,
		Details: map[string]any{
			"uniqueAccounts": uniqueAccounts,
			"timeWindow":     fmt.Sprintf("%d minutes", int(e.cfg.EnumerationWindow.Minutes())),
		},
		Recommendation: fmt.Sprintf("Investigate %s for account enumeration attack", ip),
	})
}

// checkRapidRequests flags request floods from one IP over a fixed
// one-minute window.
func (e *Engine) checkRapidRequests(ctx context.Context, ip string) Result {
	requestCount, err := e.gateway.CountRequests(ctx, ip, rapidRequestWindow)
	if err != nil {
		return StoreFailure(err)
	}

	if requestCount <= e.cfg.RapidRequestsPerMinute {
		return NotDetected()
	}

	return Detected(schema.Anomaly{
		Type:      schema.AnomalyRapidRequests,
		Severity:  schema.SeverityMedium,
		IPAddress: ip,
		Details: map[string]any{
			"requestsPerMinute": requestCount,
			"threshold":         e.cfg.RapidRequestsPerMinute,
		},
		Recommendation: fmt.Sprintf("Rate limit IP %s to 10 requests/minute", ip),
	})
}

// checkGeographicAnomaly is a stable extension point. It requires a GeoIP
// data source that is not integrated, so it never fires; it keeps the
// orchestrator's fan-out shape fixed for when one is wired in.
func (e *Engine) checkGeographicAnomaly(ctx context.Context, userID, ip string) Result {
	return NotDetected()
}

// checkDataExport flags a single oversized data export by a known user.
func (e *Engine) checkDataExport(userID string, dataSize int64) Result {
	if dataSize <= 0 {
		return NotDetected()
	}

	sizeMB := float64(dataSize) / (1024 * 1024)
	if sizeMB <= e.cfg.DataExportSizeMB {
		return NotDetected()
	}

	return Detected(schema.Anomaly{
		Type:     schema.AnomalyLargeDataExport,
		Severity: schema.SeverityMedium,
		UserID:   userID,
		Details: map[string]any{
			"exportSizeMB": fmt.Sprintf("%.2f", sizeMB),
			"threshold":    fmt.Sprintf("%gMB", e.cfg.DataExportSizeMB),
		},
		Recommendation: fmt.Sprintf("Review data export by user %s", userID),
	})
}
