// Package metrics builds the operational security rollup served to the
// dashboard. It is a pure read path, separate from detection: four windowed
// aggregates fetched concurrently and combined into one snapshot.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sentinel-ids/internal/config"
	"sentinel-ids/internal/storage"
)

// Result list sizes for the dashboard.
const (
	suspiciousIPLimit = 10
	hotspotLimit      = 5
)

// Gateway is the read contract the aggregator requires from the event store.
type Gateway interface {
	CountFailedLoginsLast24h(ctx context.Context) (int, error)
	ListSuspiciousIPs(ctx context.Context, threshold, limit int) ([]storage.SuspiciousIP, error)
	CountLockedAccounts(ctx context.Context) (int, error)
	ListEnumerationHotspots(ctx context.Context, threshold, limit int) ([]storage.EnumerationHotspot, error)
}

// SecurityMetrics is one consistent rollup of recent security activity.
type SecurityMetrics struct {
	FailedLoginsLast24h int                          `json:"failedLoginsLast24h"`
	SuspiciousIPs       []storage.SuspiciousIP       `json:"suspiciousIPs"`
	BlockedAccounts     int                          `json:"blockedAccounts"`
	EnumerationAttempts []storage.EnumerationHotspot `json:"enumerationAttempts"`
	GeneratedAt         time.Time                    `json:"generatedAt"`
}

// Aggregator produces security metrics snapshots on demand.
type Aggregator struct {
	gateway Gateway
	cfg     config.DetectionConfig
}

// NewAggregator creates an Aggregator. The detection thresholds decide which
// IPs qualify as suspicious or as enumeration hotspots in the rollup.
func NewAggregator(gateway Gateway, cfg config.DetectionConfig) *Aggregator {
	return &Aggregator{
		gateway: gateway,
		cfg:     cfg,
	}
}

// Snapshot fetches all four aggregates concurrently and returns the combined
// rollup. If any read fails the whole snapshot is nil: partial metrics are
// never returned, callers treat nil as "metrics temporarily unavailable".
func (a *Aggregator) Snapshot(ctx context.Context) *SecurityMetrics {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	fail := func(read string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
		slog.Warn("metrics read failed", "read", read, "error", err)
	}

	metrics := &SecurityMetrics{
		SuspiciousIPs:       []storage.SuspiciousIP{},
		EnumerationAttempts: []storage.EnumerationHotspot{},
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		n, err := a.gateway.CountFailedLoginsLast24h(ctx)
		if err != nil {
			fail("failed_logins_24h", err)
			return
		}
		metrics.FailedLoginsLast24h = n
	}()
	go func() {
		defer wg.Done()
		ips, err := a.gateway.ListSuspiciousIPs(ctx, a.cfg.FailedLoginsThreshold, suspiciousIPLimit)
		if err != nil {
			fail("suspicious_ips", err)
			return
		}
		if ips != nil {
			metrics.SuspiciousIPs = ips
		}
	}()
	go func() {
		defer wg.Done()
		n, err := a.gateway.CountLockedAccounts(ctx)
		if err != nil {
			fail("locked_accounts", err)
			return
		}
		metrics.BlockedAccounts = n
	}()
	go func() {
		defer wg.Done()
		hotspots, err := a.gateway.ListEnumerationHotspots(ctx, a.cfg.AccountEnumThreshold, hotspotLimit)
		if err != nil {
			fail("enumeration_hotspots", err)
			return
		}
		if hotspots != nil {
			metrics.EnumerationAttempts = hotspots
		}
	}()
	wg.Wait()

	if firstErr != nil {
		return nil
	}

	metrics.GeneratedAt = time.Now().UTC()
	return metrics
}
