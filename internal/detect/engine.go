package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel-ids/internal/config"
	"sentinel-ids/internal/logging"
	"sentinel-ids/internal/schema"
)

// rapidRequestWindow is the fixed lookback for the rapid-request detector.
const rapidRequestWindow = time.Minute

// Fixed result slots for the detector fan-out. Evaluation is concurrent;
// the output anomaly list preserves this order for deterministic results.
const (
	slotBruteForce = iota
	slotEnumeration
	slotRapidRequests
	slotGeographic
	slotDataExport
	slotCount
)

var slotNames = [slotCount]string{
	"brute_force",
	"account_enumeration",
	"rapid_requests",
	"geographic_anomaly",
	"data_export",
}

// Engine evaluates security events against historical activity. It holds no
// state between calls; all memory of past behavior lives in the event store.
type Engine struct {
	cfg       config.DetectionConfig
	gateway   Gateway
	alerter   Alerter
	validator *schema.Validator
}

// NewEngine creates a detection engine. alerter may be nil, in which case
// detected anomalies are returned but never alerted on.
func NewEngine(cfg config.DetectionConfig, gateway Gateway, alerter Alerter) *Engine {
	return &Engine{
		cfg:       cfg,
		gateway:   gateway,
		alerter:   alerter,
		validator: schema.NewValidator(),
	}
}

// DetectAnomalies evaluates one event against all applicable detectors and
// returns the anomalies found, in canonical order. The IP-scoped detectors
// always run; the user-scoped ones only when the event carries a user. If
// anything was found, the alerter is invoked exactly once before returning;
// its outcome does not affect the returned list.
//
// A malformed event (missing or invalid IP address) is rejected up front
// rather than dispatched into the detectors.
func (e *Engine) DetectAnomalies(ctx context.Context, event *schema.SecurityEvent) ([]schema.Anomaly, error) {
	if err := e.validator.Validate(event); err != nil {
		return nil, fmt.Errorf("invalid security event: %w", err)
	}

	var results [slotCount]Result
	var wg sync.WaitGroup

	run := func(slot int, fn func() Result) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// One panicking detector must not take down the request or the
			// other detectors; its slot stays NotDetected.
			defer func() {
				if r := recover(); r != nil {
					slog.Error("detector panicked",
						"detector", slotNames[slot],
						"ip_address", event.IPAddress,
						"panic", r,
					)
				}
			}()
			results[slot] = fn()
		}()
	}

	run(slotBruteForce, func() Result { return e.checkBruteForce(ctx, event.IPAddress) })
	run(slotEnumeration, func() Result { return e.checkAccountEnumeration(ctx, event.IPAddress) })
	run(slotRapidRequests, func() Result { return e.checkRapidRequests(ctx, event.IPAddress) })

	if event.HasUser() {
		run(slotGeographic, func() Result { return e.checkGeographicAnomaly(ctx, event.UserID, event.IPAddress) })
		run(slotDataExport, func() Result { return e.checkDataExport(event.UserID, event.DataSize) })
	}

	wg.Wait()

	var anomalies []schema.Anomaly
	for slot, result := range results {
		if err := result.StoreErr(); err != nil {
			// Fail open: a store failure reads as "no evidence" but is
			// still visible operationally.
			slog.Warn("detector read failed, treating as not detected",
				"detector", slotNames[slot],
				"ip_address", event.IPAddress,
				"error", err,
			)
			continue
		}
		if result.Found() {
			anomalies = append(anomalies, *result.Anomaly())
		}
	}

	if len(anomalies) > 0 {
		slog.Info("anomalies detected",
			"ip_address", event.IPAddress,
			"user_id", logging.MaskUserID(event.UserID),
			"count", len(anomalies),
		)
		if e.alerter != nil {
			if ok := e.alerter.RaiseAlert(ctx, event, anomalies); !ok {
				slog.Warn("alert delivery failed", "ip_address", event.IPAddress)
			}
		}
	}

	return anomalies, nil
}
