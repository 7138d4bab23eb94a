// Package alerting turns detected anomalies into durable records: an
// append-only audit entry per alert, an optional Kafka message for
// downstream consumers, and an optional block-intent key for enforcement
// layers. Nothing here blocks traffic or delivers notifications itself.
package alerting

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sentinel-ids/internal/logging"
	"sentinel-ids/internal/schema"
	"sentinel-ids/internal/storage"
)

// Audit actions written by this package.
const (
	ActionIntrusionAlert = "INTRUSION_DETECTION_ALERT"
	ActionIPBlocked      = "IP_BLOCKED"
)

// DefaultBlockDuration applies when a block request carries no duration.
const DefaultBlockDuration = 24 * time.Hour

// AuditSink is the append-only audit trail alerts are written to.
type AuditSink interface {
	InsertAuditRecord(ctx context.Context, rec storage.AuditRecord) error
}

// Alerter records alerts and block intents. The publisher and block store
// are optional; a nil value disables that output. Both operations are
// best-effort and append-only: repeating a call produces another record,
// never an error.
type Alerter struct {
	sink      AuditSink
	publisher Publisher
	blocks    BlockStore
}

// NewAlerter creates an Alerter. publisher and blocks may be nil.
func NewAlerter(sink AuditSink, publisher Publisher, blocks BlockStore) *Alerter {
	return &Alerter{
		sink:      sink,
		publisher: publisher,
		blocks:    blocks,
	}
}

// alertMessage is the Kafka payload for one alert.
type alertMessage struct {
	Action    string           `json:"action"`
	IPAddress string           `json:"ipAddress"`
	UserID    string           `json:"userId,omitempty"`
	Summary   string           `json:"summary"`
	Anomalies []schema.Anomaly `json:"anomalies"`
	Timestamp time.Time        `json:"timestamp"`
}

// RaiseAlert writes one audit record summarizing the anomalies found for an
// event and publishes the alert if a publisher is configured. It reports
// whether the audit write succeeded; a failure is logged, never propagated.
func (a *Alerter) RaiseAlert(ctx context.Context, event *schema.SecurityEvent, anomalies []schema.Anomaly) bool {
	summary := summarize(anomalies)

	rec := storage.AuditRecord{
		Action:     ActionIntrusionAlert,
		IPAddress:  event.IPAddress,
		UserID:     event.UserID,
		UserAgent:  event.UserAgent,
		HTTPMethod: event.Method,
		Endpoint:   event.Path,
		Status:     "DETECTED",
		Details: logging.SanitizeDetails(map[string]any{
			"summary":   summary,
			"anomalies": anomalies,
		}),
	}

	if err := a.sink.InsertAuditRecord(ctx, rec); err != nil {
		slog.Error("failed to record intrusion alert",
			"ip_address", event.IPAddress,
			"summary", summary,
			"error", err,
		)
		return false
	}

	slog.Warn("intrusion alert raised",
		"ip_address", event.IPAddress,
		"user_id", logging.MaskUserID(event.UserID),
		"summary", summary,
	)

	if a.publisher != nil {
		msg := alertMessage{
			Action:    ActionIntrusionAlert,
			IPAddress: event.IPAddress,
			UserID:    event.UserID,
			Summary:   summary,
			Anomalies: anomalies,
			Timestamp: time.Now().UTC(),
		}
		if err := a.publisher.PublishJSON(ctx, event.IPAddress, msg); err != nil {
			slog.Warn("failed to publish alert", "ip_address", event.IPAddress, "error", err)
		}
	}

	return true
}

// BlockIP records the intent to block an IP for the given duration. Actual
// enforcement belongs to an external layer; this only persists the intent
// record and, when a block store is configured, a keyed entry that expires
// with the block. A non-positive duration defaults to 24 hours.
func (a *Alerter) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) bool {
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	expiresAt := time.Now().UTC().Add(duration)

	rec := storage.AuditRecord{
		Action:    ActionIPBlocked,
		IPAddress: ip,
		Status:    "BLOCKED",
		Details: map[string]any{
			"reason":        reason,
			"durationHours": duration.Hours(),
			"expiresAt":     expiresAt.Format(time.RFC3339),
		},
	}

	if err := a.sink.InsertAuditRecord(ctx, rec); err != nil {
		slog.Error("failed to record block intent",
			"ip_address", ip,
			"reason", reason,
			"error", err,
		)
		return false
	}

	slog.Warn("ip block intent recorded",
		"ip_address", ip,
		"reason", reason,
		"expires_at", expiresAt,
	)

	if a.blocks != nil {
		if err := a.blocks.SetBlockIntent(ctx, ip, reason, duration); err != nil {
			slog.Warn("failed to store block intent key", "ip_address", ip, "error", err)
		}
	}

	return true
}

// IsBlocked reports whether an unexpired block intent exists for the IP.
// Without a block store every IP reads as unblocked; a failed read does too.
func (a *Alerter) IsBlocked(ctx context.Context, ip string) bool {
	if a.blocks == nil {
		return false
	}
	blocked, err := a.blocks.IsBlocked(ctx, ip)
	if err != nil {
		slog.Warn("block status read failed", "ip_address", ip, "error", err)
		return false
	}
	return blocked
}

// summarize renders the anomaly list as "TYPE (SEVERITY), TYPE (SEVERITY)".
func summarize(anomalies []schema.Anomaly) string {
	parts := make([]string, len(anomalies))
	for i, a := range anomalies {
		parts[i] = string(a.Type) + " (" + string(a.Severity) + ")"
	}
	return strings.Join(parts, ", ")
}
