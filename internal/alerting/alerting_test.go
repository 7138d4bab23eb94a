package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sentinel-ids/internal/schema"
	"sentinel-ids/internal/storage"
)

// fakeSink records audit inserts and can be told to fail.
type fakeSink struct {
	mu      sync.Mutex
	records []storage.AuditRecord
	err     error
}

func (f *fakeSink) InsertAuditRecord(ctx context.Context, rec storage.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

// fakePublisher records published alerts and can be told to fail.
type fakePublisher struct {
	mu     sync.Mutex
	keys   []string
	values []any
	err    error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func sampleAnomalies() []schema.Anomaly {
	return []schema.Anomaly{
		{Type: schema.AnomalyBruteForce, Severity: schema.SeverityCritical, IPAddress: "203.0.113.9"},
		{Type: schema.AnomalyEnumeration, Severity: schema.SeverityHigh, IPAddress: "203.0.113.9"},
	}
}

func TestRaiseAlert(t *testing.T) {
	sink := &fakeSink{}
	alerter := NewAlerter(sink, nil, nil)

	event := &schema.SecurityEvent{
		IPAddress: "203.0.113.9",
		UserID:    "user-3",
		Method:    "POST",
		Path:      "/login",
		UserAgent: "curl/8.0",
	}

	if ok := alerter.RaiseAlert(context.Background(), event, sampleAnomalies()); !ok {
		t.Fatal("RaiseAlert() = false, want true")
	}

	if len(sink.records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Action != ActionIntrusionAlert {
		t.Errorf("action = %q, want %q", rec.Action, ActionIntrusionAlert)
	}
	if rec.IPAddress != "203.0.113.9" || rec.UserID != "user-3" {
		t.Errorf("record carries %s/%s, want event ip/user", rec.IPAddress, rec.UserID)
	}
	if rec.HTTPMethod != "POST" || rec.Endpoint != "/login" || rec.UserAgent != "curl/8.0" {
		t.Errorf("record missing request context: %+v", rec)
	}

	wantSummary := "BRUTE_FORCE_ATTACK (CRITICAL), ACCOUNT_ENUMERATION (HIGH)"
	if rec.Details["summary"] != wantSummary {
		t.Errorf("summary = %q, want %q", rec.Details["summary"], wantSummary)
	}
}

func TestRaiseAlert_SinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("store down")}
	alerter := NewAlerter(sink, nil, nil)

	event := &schema.SecurityEvent{IPAddress: "203.0.113.9"}
	if ok := alerter.RaiseAlert(context.Background(), event, sampleAnomalies()); ok {
		t.Error("RaiseAlert() = true despite sink failure, want false")
	}
}

func TestRaiseAlert_Publishes(t *testing.T) {
	sink := &fakeSink{}
	pub := &fakePublisher{}
	alerter := NewAlerter(sink, pub, nil)

	event := &schema.SecurityEvent{IPAddress: "203.0.113.9"}
	if ok := alerter.RaiseAlert(context.Background(), event, sampleAnomalies()); !ok {
		t.Fatal("RaiseAlert() = false, want true")
	}

	if len(pub.keys) != 1 || pub.keys[0] != "203.0.113.9" {
		t.Errorf("published keys = %v, want the event IP", pub.keys)
	}
	msg, ok := pub.values[0].(alertMessage)
	if !ok {
		t.Fatalf("published value has type %T, want alertMessage", pub.values[0])
	}
	if len(msg.Anomalies) != 2 {
		t.Errorf("published %d anomalies, want 2", len(msg.Anomalies))
	}
}

func TestRaiseAlert_PublishFailureDoesNotFailAlert(t *testing.T) {
	sink := &fakeSink{}
	pub := &fakePublisher{err: errors.New("broker down")}
	alerter := NewAlerter(sink, pub, nil)

	event := &schema.SecurityEvent{IPAddress: "203.0.113.9"}
	if ok := alerter.RaiseAlert(context.Background(), event, sampleAnomalies()); !ok {
		t.Error("RaiseAlert() = false on publish failure, want true once the audit write landed")
	}
}

func TestRaiseAlert_AppendOnly(t *testing.T) {
	sink := &fakeSink{}
	alerter := NewAlerter(sink, nil, nil)

	event := &schema.SecurityEvent{IPAddress: "203.0.113.9"}
	alerter.RaiseAlert(context.Background(), event, sampleAnomalies())
	alerter.RaiseAlert(context.Background(), event, sampleAnomalies())

	if len(sink.records) != 2 {
		t.Errorf("repeated alert produced %d records, want 2", len(sink.records))
	}
}

func TestBlockIP(t *testing.T) {
	sink := &fakeSink{}
	blocks := NewMockBlockStore()
	alerter := NewAlerter(sink, nil, blocks)

	before := time.Now().UTC()
	if ok := alerter.BlockIP(context.Background(), "203.0.113.9", "brute force", 6*time.Hour); !ok {
		t.Fatal("BlockIP() = false, want true")
	}

	if len(sink.records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Action != ActionIPBlocked {
		t.Errorf("action = %q, want %q", rec.Action, ActionIPBlocked)
	}
	if rec.Details["reason"] != "brute force" {
		t.Errorf("reason = %v, want %q", rec.Details["reason"], "brute force")
	}
	if rec.Details["durationHours"] != 6.0 {
		t.Errorf("durationHours = %v, want 6", rec.Details["durationHours"])
	}

	expiresAt, err := time.Parse(time.RFC3339, rec.Details["expiresAt"].(string))
	if err != nil {
		t.Fatalf("expiresAt is not RFC3339: %v", err)
	}
	if expiresAt.Before(before.Add(6*time.Hour-time.Minute)) || expiresAt.After(before.Add(6*time.Hour+time.Minute)) {
		t.Errorf("expiresAt = %v, want roughly %v", expiresAt, before.Add(6*time.Hour))
	}

	blocked, err := blocks.IsBlocked(context.Background(), "203.0.113.9")
	if err != nil || !blocked {
		t.Errorf("IsBlocked() = %v, %v; want true", blocked, err)
	}
}

func TestBlockIP_DefaultDuration(t *testing.T) {
	sink := &fakeSink{}
	alerter := NewAlerter(sink, nil, nil)

	if ok := alerter.BlockIP(context.Background(), "203.0.113.9", "manual", 0); !ok {
		t.Fatal("BlockIP() = false, want true")
	}
	if got := sink.records[0].Details["durationHours"]; got != 24.0 {
		t.Errorf("durationHours = %v, want default 24", got)
	}
}

func TestBlockIP_SinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("store down")}
	blocks := NewMockBlockStore()
	alerter := NewAlerter(sink, nil, blocks)

	if ok := alerter.BlockIP(context.Background(), "203.0.113.9", "manual", time.Hour); ok {
		t.Error("BlockIP() = true despite sink failure, want false")
	}
	if blocked, _ := blocks.IsBlocked(context.Background(), "203.0.113.9"); blocked {
		t.Error("block intent stored even though the audit write failed")
	}
}

func TestBlockIP_BlockStoreFailureIsBestEffort(t *testing.T) {
	sink := &fakeSink{}
	blocks := NewMockBlockStore()
	blocks.failSet = true
	alerter := NewAlerter(sink, nil, blocks)

	if ok := alerter.BlockIP(context.Background(), "203.0.113.9", "manual", time.Hour); !ok {
		t.Error("BlockIP() = false on block store failure, want true once the audit write landed")
	}
}

func TestAlerterIsBlocked(t *testing.T) {
	blocks := NewMockBlockStore()
	alerter := NewAlerter(&fakeSink{}, nil, blocks)

	if alerter.IsBlocked(context.Background(), "203.0.113.9") {
		t.Error("IsBlocked() = true before any block intent")
	}

	alerter.BlockIP(context.Background(), "203.0.113.9", "manual", time.Hour)
	if !alerter.IsBlocked(context.Background(), "203.0.113.9") {
		t.Error("IsBlocked() = false after a recorded block intent")
	}
	if alerter.IsBlocked(context.Background(), "203.0.113.10") {
		t.Error("IsBlocked() = true for an IP that was never blocked")
	}
}

func TestAlerterIsBlocked_NoStore(t *testing.T) {
	alerter := NewAlerter(&fakeSink{}, nil, nil)
	if alerter.IsBlocked(context.Background(), "203.0.113.9") {
		t.Error("IsBlocked() = true without a block store")
	}
}

func TestMockBlockStore_Expiry(t *testing.T) {
	blocks := NewMockBlockStore()
	if err := blocks.SetBlockIntent(context.Background(), "203.0.113.9", "test", -time.Second); err != nil {
		t.Fatalf("SetBlockIntent() error = %v", err)
	}
	if blocked, _ := blocks.IsBlocked(context.Background(), "203.0.113.9"); blocked {
		t.Error("expired intent should not read as blocked")
	}
}
