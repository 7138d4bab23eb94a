package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// ClickHouse server error code for a query against a table that does not exist.
const chUnknownTable = 60

// SuspiciousIP is an IP with a high failed-login count in the recent window.
type SuspiciousIP struct {
	IPAddress   string `json:"ipAddress"`
	FailedCount uint64 `json:"failedCount"`
}

// EnumerationHotspot is an IP probing many distinct accounts.
type EnumerationHotspot struct {
	IPAddress      string `json:"ipAddress"`
	UniqueAccounts uint64 `json:"uniqueAccounts"`
}

// AuditRecord is an append-only entry in the audit trail.
type AuditRecord struct {
	ID         string
	Action     string
	IPAddress  string
	UserID     string
	UserAgent  string
	HTTPMethod string
	Endpoint   string
	Status     string
	Details    map[string]any
	CreatedAt  time.Time
}

// EventStore reads windowed aggregates over historical login and request
// activity and appends audit records. All reads are bounded by queryTimeout;
// callers treat any error as absence of evidence.
type EventStore struct {
	client       *ClickHouseClient
	queryTimeout time.Duration
}

// NewEventStore creates an EventStore over an established ClickHouse connection.
func NewEventStore(client *ClickHouseClient, queryTimeout time.Duration) *EventStore {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &EventStore{
		client:       client,
		queryTimeout: queryTimeout,
	}
}

func (s *EventStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// CountFailedLogins returns the number of failed login attempts from ip
// within the given window.
func (s *EventStore) CountFailedLogins(ctx context.Context, ip string, window time.Duration) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM login_attempts
		WHERE ip_address = ?
		  AND attempt_type = 'failed'
		  AND created_at >= now64(3) - INTERVAL ? SECOND
	`, ip, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, wrapRead("CountFailedLogins", "login_attempts", err)
	}
	return int(count), nil
}

// CountDistinctAccounts returns the number of distinct non-empty user IDs
// attempted from ip within the window, successful or not.
func (s *EventStore) CountDistinctAccounts(ctx context.Context, ip string, window time.Duration) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT uniqExact(user_id)
		FROM login_attempts
		WHERE ip_address = ?
		  AND user_id != ''
		  AND created_at >= now64(3) - INTERVAL ? SECOND
	`, ip, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, wrapRead("CountDistinctAccounts", "login_attempts", err)
	}
	return int(count), nil
}

// CountRequests returns the number of audited requests from ip within the
// window. Every inbound request is expected to leave one audit row.
func (s *EventStore) CountRequests(ctx context.Context, ip string, window time.Duration) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM audit_log
		WHERE ip_address = ?
		  AND created_at >= now64(3) - INTERVAL ? SECOND
	`, ip, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, wrapRead("CountRequests", "audit_log", err)
	}
	return int(count), nil
}

// HasSuccessfulLogin reports whether ip completed at least one successful
// login within the window. A recent success offsets the reputation score.
func (s *EventStore) HasSuccessfulLogin(ctx context.Context, ip string, window time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM login_attempts
		WHERE ip_address = ?
		  AND attempt_type = 'success'
		  AND created_at >= now64(3) - INTERVAL ? SECOND
	`, ip, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return false, wrapRead("HasSuccessfulLogin", "login_attempts", err)
	}
	return count > 0, nil
}

// CountFailedLoginsLast24h returns the total failed logins across all IPs in
// the last 24 hours.
func (s *EventStore) CountFailedLoginsLast24h(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM login_attempts
		WHERE attempt_type = 'failed'
		  AND created_at >= now64(3) - INTERVAL 24 HOUR
	`).Scan(&count)
	if err != nil {
		return 0, wrapRead("CountFailedLoginsLast24h", "login_attempts", err)
	}
	return int(count), nil
}

// ListSuspiciousIPs returns IPs whose failed-login count in the last hour
// reached the threshold, highest count first.
func (s *EventStore) ListSuspiciousIPs(ctx context.Context, threshold, limit int) ([]SuspiciousIP, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.client.Query(ctx, `
		SELECT ip_address, count() AS failed_count
		FROM login_attempts
		WHERE attempt_type = 'failed'
		  AND created_at >= now64(3) - INTERVAL 1 HOUR
		GROUP BY ip_address
		HAVING failed_count >= ?
		ORDER BY failed_count DESC
		LIMIT ?
	`, uint64(threshold), limit)
	if err != nil {
		return nil, wrapRead("ListSuspiciousIPs", "login_attempts", err)
	}
	defer rows.Close()

	var result []SuspiciousIP
	for rows.Next() {
		var ip SuspiciousIP
		if err := rows.Scan(&ip.IPAddress, &ip.FailedCount); err != nil {
			return nil, wrapRead("ListSuspiciousIPs", "login_attempts", err)
		}
		result = append(result, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapRead("ListSuspiciousIPs", "login_attempts", err)
	}
	return result, nil
}

// ListEnumerationHotspots returns IPs that probed at least threshold distinct
// accounts in the last hour, widest spread first.
func (s *EventStore) ListEnumerationHotspots(ctx context.Context, threshold, limit int) ([]EnumerationHotspot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.client.Query(ctx, `
		SELECT ip_address, uniqExact(user_id) AS unique_accounts
		FROM login_attempts
		WHERE user_id != ''
		  AND created_at >= now64(3) - INTERVAL 1 HOUR
		GROUP BY ip_address
		HAVING unique_accounts >= ?
		ORDER BY unique_accounts DESC
		LIMIT ?
	`, uint64(threshold), limit)
	if err != nil {
		return nil, wrapRead("ListEnumerationHotspots", "login_attempts", err)
	}
	defer rows.Close()

	var result []EnumerationHotspot
	for rows.Next() {
		var h EnumerationHotspot
		if err := rows.Scan(&h.IPAddress, &h.UniqueAccounts); err != nil {
			return nil, wrapRead("ListEnumerationHotspots", "login_attempts", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapRead("ListEnumerationHotspots", "login_attempts", err)
	}
	return result, nil
}

// CountLockedAccounts returns the number of accounts whose lockout has not
// yet expired. Deployments without an account service never create the
// lockout table; that case reads as zero.
func (s *EventStore) CountLockedAccounts(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count uint64
	err := s.client.QueryRow(ctx, `
		SELECT count()
		FROM account_lockouts
		WHERE lock_expires_at > now64(3)
	`).Scan(&count)
	if err != nil {
		if isUnknownTable(err) {
			return 0, nil
		}
		return 0, wrapRead("CountLockedAccounts", "account_lockouts", err)
	}
	return int(count), nil
}

// InsertAuditRecord appends a record to the audit trail. A missing ID or
// timestamp is filled in before the insert.
func (s *EventStore) InsertAuditRecord(ctx context.Context, rec AuditRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	details := "{}"
	if len(rec.Details) > 0 {
		if b, err := json.Marshal(rec.Details); err == nil {
			details = string(b)
		}
	}

	err := s.client.Exec(ctx, `
		INSERT INTO audit_log (id, action, ip_address, user_id, user_agent, http_method, endpoint, status, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Action, rec.IPAddress, rec.UserID, rec.UserAgent,
		rec.HTTPMethod, rec.Endpoint, rec.Status, details, rec.CreatedAt)
	if err != nil {
		return WrapInsertError("InsertAuditRecord", "audit_log", err)
	}
	return nil
}

// wrapRead classifies a read failure: deadline errors become timeouts,
// missing tables become ErrTableMissing, everything else a query error.
func wrapRead(op, table string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StorageError{Op: op, Table: table, Err: ErrTimeout}
	}
	if isUnknownTable(err) {
		return &StorageError{Op: op, Table: table, Err: ErrTableMissing}
	}
	return WrapQueryError(op, table, err)
}

func isUnknownTable(err error) bool {
	var exc *clickhouse.Exception
	return errors.As(err, &exc) && exc.Code == chUnknownTable
}
