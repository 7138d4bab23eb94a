// Package schema defines the security event and anomaly types shared by the
// detection engine, alerting, and the API layer.
package schema

// SecurityEvent describes a single authentication attempt or API request as
// seen by the caller. IPAddress is the only required field; every other field
// is contextual and its absence simply disables the checks that need it.
type SecurityEvent struct {
	IPAddress string `json:"ip_address" validate:"required,ip"`
	UserID    string `json:"user_id,omitempty" validate:"max=256"`
	Method    string `json:"method,omitempty" validate:"max=16"`
	Path      string `json:"path,omitempty" validate:"max=1024"`
	UserAgent string `json:"user_agent,omitempty" validate:"max=1024"`

	// DataSize is the number of bytes returned or exported by the request,
	// used by the data export check. Zero means not applicable.
	DataSize int64 `json:"data_size,omitempty" validate:"min=0"`
}

// HasUser reports whether the event carries a user identity.
func (e *SecurityEvent) HasUser() bool {
	return e.UserID != ""
}

// AnomalyType identifies the attack pattern a detector looks for.
type AnomalyType string

const (
	AnomalyBruteForce      AnomalyType = "BRUTE_FORCE_ATTACK"
	AnomalyEnumeration     AnomalyType = "ACCOUNT_ENUMERATION"
	AnomalyRapidRequests   AnomalyType = "RAPID_REQUEST_PATTERN"
	AnomalyLargeDataExport AnomalyType = "LARGE_DATA_EXPORT"
	AnomalyGeographic      AnomalyType = "GEOGRAPHIC_ANOMALY"
)

// Severity grades how urgent an anomaly is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Anomaly is a structured finding produced by a detector. It is only ever
// constructed when a detector actually fired; "nothing found" never
// materializes as an Anomaly value.
type Anomaly struct {
	Type           AnomalyType    `json:"type"`
	Severity       Severity       `json:"severity"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
}
