package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Risk levels for the per-IP risk report. RiskUnknown marks a report built
// while the event store was unreachable.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
	RiskUnknown  RiskLevel = "unknown"
)

// Risk assessment thresholds and weights.
const (
	riskWindow = time.Hour

	riskFailedThreshold  = 5
	riskAccountThreshold = 3
	riskFailedWeight     = 2
	riskAccountWeight    = 5

	riskSuspiciousAbove = 10
	riskMediumAbove     = 5
	riskHighAbove       = 20
	riskCriticalAbove   = 50
)

// RiskReport is a heavier-weight assessment of one IP than the bare
// reputation score: it carries the contributing indicators and suggested
// remediations alongside the numeric score.
type RiskReport struct {
	IPAddress       string    `json:"ipAddress"`
	Score           int       `json:"suspiciousScore"`
	Level           RiskLevel `json:"riskLevel"`
	IsSuspicious    bool      `json:"isSuspicious"`
	Indicators      []string  `json:"indicators"`
	FailedAttempts  int       `json:"failedAttempts"`
	UniqueUsers     int       `json:"uniqueUsers"`
	Recommendations []string  `json:"recommendations"`
}

// AssessIP builds a risk report for one IP from its last hour of login
// activity. A store failure yields a neutral report at RiskUnknown rather
// than an error.
func (e *Engine) AssessIP(ctx context.Context, ip string) *RiskReport {
	failed, err := e.gateway.CountFailedLogins(ctx, ip, riskWindow)
	if err != nil {
		return unknownRisk(ip, err)
	}
	uniqueUsers, err := e.gateway.CountDistinctAccounts(ctx, ip, riskWindow)
	if err != nil {
		return unknownRisk(ip, err)
	}

	report := &RiskReport{
		IPAddress:      ip,
		Level:          RiskLow,
		FailedAttempts: failed,
		UniqueUsers:    uniqueUsers,
		Indicators:     []string{},
	}

	if failed > riskFailedThreshold {
		report.Score += failed * riskFailedWeight
		report.Indicators = append(report.Indicators,
			fmt.Sprintf("%d failed login attempts (threshold: %d)", failed, riskFailedThreshold))
	}
	if uniqueUsers > riskAccountThreshold {
		report.Score += uniqueUsers * riskAccountWeight
		report.Indicators = append(report.Indicators,
			fmt.Sprintf("%d different user accounts attempted (threshold: %d)", uniqueUsers, riskAccountThreshold))
	}

	switch {
	case report.Score > riskCriticalAbove:
		report.Level = RiskCritical
	case report.Score > riskHighAbove:
		report.Level = RiskHigh
	case report.Score > riskMediumAbove:
		report.Level = RiskMedium
	}

	report.IsSuspicious = report.Score > riskSuspiciousAbove
	report.Recommendations = riskRecommendations(report.Level)

	return report
}

// ChallengeContext carries the per-attempt signals the challenge gate weighs
// alongside the IP's history. The caller supplies them; this engine has no
// device or location knowledge of its own.
type ChallengeContext struct {
	IsNewDevice   bool
	IsNewLocation bool
}

// ShouldChallenge reports whether a login attempt from this IP warrants
// step-up verification before proceeding. Suspicious history, elevated risk,
// an unrecognized device, or an unrecognized location each suffice alone.
func (e *Engine) ShouldChallenge(ctx context.Context, ip string, login ChallengeContext) bool {
	report := e.AssessIP(ctx, ip)
	if report.Score > riskSuspiciousAbove {
		return true
	}
	if report.Level == RiskHigh || report.Level == RiskCritical {
		return true
	}
	if login.IsNewDevice {
		return true
	}
	return login.IsNewLocation
}

func unknownRisk(ip string, err error) *RiskReport {
	slog.Warn("risk assessment read failed", "ip_address", ip, "error", err)
	return &RiskReport{
		IPAddress:       ip,
		Level:           RiskUnknown,
		Indicators:      []string{"Error analyzing IP"},
		Recommendations: []string{},
	}
}

func riskRecommendations(level RiskLevel) []string {
	switch level {
	case RiskMedium:
		return []string{
			"Require CAPTCHA verification",
			"Monitor account activity",
			"Alert user of unusual attempts",
		}
	case RiskHigh:
		return []string{
			"Block further attempts temporarily",
			"Require additional verification (2FA)",
			"Notify user immediately",
			"Consider IP blocking",
		}
	case RiskCritical:
		return []string{
			"Block IP immediately",
			"Require 2FA + CAPTCHA",
			"Alert security team",
			"Invalidate all existing sessions",
			"Investigate account compromise",
		}
	default:
		return []string{"Monitor for patterns"}
	}
}
