package detect

import (
	"context"
	"errors"
	"testing"
)

func TestAssessIP(t *testing.T) {
	tests := []struct {
		name           string
		failed         int
		accounts       int
		wantScore      int
		wantLevel      RiskLevel
		wantSuspicious bool
		wantIndicators int
	}{
		{"clean ip", 0, 0, 0, RiskLow, false, 0},
		{"failures at threshold", 5, 0, 0, RiskLow, false, 0},
		{"failures just above threshold", 6, 0, 12, RiskMedium, true, 1},
		{"heavy failures", 15, 0, 30, RiskHigh, true, 1},
		{"account spread alone", 0, 5, 25, RiskHigh, true, 1},
		{"combined critical", 15, 5, 55, RiskCritical, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{failedLogins: tt.failed, distinctAccounts: tt.accounts}
			engine := testEngine(gw, nil)

			report := engine.AssessIP(context.Background(), "203.0.113.5")
			if report.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", report.Score, tt.wantScore)
			}
			if report.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", report.Level, tt.wantLevel)
			}
			if report.IsSuspicious != tt.wantSuspicious {
				t.Errorf("isSuspicious = %v, want %v", report.IsSuspicious, tt.wantSuspicious)
			}
			if len(report.Indicators) != tt.wantIndicators {
				t.Errorf("got %d indicators, want %d", len(report.Indicators), tt.wantIndicators)
			}
			if len(report.Recommendations) == 0 {
				t.Error("report should always carry recommendations")
			}
		})
	}
}

func TestAssessIP_StoreFailure(t *testing.T) {
	gw := &fakeGateway{failedLoginsErr: errors.New("store down")}
	engine := testEngine(gw, nil)

	report := engine.AssessIP(context.Background(), "203.0.113.5")
	if report.Level != RiskUnknown {
		t.Errorf("level = %s, want unknown", report.Level)
	}
	if report.Score != 0 || report.IsSuspicious {
		t.Errorf("failed assessment should be neutral, got score=%d suspicious=%v",
			report.Score, report.IsSuspicious)
	}
}

func TestShouldChallenge(t *testing.T) {
	tests := []struct {
		name     string
		failed   int
		accounts int
		login    ChallengeContext
		want     bool
	}{
		{"clean ip", 0, 0, ChallengeContext{}, false},
		{"activity at threshold", 5, 0, ChallengeContext{}, false},
		{"mild activity", 6, 0, ChallengeContext{}, true},
		{"heavy activity", 20, 10, ChallengeContext{}, true},
		{"new device alone", 0, 0, ChallengeContext{IsNewDevice: true}, true},
		{"new location alone", 0, 0, ChallengeContext{IsNewLocation: true}, true},
		{"new device with clean history", 5, 0, ChallengeContext{IsNewDevice: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{failedLogins: tt.failed, distinctAccounts: tt.accounts}
			engine := testEngine(gw, nil)

			if got := engine.ShouldChallenge(context.Background(), "203.0.113.5", tt.login); got != tt.want {
				t.Errorf("ShouldChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}
