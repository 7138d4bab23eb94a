package detect

import (
	"context"
	"errors"
	"testing"

	"sentinel-ids/internal/schema"
)

func TestScoreIP(t *testing.T) {
	tests := []struct {
		name     string
		failed   int
		accounts int
		success  bool
		want     int
	}{
		{"clean ip", 0, 0, false, 0},
		{"few failures", 3, 0, false, 6},
		{"failed contribution capped at 40", 30, 0, false, 40},
		{"success offsets capped contribution", 30, 0, true, 20},
		{"account contribution capped at 30", 0, 20, false, 30},
		{"both contributions capped", 50, 50, false, 70},
		{"success floors at zero", 2, 0, true, 0},
		{"mixed uncapped", 10, 5, false, 35},
		{"mixed with success", 10, 5, true, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{
				failedLogins:     tt.failed,
				distinctAccounts: tt.accounts,
				successfulLogin:  tt.success,
			}
			engine := testEngine(gw, nil)

			got := engine.ScoreIP(context.Background(), "203.0.113.1")
			if got != tt.want {
				t.Errorf("ScoreIP() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreIP_Bounds(t *testing.T) {
	inputs := []struct {
		failed   int
		accounts int
		success  bool
	}{
		{0, 0, false},
		{0, 0, true},
		{1000000, 1000000, false},
		{1000000, 1000000, true},
		{1, 1, true},
	}

	for _, in := range inputs {
		gw := &fakeGateway{
			failedLogins:     in.failed,
			distinctAccounts: in.accounts,
			successfulLogin:  in.success,
		}
		engine := testEngine(gw, nil)

		got := engine.ScoreIP(context.Background(), "203.0.113.1")
		if got < 0 || got > 100 {
			t.Errorf("ScoreIP(failed=%d accounts=%d success=%v) = %d, outside [0,100]",
				in.failed, in.accounts, in.success, got)
		}
	}
}

func TestScoreIP_Monotonic(t *testing.T) {
	prev := -1
	for failed := 0; failed <= 30; failed++ {
		gw := &fakeGateway{failedLogins: failed}
		engine := testEngine(gw, nil)

		got := engine.ScoreIP(context.Background(), "203.0.113.1")
		if got < prev {
			t.Fatalf("score decreased from %d to %d as failed logins rose to %d", prev, got, failed)
		}
		prev = got
	}
}

func TestScoreIP_Idempotent(t *testing.T) {
	gw := &fakeGateway{failedLogins: 7, distinctAccounts: 4, successfulLogin: true}
	engine := testEngine(gw, nil)

	first := engine.ScoreIP(context.Background(), "203.0.113.1")
	second := engine.ScoreIP(context.Background(), "203.0.113.1")
	if first != second {
		t.Errorf("identical snapshots scored differently: %d then %d", first, second)
	}
}

func TestScoreIP_StoreFailureScoresZero(t *testing.T) {
	boom := errors.New("store down")
	gw := &fakeGateway{
		failedLogins:        50,
		distinctAccounts:    50,
		failedLoginsErr:     boom,
		distinctAccountsErr: boom,
		successfulLoginErr:  boom,
	}
	engine := testEngine(gw, nil)

	if got := engine.ScoreIP(context.Background(), "203.0.113.1"); got != 0 {
		t.Errorf("ScoreIP() under total store failure = %d, want 0", got)
	}
}

func TestScoreIP_PartialFailureDropsOnlyThatContribution(t *testing.T) {
	gw := &fakeGateway{
		failedLogins:     10,
		failedLoginsErr:  errors.New("timeout"),
		distinctAccounts: 5,
	}
	engine := testEngine(gw, nil)

	if got := engine.ScoreIP(context.Background(), "203.0.113.1"); got != 15 {
		t.Errorf("ScoreIP() = %d, want 15 from accounts alone", got)
	}
}

func TestScoreBand(t *testing.T) {
	tests := []struct {
		score int
		want  schema.Severity
	}{
		{0, schema.SeverityLow},
		{39, schema.SeverityLow},
		{40, schema.SeverityMedium},
		{69, schema.SeverityMedium},
		{70, schema.SeverityHigh},
		{100, schema.SeverityHigh},
	}

	for _, tt := range tests {
		if got := ScoreBand(tt.score); got != tt.want {
			t.Errorf("ScoreBand(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
