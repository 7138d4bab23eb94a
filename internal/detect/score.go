package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sentinel-ids/internal/schema"
)

// Scoring windows and weights. Failed logins dominate the score but cap out
// so that account spread still differentiates heavy attackers; a recent
// successful login offsets the score as evidence of a legitimate user.
const (
	scoreLookback      = time.Hour
	scoreSuccessWindow = 7 * 24 * time.Hour

	failedLoginWeight = 2
	failedLoginCap    = 40
	accountWeight     = 3
	accountCap        = 30
	successOffset     = 20
)

// ScoreIP computes the reputation score for one IP on the closed interval
// [0, 100]; higher is more suspicious. The three underlying reads are issued
// concurrently; each failed read contributes zero. Scoring the same IP twice
// over unchanged data yields the same score.
func (e *Engine) ScoreIP(ctx context.Context, ip string) int {
	var (
		wg         sync.WaitGroup
		failed     int
		accounts   int
		hasSuccess bool
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		n, err := e.gateway.CountFailedLogins(ctx, ip, scoreLookback)
		if err != nil {
			slog.Warn("score read failed", "read", "failed_logins", "ip_address", ip, "error", err)
			return
		}
		failed = n
	}()
	go func() {
		defer wg.Done()
		n, err := e.gateway.CountDistinctAccounts(ctx, ip, scoreLookback)
		if err != nil {
			slog.Warn("score read failed", "read", "distinct_accounts", "ip_address", ip, "error", err)
			return
		}
		accounts = n
	}()
	go func() {
		defer wg.Done()
		ok, err := e.gateway.HasSuccessfulLogin(ctx, ip, scoreSuccessWindow)
		if err != nil {
			slog.Warn("score read failed", "read", "successful_login", "ip_address", ip, "error", err)
			return
		}
		hasSuccess = ok
	}()
	wg.Wait()

	score := min(failedLoginCap, failed*failedLoginWeight)
	score += min(accountCap, accounts*accountWeight)
	if hasSuccess {
		score -= successOffset
	}

	return clamp(score, 0, 100)
}

// ScoreBand maps a reputation score to a display severity.
func ScoreBand(score int) schema.Severity {
	switch {
	case score >= 70:
		return schema.SeverityHigh
	case score >= 40:
		return schema.SeverityMedium
	default:
		return schema.SeverityLow
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
