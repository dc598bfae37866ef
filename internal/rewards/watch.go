package rewards

import (
	"context"
	"time"

	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/shopspring/decimal"
)

// ClaimWatchEarn grants WatchReward for one verified ad completion. It is
// not limited here; the API's request limiter bounds call volume.
func (s *Service) ClaimWatchEarn(ctx context.Context) (decimal.Decimal, error) {
	return s.claim(ctx, OpClaimWatchEarn, func(l *ledger.Ledger, now time.Time) (decimal.Decimal, string, error) {
		l.WatchEarn.TotalWatched++
		l.WatchEarn.TotalEarned = l.WatchEarn.TotalEarned.Add(WatchReward)
		l.Mining.Credit(WatchReward)
		return WatchReward, OutcomeGranted, nil
	})
}
