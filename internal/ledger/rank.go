package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

const week = 7 * 24 * time.Hour

func within(v, min, max decimal.Decimal) bool {
	if v.LessThan(min) {
		return false
	}
	return max.Sign() <= 0 || v.LessThan(max)
}

// Rank returns the weekly bonus in the reference currency and the name of the first tier the user qualifies for.
// teamVolume and deposit are in asset units and get converted with rate.
func Rank(teamVolume, deposit decimal.Decimal, directRefs int64, rate decimal.Decimal, tiers []bisonapi.RankTier) (decimal.Decimal, *string) {
	volume := teamVolume.Mul(rate)
	stake := deposit.Mul(rate)
	for i := range tiers {
		t := tiers[i]
		if directRefs < t.MinReferrals {
			continue
		}
		if !within(volume, t.MinVolume, t.MaxVolume) || !within(stake, t.MinDeposit, t.MaxDeposit) {
			continue
		}
		name := t.Name
		return t.WeeklyBonus, &name
	}
	return decimal.Zero, nil
}

func sameRank(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CreditRank recomputes the user's tier and credits the weekly bonus for every whole week
// since it was last credited.
func (e *Engine) CreditRank(ctx context.Context, userId uint, rate decimal.Decimal) error {
	if rate.Sign() <= 0 {
		return fmt.Errorf("credit rank: rate must be positive, got %s", rate)
	}
	return e.transact(ctx, func(tx store.Tx, j *journal) error {
		u, err := lockedUser(tx, userId)
		if err != nil {
			return err
		}
		w, err := lockedWallet(tx, userId)
		if err != nil {
			return err
		}

		bonus, name := Rank(u.TotalTeamVolume, w.TotalDeposit, u.TotalReferrals, rate, e.cfg.Ranks)
		if !sameRank(u.Rank, name) {
			detail := "Rank lost"
			if name != nil {
				detail = fmt.Sprintf("Rank %s reached", *name)
			}
			if err := j.log(tx, u.Id, bisonapi.ActivityRank, detail, decimal.Zero); err != nil {
				return err
			}
			u.Rank = name
		}
		weekly := bisonapi.RoundAmount(bonus.Div(rate))
		w.WeeklyRankEarnings = weekly

		weeks := int64(j.now.Sub(u.LastRankEarningAddedAt) / week)
		if weeks > 0 {
			u.LastRankEarningAddedAt = u.LastRankEarningAddedAt.Add(time.Duration(weeks) * week)
			if credit := weekly.Mul(decimal.NewFromInt(weeks)); credit.Sign() > 0 {
				w.Earnings = w.Earnings.Add(credit)
				w.TotalRankBonus = w.TotalRankBonus.Add(credit)
				w.ExpectedRankBonus = w.ExpectedRankBonus.Add(credit)
				detail := fmt.Sprintf("Weekly rank bonus x%d", weeks)
				if err := j.log(tx, u.Id, bisonapi.ActivityRank, detail, credit); err != nil {
					return err
				}
			}
		}
		if err := tx.SaveWallet(w); err != nil {
			return err
		}
		return tx.SaveUser(u)
	})
}
