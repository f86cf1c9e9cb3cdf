package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

var hundred = decimal.NewFromInt(100)

// activePool returns the locked pool whose window covers now, opening a new window when there is none.
func (e *Engine) activePool(tx store.Tx, now time.Time) (*bisonapi.MatrixPool, error) {
	p, err := tx.ActivePool(now, true)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return p, err
	}
	if err := tx.LockPools(); err != nil {
		return nil, err
	}
	p, err = tx.ActivePool(now, true)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return p, err
	}
	p = &bisonapi.MatrixPool{
		StartDate:        now,
		EndDate:          now.Add(e.cfg.Matrix.Window),
		RaisedPoolAmount: decimal.Zero,
	}
	if err := tx.CreatePool(p); err != nil {
		return nil, err
	}
	e.log.WithField("pool_id", p.Id).Info("[matrix] new pool window opened")
	return p, nil
}

// EnsureActivePool opens a pool window when none is active.
func (e *Engine) EnsureActivePool(ctx context.Context) (*bisonapi.MatrixPool, error) {
	var pool *bisonapi.MatrixPool
	err := e.transact(ctx, func(tx store.Tx, j *journal) error {
		p, err := e.activePool(tx, j.now)
		pool = p
		return err
	})
	return pool, err
}

// contribute counts one direct referral of userId into the active window.
func (e *Engine) contribute(tx store.Tx, userId uint, now time.Time) error {
	pool, err := e.activePool(tx, now)
	if err != nil {
		return err
	}
	pool.TotalReferrals++
	if err := tx.SavePool(pool); err != nil {
		return err
	}
	share, err := tx.Share(pool.Id, userId, true)
	if errors.Is(err, store.ErrNotFound) {
		return tx.CreateShare(&bisonapi.MatrixPoolShare{PoolId: pool.Id, UserId: userId, ReferralsAdded: 1})
	}
	if err != nil {
		return err
	}
	share.ReferralsAdded++
	return tx.SaveShare(share)
}

// PoolShare is a participant's percentage of the window and its earning, rounded down so that
// the earnings of all participants never exceed raised.
func PoolShare(referralsAdded, totalReferrals int64, raised decimal.Decimal) (share, earning decimal.Decimal) {
	if referralsAdded <= 0 || totalReferrals <= 0 {
		return decimal.Zero, decimal.Zero
	}
	added := decimal.NewFromInt(referralsAdded)
	total := decimal.NewFromInt(totalReferrals)
	share = added.Mul(hundred).Div(total).RoundDown(6)
	earning = bisonapi.RoundAmount(raised.Mul(added).Div(total))
	return share, earning
}

// PayoutPool distributes an ended window. Every share is paid in its own transaction and skipped when
// already paid, so an interrupted payout resumes where it stopped.
func (e *Engine) PayoutPool(ctx context.Context, poolId uint) error {
	var (
		pool   *bisonapi.MatrixPool
		shares []bisonapi.MatrixPoolShare
	)
	now := e.now()
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		p, err := tx.PoolById(poolId, false)
		if err != nil {
			return notFound(err, fmt.Errorf("pool %d: %w", poolId, store.ErrNotFound))
		}
		if p.PaidAt != nil {
			return invariant("pool payout", "pool %d was already paid at %s", p.Id, p.PaidAt.Format(time.RFC3339))
		}
		if !p.EndDate.Before(now) {
			return fmt.Errorf("pool %d is still open until %s", p.Id, p.EndDate.Format(time.RFC3339))
		}
		pool = p
		shares, err = tx.SharesByPool(p.Id)
		return err
	})
	if err != nil {
		return err
	}

	for _, s := range shares {
		if s.PaidAt != nil {
			continue
		}
		err := e.transact(ctx, func(tx store.Tx, j *journal) error {
			w, err := lockedWallet(tx, s.UserId)
			if err != nil {
				return err
			}
			sh, err := tx.Share(pool.Id, s.UserId, true)
			if err != nil {
				return err
			}
			if sh.PaidAt != nil {
				return nil
			}
			share, earning := PoolShare(sh.ReferralsAdded, pool.TotalReferrals, pool.RaisedPoolAmount)
			paidAt := j.now
			sh.MatrixShare = share
			sh.MatrixEarning = earning
			sh.PaidAt = &paidAt
			if earning.Sign() > 0 {
				w.Earnings = w.Earnings.Add(earning)
				w.AvailableReferralEarning = w.AvailableReferralEarning.Add(earning)
				w.TotalReferralEarnings = w.TotalReferralEarnings.Add(earning)
				if err := tx.SaveWallet(w); err != nil {
					return err
				}
				detail := fmt.Sprintf("Matrix pool #%d payout, %s%% share", pool.Id, share.String())
				if err := j.log(tx, sh.UserId, bisonapi.ActivityPoolPayout, detail, earning); err != nil {
					return err
				}
			}
			return tx.SaveShare(sh)
		})
		if err != nil {
			return fmt.Errorf("pool %d share of user %d: %w", pool.Id, s.UserId, err)
		}
	}

	return e.transact(ctx, func(tx store.Tx, j *journal) error {
		p, err := tx.PoolById(poolId, true)
		if err != nil {
			return err
		}
		if p.PaidAt != nil {
			return invariant("pool payout", "pool %d was paid concurrently", p.Id)
		}
		all, err := tx.SharesByPool(p.Id)
		if err != nil {
			return err
		}
		paid := decimal.Zero
		for _, s := range all {
			paid = paid.Add(s.MatrixEarning)
		}
		if paid.GreaterThan(p.RaisedPoolAmount) {
			return invariant("pool payout", "pool %d paid %s out of %s raised", p.Id, paid, p.RaisedPoolAmount)
		}
		paidAt := j.now
		p.PaidAt = &paidAt
		e.log.WithFields(logrus.Fields{
			"pool_id": p.Id,
			"raised":  p.RaisedPoolAmount.String(),
			"paid":    paid.String(),
		}).Info("[matrix] pool paid out")
		return tx.SavePool(p)
	})
}

// PayoutEndedPools pays every window that ended before now minus the grace period.
func (e *Engine) PayoutEndedPools(ctx context.Context) (int, error) {
	var pools []bisonapi.MatrixPool
	before := e.now().Add(-e.cfg.Matrix.PayoutGrace)
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		pools, err = tx.UnpaidPoolsEndedBefore(before)
		return err
	})
	if err != nil {
		return 0, err
	}
	paid := 0
	for _, p := range pools {
		if err := e.PayoutPool(ctx, p.Id); err != nil {
			if IsFatal(err) {
				return paid, err
			}
			e.log.WithError(err).WithField("pool_id", p.Id).Warn("[matrix] payout failed")
			continue
		}
		paid++
	}
	return paid, nil
}
