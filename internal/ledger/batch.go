package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"suibison/internal/metrics"
	"suibison/internal/store"
)

const userPage = 500

// BatchResult counts what a batch job did.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ForEachUser runs fn for every user id in order. A failing user is logged and counted and the
// batch moves on. A fatal error stops it.
func (e *Engine) ForEachUser(ctx context.Context, job string, fn func(ctx context.Context, userId uint) error) (BatchResult, error) {
	var (
		res   BatchResult
		after uint
	)
	started := time.Now()
	log := e.log.WithField("job", job)
	for {
		var ids []uint
		err := e.store.Transaction(ctx, func(tx store.Tx) error {
			var err error
			ids, err = tx.UserIds(after, userPage)
			return err
		})
		if err != nil {
			metrics.RecordJob(job, time.Since(started), err)
			return res, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				metrics.RecordJob(job, time.Since(started), err)
				return res, err
			}
			err := fn(ctx, id)
			if err == nil {
				res.Processed++
				continue
			}
			if IsFatal(err) {
				log.WithError(err).WithField("user_id", id).Error("[job] aborted")
				e.alert(ctx, "Job %s aborted at user %d: %v", job, id, err)
				metrics.RecordJob(job, time.Since(started), err)
				return res, err
			}
			res.Failed++
			metrics.RecordJobUserError(job)
			log.WithError(err).WithField("user_id", id).Warn("[job] user failed")
		}
		if len(ids) < userPage {
			break
		}
		after = ids[len(ids)-1]
	}
	metrics.RecordJob(job, time.Since(started), nil)
	log.WithFields(logrus.Fields{"processed": res.Processed, "failed": res.Failed}).Info("[job] done")
	return res, nil
}

func (e *Engine) AccrueAll(ctx context.Context) (BatchResult, error) {
	return e.ForEachUser(ctx, "staking:accrue", e.Accrue)
}

// CreditRanks credits every user at one rate read for the whole batch.
func (e *Engine) CreditRanks(ctx context.Context) (BatchResult, error) {
	r, err := e.rates.Rate(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	return e.ForEachUser(ctx, "rank:credit", func(ctx context.Context, userId uint) error {
		return e.CreditRank(ctx, userId, r)
	})
}

// SyncBalances stakes whatever landed on the custodial wallets.
func (e *Engine) SyncBalances(ctx context.Context) (BatchResult, error) {
	return e.ForEachUser(ctx, "balance:sync", func(ctx context.Context, userId uint) error {
		_, err := e.StakeDeposit(ctx, userId)
		switch {
		case errors.Is(err, ErrInsufficientFunds),
			errors.Is(err, ErrTransferPending),
			errors.Is(err, ErrUserBlocked),
			errors.Is(err, ErrBusy):
			return nil
		}
		return err
	})
}
