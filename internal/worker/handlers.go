package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suibison/internal/bisonapi"
	"suibison/internal/ledger"
	"suibison/internal/metrics"
)

// Ledger is what the job handlers run. *ledger.Engine implements it.
type Ledger interface {
	SyncBalances(ctx context.Context) (ledger.BatchResult, error)
	RetryDue(ctx context.Context) (int, error)
	AccrueAll(ctx context.Context) (ledger.BatchResult, error)
	CreditRanks(ctx context.Context) (ledger.BatchResult, error)
	EnsureActivePool(ctx context.Context) (*bisonapi.MatrixPool, error)
	PayoutEndedPools(ctx context.Context) (int, error)
	StakeDeposit(ctx context.Context, userId uint) (*bisonapi.Transfer, error)
}

type RateRefresher interface {
	Refresh(ctx context.Context) (decimal.Decimal, error)
}

type handlers struct {
	ledger Ledger
	rates  RateRefresher
	log    *logrus.Entry
}

// NewMux routes every task type to its handler.
func NewMux(l Ledger, rates RateRefresher, log *logrus.Logger) *asynq.ServeMux {
	h := &handlers{ledger: l, rates: rates, log: log.WithField("component", "worker")}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBalanceSync, h.batch(TypeBalanceSync, l.SyncBalances))
	mux.HandleFunc(TypeStakingAccrue, h.batch(TypeStakingAccrue, l.AccrueAll))
	mux.HandleFunc(TypeRankCredit, h.batch(TypeRankCredit, l.CreditRanks))
	mux.HandleFunc(TypeTransferRetry, h.timed(TypeTransferRetry, func(ctx context.Context) error {
		n, err := l.RetryDue(ctx)
		if n > 0 {
			h.log.WithField("job", TypeTransferRetry).Infof("[job] %d transfer(s) settled", n)
		}
		return err
	}))
	mux.HandleFunc(TypePoolWindow, h.timed(TypePoolWindow, func(ctx context.Context) error {
		_, err := l.EnsureActivePool(ctx)
		return err
	}))
	mux.HandleFunc(TypePoolPayout, h.timed(TypePoolPayout, func(ctx context.Context) error {
		n, err := l.PayoutEndedPools(ctx)
		if n > 0 {
			h.log.WithField("job", TypePoolPayout).Infof("[job] %d pool(s) paid", n)
		}
		return err
	}))
	mux.HandleFunc(TypeRateRefresh, h.timed(TypeRateRefresh, func(ctx context.Context) error {
		_, err := rates.Refresh(ctx)
		return err
	}))
	mux.HandleFunc(TypeStakeDeposit, h.stakeDeposit)
	return mux
}

// batch wraps a per-user job. Metrics are recorded by the ledger batch itself.
func (h *handlers) batch(job string, fn func(ctx context.Context) (ledger.BatchResult, error)) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := fn(ctx)
		return h.finish(job, err)
	}
}

func (h *handlers) timed(job string, fn func(ctx context.Context) error) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		started := time.Now()
		err := fn(ctx)
		metrics.RecordJob(job, time.Since(started), err)
		return h.finish(job, err)
	}
}

func (h *handlers) finish(job string, err error) error {
	if err == nil {
		return nil
	}
	h.log.WithError(err).WithField("job", job).Error("[job] failed")
	if ledger.IsFatal(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (h *handlers) stakeDeposit(ctx context.Context, t *asynq.Task) error {
	var p StakePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("stake payload: %v: %w", err, asynq.SkipRetry)
	}
	res := h.stake(ctx, p.UserId)
	if w := t.ResultWriter(); w != nil {
		b, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (h *handlers) stake(ctx context.Context, userId uint) StakeResult {
	tr, err := h.ledger.StakeDeposit(ctx, userId)
	res := StakeResult{Transfer: tr}
	if err != nil {
		res.Error = ledger.Code(err)
		h.log.WithError(err).WithField("user_id", userId).Warn("[stake] deposit not completed")
	}
	return res
}
