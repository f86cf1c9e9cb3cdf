package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

func TestStakeDepositOpensRun(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("0.5")
	h.rate.rate = decimal.NewFromInt(2)
	a := h.register("a", "")
	u := h.register("u", a.RefCode)
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10.01")

	tr, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	assert.Equal(t, bisonapi.TransferConfirmed, tr.Status)
	assert.NotEmpty(t, tr.Txid)
	requireDec(t, "10", tr.Amount)

	p := h.profile(u.Id)
	assert.Equal(t, "open", p.State)
	requireDec(t, "9", p.Staking.Deposit)
	requireDec(t, "0.01", p.Staking.Roi)
	requireDec(t, "10", p.Wallet.TotalDeposit)
	requireDec(t, "4", p.Wallet.TotalTokenPurchased)
	require.NotNil(t, p.Staking.NextRoiIncrease)
	assert.Equal(t, h.clock.now().Add(5*24*time.Hour), *p.Staking.NextRoiIncrease)
	assert.Nil(t, p.Staking.End)
	assert.True(t, p.User.HasMadeFirstDeposit)

	runs := 0
	for _, act := range h.activities(u.Id, bisonapi.ActivityRestake) {
		if act.Detail == "Stake run started" {
			runs++
		}
	}
	assert.Equal(t, 1, runs)

	m, err := h.engine.Meter(h.ctx)
	require.NoError(t, err)
	requireDec(t, "1", m.TotalAmountCollected)
	requireDec(t, "10", m.TotalDeposited)
	requireDec(t, "4", m.TotalTokensIssued)

	pa := h.profile(a.Id)
	requireDec(t, "1", pa.Wallet.Earnings)
	requireDec(t, "1", pa.Wallet.TotalReferralBonus)
	requireDec(t, "10", pa.User.TotalTeamVolume)
	ref, err := h.engine.Referrals(h.ctx, a.Id, 1)
	require.NoError(t, err)
	requireDec(t, "1", ref.RewardTotal)
	requireDec(t, "10", ref.Edges[0].Stake)

	requireDec(t, "0.01", h.wallet.balances[addr])
	requireDec(t, "10", h.wallet.balances[platformAddr])
}

func TestStakeDepositCommissionOnlyOnFirst(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	a := h.register("a", "")
	u := h.register("u", a.RefCode)
	addr := h.profile(u.Id).Wallet.Address

	h.wallet.setBalance(addr, "10.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	h.wallet.setBalance(addr, "20.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	p := h.profile(u.Id)
	requireDec(t, "27", p.Staking.Deposit)
	pa := h.profile(a.Id)
	requireDec(t, "1", pa.Wallet.Earnings)
	requireDec(t, "30", pa.User.TotalTeamVolume)
	assert.Len(t, h.activities(a.Id, bisonapi.ActivityReferralBonus), 1)
}

func TestStakeDepositBelowMinimumIsPending(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	a := h.register("a", "")
	u := h.register("u", a.RefCode)
	addr := h.profile(u.Id).Wallet.Address

	h.wallet.setBalance(addr, "2.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	p := h.profile(u.Id)
	assert.Equal(t, "inactive", p.State)
	requireDec(t, "1.8", p.Wallet.PendingBalance)
	assert.True(t, p.Staking.Deposit.IsZero())
	assert.False(t, p.User.HasMadeFirstDeposit)
	assert.True(t, h.profile(a.Id).User.TotalTeamVolume.IsZero())

	h.wallet.setBalance(addr, "5.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	p = h.profile(u.Id)
	assert.Equal(t, "open", p.State)
	requireDec(t, "6.3", p.Staking.Deposit)
	assert.True(t, p.Wallet.PendingBalance.IsZero())
	requireDec(t, "7", p.Wallet.TotalDeposit)
	requireDec(t, "0.5", h.profile(a.Id).Wallet.Earnings)
}

func TestStakeDepositPreconditions(t *testing.T) {
	h := newHarness(t)
	u := h.register("u", "")
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10")

	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	assert.ErrorIs(t, err, ErrMeterNotFound)

	h.configureMeter("1")
	h.wallet.setBalance(addr, "0.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = h.engine.StakeDeposit(h.ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, h.engine.SetBlocked(h.ctx, u.Id, true))
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	assert.ErrorIs(t, err, ErrUserBlocked)
}

func TestStakeDepositFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	u := h.register("u", "")
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10.01")
	h.wallet.setFail(errors.New("node unavailable"))

	tr, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.NotNil(t, tr)
	assert.Equal(t, bisonapi.TransferRetry, tr.Status)
	assert.Equal(t, 1, tr.Attempts)
	assert.Equal(t, "inactive", h.profile(u.Id).State)
	assert.True(t, h.profile(u.Id).Wallet.TotalDeposit.IsZero())

	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	assert.ErrorIs(t, err, ErrTransferPending)

	h.wallet.setFail(nil)
	n, err := h.engine.RetryDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "backoff not elapsed")

	h.clock.advance(2 * time.Minute)
	n, err = h.engine.RetryDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.engine.Transfer(h.ctx, tr.Id)
	require.NoError(t, err)
	assert.Equal(t, bisonapi.TransferConfirmed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	requireDec(t, "9", h.profile(u.Id).Staking.Deposit)
}

func TestTransferAbandonedAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, func(s *bisonapi.AppSettings) { s.Transfer.MaxAttempts = 2 })
	h.configureMeter("1")
	u := h.register("u", "")
	h.wallet.setBalance(h.profile(u.Id).Wallet.Address, "10.01")
	h.wallet.setFail(errors.New("rejected"))

	tr, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.ErrorIs(t, err, ErrTransferFailed)
	h.clock.advance(time.Hour)
	_, err = h.engine.RetryDue(h.ctx)
	require.NoError(t, err)

	got, err := h.engine.Transfer(h.ctx, tr.Id)
	require.NoError(t, err)
	assert.Equal(t, bisonapi.TransferAbandoned, got.Status)
	assert.Len(t, h.alerts.msgs, 1)
	assert.True(t, h.profile(u.Id).Wallet.TotalDeposit.IsZero())
}

func TestStaleNewTransferIsAbandoned(t *testing.T) {
	h := newHarness(t)
	u := h.register("u", "")
	h.update(func(tx store.Tx) error {
		return tx.CreateTransfer(&bisonapi.Transfer{Reference: "ref-1", UserId: u.Id, Kind: bisonapi.TransferSweep, Amount: decimal.NewFromInt(5)})
	})
	h.clock.advance(11 * time.Minute)
	n, err := h.engine.RetryDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, h.alerts.msgs, 1)
}

func TestAccrueSchedule(t *testing.T) {
	s := bisonapi.DefaultAppConfig().Settings.Staking
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := t0.Add(s.Interval)
	p := &bisonapi.StakingPosition{Deposit: decimal.NewFromInt(100), Roi: s.RoiFloor, Start: &t0, NextRoiIncrease: &next}

	interest, ticks, closed := accrue(p, t0.Add(4*24*time.Hour), s)
	assert.Equal(t, 0, ticks)
	assert.True(t, interest.IsZero())
	assert.False(t, closed)

	interest, ticks, closed = accrue(p, t0.Add(20*24*time.Hour), s)
	assert.Equal(t, 4, ticks)
	requireDec(t, "7", interest)
	assert.False(t, closed)
	requireDec(t, "0.03", p.Roi)
	require.NotNil(t, p.End)
	assert.Equal(t, t0.Add(s.RunDuration), *p.End)
	assert.Equal(t, bisonapi.StakeOpen, p.State(t0.Add(20*24*time.Hour)))

	interest, ticks, closed = accrue(p, t0.Add(100*24*time.Hour), s)
	assert.Equal(t, 15, ticks)
	requireDec(t, "45", interest)
	assert.True(t, closed)
	requireDec(t, "0.01", p.Roi)
	assert.Nil(t, p.NextRoiIncrease)
	assert.Equal(t, t0.Add(s.RunDuration), *p.End)
	assert.Equal(t, bisonapi.StakeClosed, p.State(t0.Add(100*24*time.Hour)))
}

func TestAccrueCreditsEarnings(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	u := h.register("u", "")
	h.wallet.setBalance(h.profile(u.Id).Wallet.Address, "100.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	h.clock.advance(10 * 24 * time.Hour)
	res, err := h.engine.AccrueAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	p := h.profile(u.Id)
	// 90 at 1% then 1.5%
	requireDec(t, "2.25", p.Wallet.Earnings)
	requireDec(t, "2.25", p.Wallet.TotalInterest)
	requireDec(t, "0.02", p.Staking.Roi)

	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))
	requireDec(t, "2.25", h.profile(u.Id).Wallet.Earnings)
}

func TestRestakeReopensClosedRun(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	u := h.register("u", "")
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	h.clock.advance(101 * 24 * time.Hour)
	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))
	assert.Equal(t, "closed", h.profile(u.Id).State)

	h.wallet.setBalance(addr, "10.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	p := h.profile(u.Id)
	assert.Equal(t, "open", p.State)
	assert.Nil(t, p.Staking.End)
	assert.Equal(t, h.clock.now(), *p.Staking.Start)
	requireDec(t, "18", p.Staking.Deposit)
}

func TestTopUpSettlesElapsedInterest(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	u := h.register("u", "")
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	start := h.clock.now()

	h.clock.advance(5*24*time.Hour + time.Hour)
	h.wallet.setBalance(addr, "100.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)
	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))

	p := h.profile(u.Id)
	// one interval elapsed on a principal of 9 at 1%
	requireDec(t, "0.09", p.Wallet.Earnings)
	requireDec(t, "0.09", p.Wallet.TotalInterest)
	requireDec(t, "99", p.Staking.Deposit)
	requireDec(t, "0.015", p.Staking.Roi)
	assert.Equal(t, start.Add(10*24*time.Hour), *p.Staking.NextRoiIncrease)

	h.clock.advance(5 * 24 * time.Hour)
	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))
	// 0.09 plus 99 at 1.5%
	requireDec(t, "1.575", h.profile(u.Id).Wallet.Earnings)
}

func TestDepositAfterRunEndCreditsFinalIntervals(t *testing.T) {
	h := newHarness(t)
	h.configureMeter("1")
	u := h.register("u", "")
	addr := h.profile(u.Id).Wallet.Address
	h.wallet.setBalance(addr, "10.01")
	_, err := h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	// the run ended but the daily accrual has not run yet
	h.clock.advance(101 * 24 * time.Hour)
	h.wallet.setBalance(addr, "10.01")
	_, err = h.engine.StakeDeposit(h.ctx, u.Id)
	require.NoError(t, err)

	p := h.profile(u.Id)
	// 9 at 1%, 1.5%, 2%, 2.5% then 15 intervals at 3%
	requireDec(t, "4.68", p.Wallet.Earnings)
	assert.Equal(t, "open", p.State)
	assert.Equal(t, h.clock.now(), *p.Staking.Start)
	requireDec(t, "18", p.Staking.Deposit)

	completed := 0
	for _, act := range h.activities(u.Id, bisonapi.ActivityRestake) {
		if act.Detail == "Stake run completed" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	require.NoError(t, h.engine.Accrue(h.ctx, u.Id))
	requireDec(t, "4.68", h.profile(u.Id).Wallet.Earnings)
}
