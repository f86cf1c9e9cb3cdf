package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

// Split is how a withdrawal of Earnings is divided. The parts add up to Earnings exactly.
type Split struct {
	Earnings decimal.Decimal `json:"earnings"`
	Payout   decimal.Decimal `json:"payout"`
	Restake  decimal.Decimal `json:"restake"`
	Token    decimal.Decimal `json:"token"`
	Pool     decimal.Decimal `json:"pool"`
}

// SplitEarnings divides earnings by the configured limits, rounding every part down.
// The pool takes what is left.
func SplitEarnings(earnings decimal.Decimal, l bisonapi.SettingLimit) Split {
	s := Split{
		Earnings: earnings,
		Payout:   bisonapi.RoundAmount(earnings.Mul(l.Payout)),
		Restake:  bisonapi.RoundAmount(earnings.Mul(l.Restake)),
		Token:    bisonapi.RoundAmount(earnings.Mul(l.Token)),
	}
	s.Pool = earnings.Sub(s.Payout).Sub(s.Restake).Sub(s.Token)
	return s
}

func (s Split) sum() decimal.Decimal {
	return s.Payout.Add(s.Restake).Add(s.Token).Add(s.Pool)
}

// Withdraw pays out the user's earnings to destination. Only the payout part leaves the platform,
// the rest is restaked, converted to tokens and added to the matrix pool once the payout is confirmed.
func (e *Engine) Withdraw(ctx context.Context, userId uint, destination string) (*bisonapi.Transfer, error) {
	if !e.wallet.ValidAddress(destination) {
		return nil, ErrInvalidAddress
	}
	unlock, err := e.lockUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var earnings decimal.Decimal
	err = e.store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.UserById(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if u.IsBlocked {
			return ErrUserBlocked
		}
		if _, err := tx.OpenTransfer(userId, bisonapi.TransferPayout); err == nil {
			return ErrWithdrawalPending
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := tx.Meter(false); err != nil {
			return notFound(err, ErrMeterNotFound)
		}
		w, err := tx.WalletByUser(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		earnings = w.Earnings
		return nil
	})
	if err != nil {
		return nil, err
	}
	if earnings.Sign() <= 0 || earnings.LessThan(e.cfg.Limits.WithdrawMin) {
		return nil, ErrInsufficientFunds
	}
	rate, err := e.rates.Rate(ctx)
	if err != nil {
		return nil, err
	}
	available, err := e.wallet.GetBalance(ctx, e.platform.address)
	if err != nil {
		return nil, fmt.Errorf("withdraw: platform balance: %w", err)
	}
	if available.LessThan(earnings) {
		e.alert(ctx, "Platform wallet holds %s, withdrawal of %s by user %d refused", available, earnings, userId)
		return nil, ErrInsufficientFunds
	}

	split := SplitEarnings(earnings, e.cfg.Limits)
	t := &bisonapi.Transfer{
		Reference:   uuid.NewString(),
		UserId:      userId,
		Kind:        bisonapi.TransferPayout,
		FromAddress: e.platform.address,
		ToAddress:   destination,
		Amount:      split.Payout,
		Status:      bisonapi.TransferNew,
		Earnings:    split.Earnings,
		Restake:     split.Restake,
		Token:       split.Token,
		Pool:        split.Pool,
	}
	if err := e.store.Transaction(ctx, func(tx store.Tx) error { return tx.CreateTransfer(t) }); err != nil {
		return nil, err
	}
	e.log.WithField("user_id", userId).WithField("earnings", earnings.String()).Info("[withdraw] payout started")
	return e.attempt(ctx, t, rate)
}

// applyWithdrawal books a confirmed payout with the split frozen on the transfer.
// Rows are locked user, wallet, staking, meter, pool.
func (e *Engine) applyWithdrawal(tx store.Tx, j *journal, t *bisonapi.Transfer, rate decimal.Decimal) error {
	split := Split{Earnings: t.Earnings, Payout: t.Amount, Restake: t.Restake, Token: t.Token, Pool: t.Pool}
	if !split.sum().Equal(split.Earnings) {
		return invariant("withdraw", "split of transfer %s adds up to %s, not %s", t.Reference, split.sum(), split.Earnings)
	}
	if _, err := lockedUser(tx, t.UserId); err != nil {
		return err
	}
	w, err := lockedWallet(tx, t.UserId)
	if err != nil {
		return err
	}
	if w.Earnings.LessThan(split.Earnings) {
		return invariant("withdraw", "user %d has %s earnings, transfer %s withdrew %s", t.UserId, w.Earnings, t.Reference, split.Earnings)
	}
	p, err := lockedStaking(tx, t.UserId)
	if err != nil {
		return err
	}
	m, err := lockedMeter(tx)
	if err != nil {
		return err
	}
	pool, err := e.activePool(tx, j.now)
	if err != nil {
		return err
	}

	w.Earnings = w.Earnings.Sub(split.Earnings)
	if w.AvailableReferralEarning.GreaterThan(w.Earnings) {
		w.AvailableReferralEarning = w.Earnings
	}
	w.TotalWithdrawn = w.TotalWithdrawn.Add(split.Payout)
	if err := j.log(tx, t.UserId, bisonapi.ActivityWithdrawal, fmt.Sprintf("Withdrawal to %s", t.ToAddress), split.Payout); err != nil {
		return err
	}

	if split.Restake.Sign() > 0 {
		if _, err := e.settleInterest(tx, j, p, w); err != nil {
			return err
		}
		p.Deposit = p.Deposit.Add(split.Restake)
		if err := e.openRun(tx, j, p, "Restaked from withdrawal", split.Restake); err != nil {
			return err
		}
	}

	tokens := m.Tokens(split.Token, rate)
	m.TotalAmountCollected = m.TotalAmountCollected.Add(split.Token)
	m.TotalTokensIssued = m.TotalTokensIssued.Add(tokens)
	m.TotalWithdrawn = m.TotalWithdrawn.Add(split.Payout)
	m.TotalSentToPool = m.TotalSentToPool.Add(split.Pool)
	w.TotalTokenPurchased = w.TotalTokenPurchased.Add(tokens)
	if err := j.log(tx, t.UserId, bisonapi.ActivityTokenPurchase, fmt.Sprintf("Bought %s tokens", tokens.String()), split.Token); err != nil {
		return err
	}

	pool.RaisedPoolAmount = pool.RaisedPoolAmount.Add(split.Pool)
	if err := j.log(tx, t.UserId, bisonapi.ActivityPoolTopUp, fmt.Sprintf("Matrix pool #%d top up", pool.Id), split.Pool); err != nil {
		return err
	}

	if err := tx.SavePool(pool); err != nil {
		return err
	}
	if err := tx.SaveMeter(m); err != nil {
		return err
	}
	if err := tx.SaveStaking(p); err != nil {
		return err
	}
	return tx.SaveWallet(w)
}
