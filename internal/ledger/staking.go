package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

// StakeDeposit sweeps the user's custodial balance to the platform wallet and stakes it.
// The ledger changes only once the sweep is confirmed.
func (e *Engine) StakeDeposit(ctx context.Context, userId uint) (*bisonapi.Transfer, error) {
	unlock, err := e.lockUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		w    *bisonapi.Wallet
		rate decimal.Decimal
	)
	err = e.store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.UserById(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if u.IsBlocked {
			return ErrUserBlocked
		}
		if _, err := tx.OpenTransfer(userId, bisonapi.TransferSweep); err == nil {
			return ErrTransferPending
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := tx.Meter(false); err != nil {
			return notFound(err, ErrMeterNotFound)
		}
		w, err = tx.WalletByUser(userId, false)
		return notFound(err, ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	if rate, err = e.rates.Rate(ctx); err != nil {
		return nil, err
	}

	balance, err := e.wallet.GetBalance(ctx, w.Address)
	if err != nil {
		return nil, fmt.Errorf("stake: balance of %s: %w", w.Address, err)
	}
	dust := e.cfg.Staking.Dust
	if balance.LessThanOrEqual(dust) {
		return nil, ErrInsufficientFunds
	}

	t := &bisonapi.Transfer{
		Reference:   uuid.NewString(),
		UserId:      userId,
		Kind:        bisonapi.TransferSweep,
		FromAddress: w.Address,
		ToAddress:   e.platform.address,
		Amount:      bisonapi.RoundAmount(balance.Sub(dust)),
		Status:      bisonapi.TransferNew,
	}
	if err := e.store.Transaction(ctx, func(tx store.Tx) error { return tx.CreateTransfer(t) }); err != nil {
		return nil, err
	}
	e.log.WithField("user_id", userId).WithField("amount", t.Amount.String()).Info("[stake] sweep started")
	return e.attempt(ctx, t, rate)
}

// applyDeposit books a confirmed sweep of gross amount t.Amount.
// Rows are locked user, wallet, staking, upline, meter.
func (e *Engine) applyDeposit(tx store.Tx, j *journal, t *bisonapi.Transfer, rate decimal.Decimal) error {
	s := e.cfg.Staking
	gross := t.Amount
	diversion := bisonapi.RoundAmount(gross.Mul(s.Diversion))
	net := gross.Sub(diversion)

	u, err := lockedUser(tx, t.UserId)
	if err != nil {
		return err
	}
	w, err := lockedWallet(tx, t.UserId)
	if err != nil {
		return err
	}
	p, err := lockedStaking(tx, t.UserId)
	if err != nil {
		return err
	}

	w.TotalDeposit = w.TotalDeposit.Add(gross)
	if err := j.log(tx, u.Id, bisonapi.ActivityDeposit, "Deposit received", gross); err != nil {
		return err
	}

	qualifying := !gross.LessThan(s.MinDeposit)
	if !qualifying {
		w.PendingBalance = w.PendingBalance.Add(net)
	} else {
		// intervals that fell due before this deposit earn on the old principal
		if _, err := e.settleInterest(tx, j, p, w); err != nil {
			return err
		}
		added := net.Add(w.PendingBalance)
		p.Deposit = p.Deposit.Add(added)
		w.PendingBalance = decimal.Zero
		if err := e.openRun(tx, j, p, "Stake top up", added); err != nil {
			return err
		}
	}
	if err := tx.SaveStaking(p); err != nil {
		return err
	}

	if qualifying {
		first := !u.HasMadeFirstDeposit
		u.HasMadeFirstDeposit = true
		if err := tx.SaveUser(u); err != nil {
			return err
		}
		if u.ReferrerId != nil {
			referrer, err := tx.UserById(*u.ReferrerId, true)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if referrer != nil {
				if err := e.creditUpline(tx, j, u, referrer, gross, first); err != nil {
					return err
				}
			}
		}
	}

	m, err := lockedMeter(tx)
	if err != nil {
		return err
	}
	tokens := m.Tokens(diversion, rate)
	m.TotalAmountCollected = m.TotalAmountCollected.Add(diversion)
	m.TotalDeposited = m.TotalDeposited.Add(gross)
	m.TotalTokensIssued = m.TotalTokensIssued.Add(tokens)
	w.TotalTokenPurchased = w.TotalTokenPurchased.Add(tokens)
	if diversion.Sign() > 0 {
		detail := fmt.Sprintf("Bought %s tokens", tokens.String())
		if err := j.log(tx, u.Id, bisonapi.ActivityTokenPurchase, detail, diversion); err != nil {
			return err
		}
	}
	if err := tx.SaveMeter(m); err != nil {
		return err
	}
	return tx.SaveWallet(w)
}

// openRun starts a run when the position is not open and logs a top up otherwise.
func (e *Engine) openRun(tx store.Tx, j *journal, p *bisonapi.StakingPosition, topUp string, added decimal.Decimal) error {
	if p.State(j.now) == bisonapi.StakeOpen {
		return j.log(tx, p.UserId, bisonapi.ActivityRestake, topUp, added)
	}
	start := j.now
	next := j.now.Add(e.cfg.Staking.Interval)
	p.Start = &start
	p.End = nil
	p.NextRoiIncrease = &next
	p.Roi = e.cfg.Staking.RoiFloor
	return j.log(tx, p.UserId, bisonapi.ActivityRestake, "Stake run started", p.Deposit)
}

// creditUpline adds the deposit to the team volume of every ancestor and pays the level commission
// on the user's first qualifying deposit.
func (e *Engine) creditUpline(tx store.Tx, j *journal, u, referrer *bisonapi.User, gross decimal.Decimal, first bool) error {
	levels := e.cfg.Ref.Levels
	return e.walkUpline(tx, "deposit", u.Id, referrer, func(level int, anc *bisonapi.User) error {
		anc.TotalTeamVolume = anc.TotalTeamVolume.Add(gross)
		edge, err := tx.Edge(anc.Id, u.Id, true)
		if errors.Is(err, store.ErrNotFound) {
			return invariant("deposit", "user %d is in the upline of %d without an edge", anc.Id, u.Id)
		}
		if err != nil {
			return err
		}
		edge.Stake = edge.Stake.Add(gross)
		if first && level <= len(levels) {
			if reward := bisonapi.RoundAmount(gross.Mul(levels[level-1])); reward.Sign() > 0 {
				w, err := lockedWallet(tx, anc.Id)
				if err != nil {
					return err
				}
				w.Earnings = w.Earnings.Add(reward)
				w.TotalReferralBonus = w.TotalReferralBonus.Add(reward)
				if err := tx.SaveWallet(w); err != nil {
					return err
				}
				edge.Reward = edge.Reward.Add(reward)
				detail := fmt.Sprintf("Level %d bonus from %s", level, displayName(u))
				if err := j.log(tx, anc.Id, bisonapi.ActivityReferralBonus, detail, reward); err != nil {
					return err
				}
			}
		}
		return tx.SaveEdge(edge)
	})
}

// accrue advances a position to now. It returns the interest to credit, the number of elapsed
// intervals and whether the run closed.
func accrue(p *bisonapi.StakingPosition, now time.Time, s bisonapi.StakingSettings) (decimal.Decimal, int, bool) {
	interest := decimal.Zero
	ticks := 0
	if p.Start == nil || s.Interval <= 0 {
		return interest, ticks, false
	}
	for p.NextRoiIncrease != nil && !p.NextRoiIncrease.After(now) {
		if p.End != nil && !p.NextRoiIncrease.Before(*p.End) {
			break
		}
		interest = interest.Add(bisonapi.RoundAmount(p.Deposit.Mul(p.Roi)))
		ticks++
		if p.Roi.LessThan(s.RoiCap) {
			p.Roi = decimal.Min(p.Roi.Add(s.RoiStep), s.RoiCap)
		}
		if !p.Roi.LessThan(s.RoiCap) && p.End == nil {
			end := p.Start.Add(s.RunDuration)
			p.End = &end
		}
		next := p.NextRoiIncrease.Add(s.Interval)
		p.NextRoiIncrease = &next
	}
	if p.End != nil && !now.Before(*p.End) && p.NextRoiIncrease != nil {
		p.Roi = s.RoiFloor
		p.NextRoiIncrease = nil
		return interest, ticks, true
	}
	return interest, ticks, false
}

// settleInterest credits the interest of every interval of p that elapsed by now to the locked wallet w.
// It reports whether p changed. The caller saves both rows.
func (e *Engine) settleInterest(tx store.Tx, j *journal, p *bisonapi.StakingPosition, w *bisonapi.Wallet) (bool, error) {
	if p.Start == nil || p.NextRoiIncrease == nil {
		return false, nil
	}
	interest, ticks, closed := accrue(p, j.now, e.cfg.Staking)
	if interest.Sign() > 0 {
		w.Earnings = w.Earnings.Add(interest)
		w.TotalInterest = w.TotalInterest.Add(interest)
		if err := j.log(tx, p.UserId, bisonapi.ActivityInterest, fmt.Sprintf("Interest for %d period(s)", ticks), interest); err != nil {
			return false, err
		}
	}
	if closed {
		if err := j.log(tx, p.UserId, bisonapi.ActivityRestake, "Stake run completed", p.Deposit); err != nil {
			return false, err
		}
	}
	return ticks > 0 || closed, nil
}

// Accrue credits the interest of every interval that elapsed on the user's open run.
func (e *Engine) Accrue(ctx context.Context, userId uint) error {
	return e.transact(ctx, func(tx store.Tx, j *journal) error {
		w, err := lockedWallet(tx, userId)
		if err != nil {
			return err
		}
		p, err := lockedStaking(tx, userId)
		if err != nil {
			return err
		}
		changed, err := e.settleInterest(tx, j, p, w)
		if err != nil || !changed {
			return err
		}
		if err := tx.SaveWallet(w); err != nil {
			return err
		}
		return tx.SaveStaking(p)
	})
}
