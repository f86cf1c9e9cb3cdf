package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

const defaultActivityLimit = 50

func (e *Engine) User(ctx context.Context, userId uint) (*bisonapi.User, error) {
	var u *bisonapi.User
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.UserById(userId, false)
		return notFound(err, ErrUserNotFound)
	})
	return u, err
}

func (e *Engine) UserByExternalId(ctx context.Context, externalId string) (*bisonapi.User, error) {
	var u *bisonapi.User
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.UserByExternalId(externalId)
		return notFound(err, ErrUserNotFound)
	})
	return u, err
}

// Profile returns the user with wallet and staking position.
func (e *Engine) Profile(ctx context.Context, userId uint) (*bisonapi.UserData, error) {
	var out bisonapi.UserData
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.UserById(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		w, err := tx.WalletByUser(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		p, err := tx.StakingByUser(userId, false)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		out = bisonapi.UserData{User: *u, Wallet: *w, Staking: *p, State: p.State(e.now()).String()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Referrals lists the user's downline at level, or at every level when level is 0.
func (e *Engine) Referrals(ctx context.Context, userId uint, level int) (*bisonapi.RefData, error) {
	out := &bisonapi.RefData{ByLevel: map[int]int64{}, RewardTotal: decimal.Zero}
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.UserById(userId, false); err != nil {
			return notFound(err, ErrUserNotFound)
		}
		edges, err := tx.EdgesByAncestor(userId, level)
		if err != nil {
			return err
		}
		for _, ed := range edges {
			out.TotalCounter++
			out.ByLevel[ed.Level]++
			out.RewardTotal = out.RewardTotal.Add(ed.Reward)
		}
		out.Edges = edges
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) Activities(ctx context.Context, userId uint, limit int) ([]bisonapi.Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultActivityLimit
	}
	var acts []bisonapi.Activity
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		acts, err = tx.ActivitiesByUser(userId, limit)
		return err
	})
	return acts, err
}

func (e *Engine) UpdateProfile(ctx context.Context, userId uint, name string) (*bisonapi.User, error) {
	var u *bisonapi.User
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		if u, err = lockedUser(tx, userId); err != nil {
			return err
		}
		u.Name = name
		return tx.SaveUser(u)
	})
	return u, err
}

// SetBlocked bans or unbans a user. Blocked users cannot stake or withdraw.
func (e *Engine) SetBlocked(ctx context.Context, userId uint, blocked bool) error {
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		u, err := lockedUser(tx, userId)
		if err != nil {
			return err
		}
		u.IsBlocked = blocked
		return tx.SaveUser(u)
	})
	if err == nil {
		e.log.WithField("user_id", userId).WithField("blocked", blocked).Info("[admin] block flag changed")
	}
	return err
}

// ActivePool returns the current matrix pool window.
func (e *Engine) ActivePool(ctx context.Context) (*bisonapi.MatrixPool, error) {
	var p *bisonapi.MatrixPool
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.ActivePool(e.now(), false)
		return notFound(err, ErrActivePoolNotFound)
	})
	return p, err
}

// ConfigureMeter sets the platform token, creating the meter on first use.
func (e *Engine) ConfigureMeter(ctx context.Context, tokenAddress string, tokenPrice decimal.Decimal) (*bisonapi.TokenMeter, error) {
	if tokenPrice.Sign() <= 0 {
		return nil, errors.New("token price must be positive")
	}
	var m *bisonapi.TokenMeter
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		m, err = tx.Meter(true)
		if errors.Is(err, store.ErrNotFound) {
			m = &bisonapi.TokenMeter{TokenAddress: tokenAddress, TokenPrice: tokenPrice}
			return tx.CreateMeter(m)
		}
		if err != nil {
			return err
		}
		m.TokenAddress = tokenAddress
		m.TokenPrice = tokenPrice
		return tx.SaveMeter(m)
	})
	return m, err
}

func (e *Engine) Meter(ctx context.Context) (*bisonapi.TokenMeter, error) {
	var m *bisonapi.TokenMeter
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		m, err = tx.Meter(false)
		return notFound(err, ErrMeterNotFound)
	})
	return m, err
}

type Stats struct {
	store.Totals
	AverageDailyReferrals decimal.Decimal      `json:"average_daily_referrals"`
	Meter                 *bisonapi.TokenMeter `json:"meter"`
}

func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{AverageDailyReferrals: decimal.Zero}
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		t, err := tx.Totals()
		if err != nil {
			return err
		}
		out.Totals = *t
		if t.ReferralDays > 0 {
			out.AverageDailyReferrals = decimal.NewFromInt(t.ReferredUsers).Div(decimal.NewFromInt(t.ReferralDays)).Round(2)
		}
		m, err := tx.Meter(false)
		if err == nil {
			out.Meter = m
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
