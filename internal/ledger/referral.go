package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dchest/uniuri"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suibison/internal/app"
	"suibison/internal/bisonapi"
	"suibison/internal/store"
)

const refCodeLen = 8

type RegisterInput struct {
	ExternalId string
	Name       string
	Referrer   string // invite code or external id, optional
}

// Register creates a user with wallet and staking position and links them under the referrer.
// An already known user is a login: the rank is refreshed and the user returned.
// When the referrer cannot be resolved the user is still created and ErrReferrerNotFound is returned with it.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*bisonapi.User, error) {
	if in.ExternalId == "" {
		return nil, fmt.Errorf("register: external id is required")
	}
	var known *bisonapi.User
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.UserByExternalId(in.ExternalId)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		known = u
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", in.ExternalId, err)
	}
	if known != nil {
		return e.login(ctx, known)
	}

	address, credential, err := e.wallet.NewAccount()
	if err != nil {
		return nil, fmt.Errorf("register: new account: %w", err)
	}
	sealed, err := app.Seal(credential, e.secret)
	if err != nil {
		return nil, fmt.Errorf("register: seal credential: %w", err)
	}

	var (
		user            *bisonapi.User
		existing        bool
		referrerMissing bool
	)
	err = e.transact(ctx, func(tx store.Tx, j *journal) error {
		referrerMissing = false
		u, err := tx.UserByExternalId(in.ExternalId)
		if err == nil {
			user, existing = u, true
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var referrer *bisonapi.User
		if in.Referrer != "" {
			referrer, err = findReferrer(tx, in.Referrer)
			if errors.Is(err, ErrReferrerNotFound) {
				referrerMissing = true
			} else if err != nil {
				return err
			}
		}
		code, err := newRefCode(tx)
		if err != nil {
			return err
		}
		u = &bisonapi.User{
			CreatedAt:              j.now,
			ExternalId:             in.ExternalId,
			Name:                   in.Name,
			RefCode:                code,
			LastRankEarningAddedAt: j.now,
		}
		if referrer != nil {
			u.ReferrerId = &referrer.Id
		}
		if err := tx.CreateUser(u); err != nil {
			return err
		}
		if err := tx.CreateWallet(&bisonapi.Wallet{UserId: u.Id, Address: address, Credential: sealed}); err != nil {
			return err
		}
		if err := tx.CreateStaking(&bisonapi.StakingPosition{UserId: u.Id, Roi: e.cfg.Staking.RoiFloor}); err != nil {
			return err
		}
		if err := j.log(tx, u.Id, bisonapi.ActivityWelcome, "Welcome to the herd", decimal.Zero); err != nil {
			return err
		}
		if referrer != nil {
			if err := e.linkAncestors(tx, j, u, referrer); err != nil {
				return err
			}
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", in.ExternalId, err)
	}

	if existing {
		return e.login(ctx, user)
	}

	e.log.WithFields(logrus.Fields{
		"user_id":     user.Id,
		"referrer_id": user.ReferrerId,
	}).Info("[ref] user registered")
	if referrerMissing {
		return user, ErrReferrerNotFound
	}
	return user, nil
}

func (e *Engine) login(ctx context.Context, u *bisonapi.User) (*bisonapi.User, error) {
	if u.IsBlocked {
		return u, ErrUserBlocked
	}
	if err := e.refreshRank(ctx, u.Id); err != nil {
		if IsFatal(err) {
			return nil, err
		}
		e.log.WithError(err).WithField("user_id", u.Id).Warn("[ref] rank refresh on login skipped")
	}
	return e.User(ctx, u.Id)
}

func findReferrer(tx store.Tx, ref string) (*bisonapi.User, error) {
	u, err := tx.UserByRefCode(ref)
	if errors.Is(err, store.ErrNotFound) {
		u, err = tx.UserByExternalId(ref)
	}
	if err != nil {
		return nil, notFound(err, ErrReferrerNotFound)
	}
	return lockedUser(tx, u.Id)
}

func newRefCode(tx store.Tx) (string, error) {
	for i := 0; i < 5; i++ {
		code := uniuri.NewLen(refCodeLen)
		_, err := tx.UserByRefCode(code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a free invite code")
}

// walkUpline visits the locked ancestors of origin starting at start, level by level, and saves each one
// after fn. It stops at the configured depth or at the root.
func (e *Engine) walkUpline(tx store.Tx, op string, origin uint, start *bisonapi.User, fn func(level int, anc *bisonapi.User) error) error {
	seen := map[uint]bool{origin: true}
	cur := start
	for level := 1; cur != nil && level <= e.maxDepth(); level++ {
		if seen[cur.Id] {
			return invariant(op, "referral cycle through user %d", cur.Id)
		}
		seen[cur.Id] = true
		if err := fn(level, cur); err != nil {
			return err
		}
		if err := tx.SaveUser(cur); err != nil {
			return err
		}
		if cur.ReferrerId == nil {
			return nil
		}
		next, err := tx.UserById(*cur.ReferrerId, true)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// linkAncestors writes an edge to every ancestor and counts the direct referral into the active pool.
// The pool row is locked after every user row of the upline.
func (e *Engine) linkAncestors(tx store.Tx, j *journal, u *bisonapi.User, referrer *bisonapi.User) error {
	name := displayName(u)
	err := e.walkUpline(tx, "register", u.Id, referrer, func(level int, anc *bisonapi.User) error {
		err := tx.CreateEdge(&bisonapi.ReferralEdge{
			CreatedAt:      j.now,
			AncestorId:     anc.Id,
			DescendantId:   u.Id,
			Level:          level,
			DescendantName: name,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return invariant("register", "edge %d -> %d already exists", anc.Id, u.Id)
		}
		if err != nil {
			return err
		}
		anc.TotalNetwork++
		if level != 1 {
			return nil
		}
		directBefore := anc.TotalReferrals
		anc.TotalReferrals++
		detail := fmt.Sprintf("%s joined your team", name)
		if err := j.log(tx, anc.Id, bisonapi.ActivityReferral, detail, decimal.Zero); err != nil {
			return err
		}
		return e.fastBonus(tx, j, anc, directBefore)
	})
	if err != nil {
		return err
	}
	return e.contribute(tx, referrer.Id, j.now)
}

// fastBonus pays the one-time bonus to a referrer who brings enough direct referrals soon after joining.
func (e *Engine) fastBonus(tx store.Tx, j *journal, referrer *bisonapi.User, directBefore int64) error {
	s := e.cfg.Ref
	if referrer.UsedSpeedBoost || s.FastBonus.Sign() <= 0 {
		return nil
	}
	if directBefore < s.FastBonusMinReferrals || j.now.Sub(referrer.CreatedAt) > s.FastBonusWindow {
		return nil
	}
	w, err := lockedWallet(tx, referrer.Id)
	if err != nil {
		return err
	}
	w.Balance = w.Balance.Add(s.FastBonus)
	w.TotalFastBonus = w.TotalFastBonus.Add(s.FastBonus)
	if err := tx.SaveWallet(w); err != nil {
		return err
	}
	referrer.UsedSpeedBoost = true
	return j.log(tx, referrer.Id, bisonapi.ActivityFastBonus, "Fast bonus activated", s.FastBonus)
}

func (e *Engine) refreshRank(ctx context.Context, userId uint) error {
	r, err := e.rates.Rate(ctx)
	if err != nil {
		return err
	}
	return e.CreditRank(ctx, userId, r)
}
