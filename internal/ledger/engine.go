package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suibison/internal/app"
	"suibison/internal/bisonapi"
	"suibison/internal/metrics"
	"suibison/internal/rate"
	"suibison/internal/store"
	"suibison/internal/wallet"
)

const (
	minDepth = 5
	maxDepth = 20
)

// Engine owns every ledger operation. Jobs and handlers get it passed in explicitly.
type Engine struct {
	store    store.Store
	wallet   wallet.Backend
	rates    rate.Reader
	locker   Locker
	events   Publisher
	alerts   Notifier
	cfg      bisonapi.AppSettings
	secret   []byte
	platform platformWallet
	log      *logrus.Entry
	now      func() time.Time
}

type platformWallet struct {
	address string
	key     string // sealed
}

type Options struct {
	Store           store.Store
	Wallet          wallet.Backend
	Rates           rate.Reader
	Locker          Locker
	Events          Publisher
	Alerts          Notifier
	Settings        bisonapi.AppSettings
	Secret          []byte
	PlatformAddress string
	PlatformKey     string
	Log             *logrus.Logger
	Now             func() time.Time
}

func New(o Options) *Engine {
	e := &Engine{
		store:    o.Store,
		wallet:   o.Wallet,
		rates:    o.Rates,
		locker:   o.Locker,
		events:   o.Events,
		alerts:   o.Alerts,
		cfg:      o.Settings,
		secret:   o.Secret,
		platform: platformWallet{address: o.PlatformAddress, key: o.PlatformKey},
		now:      o.Now,
	}
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.alerts == nil {
		e.alerts = nopNotifier{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	e.log = log.WithField("component", "ledger")
	return e
}

func (e *Engine) Settings() bisonapi.AppSettings {
	return e.cfg
}

func (e *Engine) maxDepth() int {
	d := e.cfg.Ref.MaxDepth
	if d < minDepth {
		return minDepth
	}
	if d > maxDepth {
		return maxDepth
	}
	return d
}

// journal collects the activities written inside one transaction.
type journal struct {
	now  time.Time
	acts []bisonapi.Activity
}

func (j *journal) log(tx store.Tx, userId uint, kind, detail string, amount decimal.Decimal) error {
	a := bisonapi.Activity{
		CreatedAt: j.now,
		UserId:    userId,
		Kind:      kind,
		Detail:    detail,
		Amount:    amount,
	}
	if err := tx.AddActivity(&a); err != nil {
		return err
	}
	j.acts = append(j.acts, a)
	return nil
}

var creditKinds = map[string]bool{
	bisonapi.ActivityInterest:      true,
	bisonapi.ActivityReferralBonus: true,
	bisonapi.ActivityFastBonus:     true,
	bisonapi.ActivityRank:          true,
	bisonapi.ActivityPoolPayout:    true,
	bisonapi.ActivityDeposit:       true,
}

// transact runs fn in one database transaction and publishes its activities after commit.
func (e *Engine) transact(ctx context.Context, fn func(tx store.Tx, j *journal) error) error {
	j := &journal{now: e.now()}
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		j.acts = j.acts[:0]
		return fn(tx, j)
	})
	if err != nil {
		return err
	}
	for _, a := range j.acts {
		if creditKinds[a.Kind] {
			metrics.RecordCredit(a.Kind, a.Amount)
		}
	}
	e.events.Publish(ctx, j.acts)
	return nil
}

func (e *Engine) lockUser(ctx context.Context, userId uint) (func(), error) {
	return e.locker.Lock(ctx, userLockKey(userId), e.cfg.Transfer.LockTtl)
}

func (e *Engine) alert(ctx context.Context, format string, args ...interface{}) {
	if err := e.alerts.Notify(ctx, fmt.Sprintf(format, args...)); err != nil {
		e.log.WithError(err).Warn("[alert] delivery failed")
	}
}

func (e *Engine) openCredential(sealed string) (string, error) {
	plain, err := app.Open(sealed, e.secret)
	if err != nil {
		return "", fmt.Errorf("open credential: %w", err)
	}
	return plain, nil
}

func notFound(err error, as error) error {
	if errors.Is(err, store.ErrNotFound) {
		return as
	}
	return err
}

func lockedUser(tx store.Tx, userId uint) (*bisonapi.User, error) {
	u, err := tx.UserById(userId, true)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}

func lockedWallet(tx store.Tx, userId uint) (*bisonapi.Wallet, error) {
	w, err := tx.WalletByUser(userId, true)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return w, nil
}

func lockedStaking(tx store.Tx, userId uint) (*bisonapi.StakingPosition, error) {
	p, err := tx.StakingByUser(userId, true)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return p, nil
}

func lockedMeter(tx store.Tx) (*bisonapi.TokenMeter, error) {
	m, err := tx.Meter(true)
	if err != nil {
		return nil, notFound(err, ErrMeterNotFound)
	}
	return m, nil
}

func displayName(u *bisonapi.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ExternalId
}
