package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"suibison/internal/bisonapi"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store runs units of work. Everything fn does commits or rolls back together.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the ledger's view of the database inside one transaction. lock asks for a row lock
// held until the transaction ends.
type Tx interface {
	UserById(id uint, lock bool) (*bisonapi.User, error)
	UserByExternalId(externalId string) (*bisonapi.User, error)
	UserByRefCode(code string) (*bisonapi.User, error)
	CreateUser(u *bisonapi.User) error
	SaveUser(u *bisonapi.User) error
	UserIds(afterId uint, limit int) ([]uint, error)

	WalletByUser(userId uint, lock bool) (*bisonapi.Wallet, error)
	CreateWallet(w *bisonapi.Wallet) error
	SaveWallet(w *bisonapi.Wallet) error

	StakingByUser(userId uint, lock bool) (*bisonapi.StakingPosition, error)
	CreateStaking(p *bisonapi.StakingPosition) error
	SaveStaking(p *bisonapi.StakingPosition) error

	CreateEdge(e *bisonapi.ReferralEdge) error
	Edge(ancestorId, descendantId uint, lock bool) (*bisonapi.ReferralEdge, error)
	SaveEdge(e *bisonapi.ReferralEdge) error
	EdgesByAncestor(ancestorId uint, level int) ([]bisonapi.ReferralEdge, error)

	AddActivity(a *bisonapi.Activity) error
	ActivitiesByUser(userId uint, limit int) ([]bisonapi.Activity, error)

	// LockPools serializes pool window creation until the transaction ends.
	LockPools() error
	ActivePool(now time.Time, lock bool) (*bisonapi.MatrixPool, error)
	PoolById(id uint, lock bool) (*bisonapi.MatrixPool, error)
	CreatePool(p *bisonapi.MatrixPool) error
	SavePool(p *bisonapi.MatrixPool) error
	UnpaidPoolsEndedBefore(t time.Time) ([]bisonapi.MatrixPool, error)
	Share(poolId, userId uint, lock bool) (*bisonapi.MatrixPoolShare, error)
	SharesByPool(poolId uint) ([]bisonapi.MatrixPoolShare, error)
	CreateShare(s *bisonapi.MatrixPoolShare) error
	SaveShare(s *bisonapi.MatrixPoolShare) error

	Meter(lock bool) (*bisonapi.TokenMeter, error)
	CreateMeter(m *bisonapi.TokenMeter) error
	SaveMeter(m *bisonapi.TokenMeter) error

	CreateTransfer(t *bisonapi.Transfer) error
	TransferById(id uint, lock bool) (*bisonapi.Transfer, error)
	SaveTransfer(t *bisonapi.Transfer) error
	OpenTransfer(userId uint, kind string) (*bisonapi.Transfer, error)
	// DueTransfers returns retryable transfers whose backoff elapsed and new ones untouched since staleBefore.
	DueTransfers(now, staleBefore time.Time, limit int) ([]bisonapi.Transfer, error)

	Totals() (*Totals, error)
}

type Totals struct {
	Users              int64           `json:"users"`
	ReferredUsers      int64           `json:"referred_users"`
	ReferralDays       int64           `json:"referral_days"` // distinct days with at least one referred signup
	TotalStaked        decimal.Decimal `json:"total_staked"`
	TotalPoolGenerated decimal.Decimal `json:"total_pool_generated"`
}
