package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"suibison/internal/bisonapi"
)

// poolLockKey is the advisory lock guarding matrix pool window creation.
const poolLockKey = 0x5b150e

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func dup(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (t *gormTx) q(lock bool) *gorm.DB {
	if lock {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func first[T any](db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var out T
	err := db.Where(query, args...).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *gormTx) UserById(id uint, lock bool) (*bisonapi.User, error) {
	return first[bisonapi.User](t.q(lock), "id = ?", id)
}

func (t *gormTx) UserByExternalId(externalId string) (*bisonapi.User, error) {
	return first[bisonapi.User](t.db, "external_id = ?", externalId)
}

func (t *gormTx) UserByRefCode(code string) (*bisonapi.User, error) {
	return first[bisonapi.User](t.db, "ref_code = ?", code)
}

func (t *gormTx) CreateUser(u *bisonapi.User) error {
	return dup(t.db.Create(u).Error)
}

func (t *gormTx) SaveUser(u *bisonapi.User) error {
	return t.db.Save(u).Error
}

func (t *gormTx) UserIds(afterId uint, limit int) ([]uint, error) {
	var ids []uint
	err := t.db.Model(&bisonapi.User{}).
		Where("id > ?", afterId).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (t *gormTx) WalletByUser(userId uint, lock bool) (*bisonapi.Wallet, error) {
	return first[bisonapi.Wallet](t.q(lock), "user_id = ?", userId)
}

func (t *gormTx) CreateWallet(w *bisonapi.Wallet) error {
	return dup(t.db.Create(w).Error)
}

func (t *gormTx) SaveWallet(w *bisonapi.Wallet) error {
	return t.db.Save(w).Error
}

func (t *gormTx) StakingByUser(userId uint, lock bool) (*bisonapi.StakingPosition, error) {
	return first[bisonapi.StakingPosition](t.q(lock), "user_id = ?", userId)
}

func (t *gormTx) CreateStaking(p *bisonapi.StakingPosition) error {
	return t.db.Create(p).Error
}

func (t *gormTx) SaveStaking(p *bisonapi.StakingPosition) error {
	return t.db.Save(p).Error
}

func (t *gormTx) CreateEdge(e *bisonapi.ReferralEdge) error {
	return dup(t.db.Create(e).Error)
}

func (t *gormTx) Edge(ancestorId, descendantId uint, lock bool) (*bisonapi.ReferralEdge, error) {
	return first[bisonapi.ReferralEdge](t.q(lock), "ancestor_id = ? AND descendant_id = ?", ancestorId, descendantId)
}

func (t *gormTx) SaveEdge(e *bisonapi.ReferralEdge) error {
	return t.db.Save(e).Error
}

func (t *gormTx) EdgesByAncestor(ancestorId uint, level int) ([]bisonapi.ReferralEdge, error) {
	var edges []bisonapi.ReferralEdge
	q := t.db.Where("ancestor_id = ?", ancestorId)
	if level > 0 {
		q = q.Where("level = ?", level)
	}
	err := q.Order("level, created_at").Find(&edges).Error
	return edges, err
}

func (t *gormTx) AddActivity(a *bisonapi.Activity) error {
	return t.db.Create(a).Error
}

func (t *gormTx) ActivitiesByUser(userId uint, limit int) ([]bisonapi.Activity, error) {
	var out []bisonapi.Activity
	err := t.db.Where("user_id = ?", userId).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

func (t *gormTx) LockPools() error {
	return t.db.Exec("SELECT pg_advisory_xact_lock(?)", poolLockKey).Error
}

func (t *gormTx) ActivePool(now time.Time, lock bool) (*bisonapi.MatrixPool, error) {
	return first[bisonapi.MatrixPool](t.q(lock).Order("end_date desc"), "start_date <= ? AND end_date >= ?", now, now)
}

func (t *gormTx) PoolById(id uint, lock bool) (*bisonapi.MatrixPool, error) {
	return first[bisonapi.MatrixPool](t.q(lock), "id = ?", id)
}

func (t *gormTx) CreatePool(p *bisonapi.MatrixPool) error {
	return t.db.Create(p).Error
}

func (t *gormTx) SavePool(p *bisonapi.MatrixPool) error {
	return t.db.Save(p).Error
}

func (t *gormTx) UnpaidPoolsEndedBefore(before time.Time) ([]bisonapi.MatrixPool, error) {
	var out []bisonapi.MatrixPool
	err := t.db.Where("end_date < ? AND paid_at IS NULL", before).Order("id").Find(&out).Error
	return out, err
}

func (t *gormTx) Share(poolId, userId uint, lock bool) (*bisonapi.MatrixPoolShare, error) {
	return first[bisonapi.MatrixPoolShare](t.q(lock), "pool_id = ? AND user_id = ?", poolId, userId)
}

func (t *gormTx) SharesByPool(poolId uint) ([]bisonapi.MatrixPoolShare, error) {
	var out []bisonapi.MatrixPoolShare
	err := t.db.Where("pool_id = ?", poolId).Order("id").Find(&out).Error
	return out, err
}

func (t *gormTx) CreateShare(s *bisonapi.MatrixPoolShare) error {
	return dup(t.db.Create(s).Error)
}

func (t *gormTx) SaveShare(s *bisonapi.MatrixPoolShare) error {
	return t.db.Save(s).Error
}

func (t *gormTx) Meter(lock bool) (*bisonapi.TokenMeter, error) {
	var m bisonapi.TokenMeter
	err := t.q(lock).Order("id").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *gormTx) CreateMeter(m *bisonapi.TokenMeter) error {
	return t.db.Create(m).Error
}

func (t *gormTx) SaveMeter(m *bisonapi.TokenMeter) error {
	return t.db.Save(m).Error
}

func (t *gormTx) CreateTransfer(tr *bisonapi.Transfer) error {
	return t.db.Create(tr).Error
}

func (t *gormTx) TransferById(id uint, lock bool) (*bisonapi.Transfer, error) {
	return first[bisonapi.Transfer](t.q(lock), "id = ?", id)
}

func (t *gormTx) SaveTransfer(tr *bisonapi.Transfer) error {
	return t.db.Save(tr).Error
}

func (t *gormTx) OpenTransfer(userId uint, kind string) (*bisonapi.Transfer, error) {
	return first[bisonapi.Transfer](t.db.Order("id"),
		"user_id = ? AND kind = ? AND status IN ?",
		userId, kind, []uint{bisonapi.TransferNew, bisonapi.TransferRetry})
}

func (t *gormTx) DueTransfers(now, staleBefore time.Time, limit int) ([]bisonapi.Transfer, error) {
	var out []bisonapi.Transfer
	err := t.db.
		Where("(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (status = ? AND updated_at < ?)",
			bisonapi.TransferRetry, now, bisonapi.TransferNew, staleBefore).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (t *gormTx) Totals() (*Totals, error) {
	out := &Totals{}
	err := t.db.Raw(`SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM users WHERE referrer_id IS NOT NULL),
		(SELECT COUNT(DISTINCT DATE(created_at)) FROM users WHERE referrer_id IS NOT NULL),
		(SELECT COALESCE(SUM(total_deposit), 0) FROM wallets),
		(SELECT COALESCE(SUM(raised_pool_amount), 0) FROM matrix_pools)`).
		Row().
		Scan(&out.Users, &out.ReferredUsers, &out.ReferralDays, &out.TotalStaked, &out.TotalPoolGenerated)
	if err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ Store = (*Gorm)(nil)
	_ Tx    = (*gormTx)(nil)
)
