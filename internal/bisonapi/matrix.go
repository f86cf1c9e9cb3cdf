package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatrixPool is a fixed weekly window that collects the pool portion of withdrawals.
type MatrixPool struct {
	Id               uint            `json:"id" gorm:"primarykey"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	StartDate        time.Time       `json:"start_date" gorm:"index;not null"`
	EndDate          time.Time       `json:"end_date" gorm:"index;not null"`
	TotalReferrals   int64           `json:"total_referrals"`
	RaisedPoolAmount decimal.Decimal `json:"raised_pool_amount" gorm:"type:numeric(38,9);not null;default:0"`
	PaidAt           *time.Time      `json:"paid_at"`
}

func (p *MatrixPool) Active(now time.Time) bool {
	return !p.EndDate.Before(now) && !p.StartDate.After(now)
}

type MatrixPoolShare struct {
	Id             uint            `json:"id" gorm:"primarykey"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	PoolId         uint            `json:"pool_id" gorm:"uniqueIndex:idx_pool_user;not null"`
	UserId         uint            `json:"user_id" gorm:"uniqueIndex:idx_pool_user;not null"`
	ReferralsAdded int64           `json:"referrals_added"`
	MatrixShare    decimal.Decimal `json:"matrix_share" gorm:"type:numeric(12,6);not null;default:0"`
	MatrixEarning  decimal.Decimal `json:"matrix_earning" gorm:"type:numeric(38,9);not null;default:0"`
	PaidAt         *time.Time      `json:"paid_at"`
}
