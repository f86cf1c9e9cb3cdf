package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

type StakeState int

const (
	StakeInactive StakeState = iota
	StakeOpen
	StakeClosed
)

func (s StakeState) String() string {
	switch s {
	case StakeOpen:
		return "open"
	case StakeClosed:
		return "closed"
	default:
		return "inactive"
	}
}

type StakingPosition struct {
	Id              uint            `json:"id" gorm:"primarykey"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	UserId          uint            `json:"user_id" gorm:"uniqueIndex;not null"`
	Deposit         decimal.Decimal `json:"deposit" gorm:"type:numeric(38,9);not null;default:0"`
	Roi             decimal.Decimal `json:"roi" gorm:"type:numeric(12,6);not null;default:0"`
	Start           *time.Time      `json:"start"`
	End             *time.Time      `json:"end"`
	NextRoiIncrease *time.Time      `json:"next_roi_increase"`
}

// State reports the run state at now. A capped run keeps accruing until its end passes.
func (p *StakingPosition) State(now time.Time) StakeState {
	if p.Start == nil {
		return StakeInactive
	}
	if p.End != nil && !now.Before(*p.End) {
		return StakeClosed
	}
	return StakeOpen
}
