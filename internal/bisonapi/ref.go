package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralEdge links a user to one of their ancestors at a given depth.
type ReferralEdge struct {
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	AncestorId     uint            `json:"ancestor_id" gorm:"primaryKey;autoIncrement:false"`
	DescendantId   uint            `json:"descendant_id" gorm:"primaryKey;autoIncrement:false"`
	Level          int             `json:"level" gorm:"index;not null"`
	DescendantName string          `json:"descendant_name" gorm:"size:255"`                     // snapshot taken when the edge was created
	Stake          decimal.Decimal `json:"stake" gorm:"type:numeric(38,9);not null;default:0"`  // stake volume contributed by the descendant
	Reward         decimal.Decimal `json:"reward" gorm:"type:numeric(38,9);not null;default:0"` // commission paid to the ancestor
}

type RefData struct {
	TotalCounter int64           `json:"total_counter"`
	ByLevel      map[int]int64   `json:"by_level"`
	RewardTotal  decimal.Decimal `json:"reward_total"`
	Edges        []ReferralEdge  `json:"results"`
}
