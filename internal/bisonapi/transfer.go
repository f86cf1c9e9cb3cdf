package bisonapi

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransferSweep  = "sweep"  // custodial wallet to platform wallet, credits a stake deposit
	TransferPayout = "payout" // platform wallet to user destination, settles a withdrawal
)

const (
	TransferNew       uint = 0
	TransferConfirmed uint = 1
	TransferRetry     uint = 2
	TransferAbandoned uint = 9
)

// Transfer is an external movement of funds. The ledger effect is applied only when Status turns Confirmed.
type Transfer struct {
	Id            uint            `json:"id" gorm:"primarykey"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Reference     string          `json:"reference" gorm:"uniqueIndex;size:36;not null"`
	UserId        uint            `json:"user_id" gorm:"index;not null"`
	Kind          string          `json:"kind" gorm:"size:16;not null"`
	FromAddress   string          `json:"from_address"`
	ToAddress     string          `json:"to_address"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(38,9);not null;default:0"`
	Status        uint            `json:"status" gorm:"index"` // Status [0: New, 1: Confirmed, 2: Retry, 9: Abandoned]
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	NextAttemptAt *time.Time      `json:"next_attempt_at" gorm:"index"`
	Txid          string          `json:"txid"`
	// frozen withdrawal split
	Earnings decimal.Decimal `json:"earnings" gorm:"type:numeric(38,9);not null;default:0"`
	Restake  decimal.Decimal `json:"restake" gorm:"type:numeric(38,9);not null;default:0"`
	Token    decimal.Decimal `json:"token" gorm:"type:numeric(38,9);not null;default:0"`
	Pool     decimal.Decimal `json:"pool" gorm:"type:numeric(38,9);not null;default:0"`
}

func (t *Transfer) Open() bool {
	return t.Status == TransferNew || t.Status == TransferRetry
}
