package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrTransferTimeout = errors.New("transfer timed out")

// Client is the external wallet service. Amounts are in whole asset units.
type Client interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, credential, to string, amount decimal.Decimal) (txid string, err error)
}

// Accounts issues custodial addresses and validates destinations.
type Accounts interface {
	NewAccount() (address, credential string, err error)
	ValidAddress(address string) bool
}

type Backend interface {
	Client
	Accounts
}

// TransferWithTimeout bounds a transfer. A deadline hit is reported as ErrTransferTimeout and
// must be treated as a failure by the caller.
func TransferWithTimeout(ctx context.Context, c Client, timeout time.Duration, credential, to string, amount decimal.Decimal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	txid, err := c.Transfer(ctx, credential, to, amount)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTransferTimeout, err)
		}
		return "", err
	}
	return txid, nil
}
