package ledger

import (
	"errors"
	"fmt"

	"suibison/internal/rate"
)

var (
	ErrReferrerNotFound   = errors.New("referrer not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrActivePoolNotFound = errors.New("active pool not found")
	ErrMeterNotFound      = errors.New("token meter does not exist")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAddress     = errors.New("invalid destination address")
	ErrTransferFailed     = errors.New("external transfer failed")
	ErrTransferPending    = errors.New("a transfer for this user is still pending")
	ErrWithdrawalPending  = errors.New("a withdrawal for this user is still pending")
	ErrBusy               = errors.New("user is locked by another operation")
)

// InvariantError is a ledger inconsistency. Batch jobs stop on it instead of moving on.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

func invariant(op, format string, args ...interface{}) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func IsFatal(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

var codes = []struct {
	err  error
	code string
}{
	{ErrReferrerNotFound, "referrer_not_found"},
	{ErrUserNotFound, "user_not_found"},
	{ErrUserBlocked, "user_blocked"},
	{ErrActivePoolNotFound, "active_pool_not_found"},
	{ErrMeterNotFound, "meter_not_found"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrTransferPending, "transfer_pending"},
	{ErrWithdrawalPending, "withdrawal_pending"},
	{ErrBusy, "busy"},
	{rate.ErrRateUnavailable, "rate_unavailable"},
}

// Code is the client facing code of err. Unknown errors are "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// FromCode is the inverse of Code. It returns nil for codes it does not know.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
