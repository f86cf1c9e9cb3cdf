package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"suibison/internal/bisonapi"
	"suibison/internal/metrics"
	"suibison/internal/store"
	"suibison/internal/wallet"
)

const (
	staleTransferAge = 10 * time.Minute
	retryBatch       = 100
)

// attempt sends t and settles it. The caller holds the user lock.
func (e *Engine) attempt(ctx context.Context, t *bisonapi.Transfer, rate decimal.Decimal) (*bisonapi.Transfer, error) {
	credential, err := e.credentialFor(ctx, t)
	if err != nil {
		return e.failTransfer(context.WithoutCancel(ctx), t, err)
	}
	txid, err := wallet.TransferWithTimeout(ctx, e.wallet, e.cfg.Transfer.Timeout, credential, t.ToAddress, t.Amount)
	// the funds already moved or not, the outcome must be written even if the caller went away
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		metrics.RecordTransfer(t.Kind, "failed")
		return e.failTransfer(ctx, t, err)
	}
	metrics.RecordTransfer(t.Kind, "sent")
	return e.confirmTransfer(ctx, t, txid, rate)
}

func (e *Engine) credentialFor(ctx context.Context, t *bisonapi.Transfer) (string, error) {
	switch t.Kind {
	case bisonapi.TransferPayout:
		return e.openCredential(e.platform.key)
	case bisonapi.TransferSweep:
		var sealed string
		err := e.store.Transaction(ctx, func(tx store.Tx) error {
			w, err := tx.WalletByUser(t.UserId, false)
			if err != nil {
				return notFound(err, ErrUserNotFound)
			}
			sealed = w.Credential
			return nil
		})
		if err != nil {
			return "", err
		}
		return e.openCredential(sealed)
	}
	return "", fmt.Errorf("unknown transfer kind %q", t.Kind)
}

// confirmTransfer applies the ledger effect of a sent transfer and marks it confirmed in the same transaction.
func (e *Engine) confirmTransfer(ctx context.Context, t *bisonapi.Transfer, txid string, rate decimal.Decimal) (*bisonapi.Transfer, error) {
	var confirmed *bisonapi.Transfer
	err := e.transact(ctx, func(tx store.Tx, j *journal) error {
		cur, err := tx.TransferById(t.Id, true)
		if err != nil {
			return err
		}
		if !cur.Open() {
			return invariant("confirm transfer", "transfer %s has status %d", cur.Reference, cur.Status)
		}
		switch cur.Kind {
		case bisonapi.TransferSweep:
			err = e.applyDeposit(tx, j, cur, rate)
		case bisonapi.TransferPayout:
			err = e.applyWithdrawal(tx, j, cur, rate)
		default:
			err = invariant("confirm transfer", "unknown kind %q", cur.Kind)
		}
		if err != nil {
			return err
		}
		cur.Status = bisonapi.TransferConfirmed
		cur.Txid = txid
		cur.Attempts++
		cur.LastError = ""
		cur.NextAttemptAt = nil
		confirmed = cur
		return tx.SaveTransfer(cur)
	})
	if err != nil {
		// the funds moved: keep the txid so the retry job books it instead of sending again
		cause := err
		e.log.WithError(cause).WithField("reference", t.Reference).Error("[transfer] sent but not booked")
		if serr := e.store.Transaction(ctx, func(tx store.Tx) error {
			cur, err := tx.TransferById(t.Id, true)
			if err != nil {
				return err
			}
			cur.Txid = txid
			cur.LastError = cause.Error()
			return tx.SaveTransfer(cur)
		}); serr != nil {
			e.log.WithError(serr).WithField("reference", t.Reference).Error("[transfer] txid not saved")
		}
		e.alert(ctx, "Transfer %s (%s) sent as %s but not booked: %v", t.Reference, t.Kind, txid, cause)
		return nil, cause
	}
	metrics.RecordTransfer(confirmed.Kind, "confirmed")
	e.log.WithFields(logrus.Fields{
		"user_id":   confirmed.UserId,
		"reference": confirmed.Reference,
		"kind":      confirmed.Kind,
		"txid":      txid,
	}).Info("[transfer] confirmed")
	if confirmed.Kind == bisonapi.TransferPayout {
		e.alert(ctx, "Withdrawal of %s to %s confirmed, tx %s", confirmed.Amount, confirmed.ToAddress, txid)
	}
	return confirmed, nil
}

// failTransfer records a failed attempt. The transfer is retried with a growing backoff and abandoned
// after MaxAttempts. The ledger is untouched either way.
func (e *Engine) failTransfer(ctx context.Context, t *bisonapi.Transfer, cause error) (*bisonapi.Transfer, error) {
	s := e.cfg.Transfer
	var (
		failed    *bisonapi.Transfer
		abandoned bool
	)
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		cur, err := tx.TransferById(t.Id, true)
		if err != nil {
			return err
		}
		if !cur.Open() {
			failed = cur
			return nil
		}
		cur.Attempts++
		cur.LastError = cause.Error()
		if s.MaxAttempts > 0 && cur.Attempts >= s.MaxAttempts {
			cur.Status = bisonapi.TransferAbandoned
			cur.NextAttemptAt = nil
			abandoned = true
		} else {
			next := e.now().Add(s.Backoff * time.Duration(cur.Attempts))
			cur.Status = bisonapi.TransferRetry
			cur.NextAttemptAt = &next
		}
		failed = cur
		return tx.SaveTransfer(cur)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v (and recording it failed: %v)", ErrTransferFailed, cause, err)
	}
	entry := e.log.WithError(cause).WithFields(logrus.Fields{
		"user_id":   failed.UserId,
		"reference": failed.Reference,
		"attempts":  failed.Attempts,
	})
	if abandoned {
		metrics.RecordTransfer(failed.Kind, "abandoned")
		entry.Error("[transfer] abandoned")
		e.alert(ctx, "Transfer %s (%s of %s for user %d) abandoned after %d attempts: %v",
			failed.Reference, failed.Kind, failed.Amount, failed.UserId, failed.Attempts, cause)
	} else {
		entry.Warn("[transfer] attempt failed")
	}
	return failed, fmt.Errorf("%w: %v", ErrTransferFailed, cause)
}

// RetryDue re-attempts retryable transfers whose backoff elapsed. Sent transfers that were not booked
// are booked without sending again. New transfers left behind by a crash have an unknown outcome and
// are abandoned for manual reconciliation.
func (e *Engine) RetryDue(ctx context.Context) (int, error) {
	now := e.now()
	var due []bisonapi.Transfer
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		due, err = tx.DueTransfers(now, now.Add(-staleTransferAge), retryBatch)
		return err
	})
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range due {
		t := &due[i]
		if t.Status == bisonapi.TransferNew && t.Txid == "" {
			if err := e.abandon(ctx, t); err != nil {
				return done, err
			}
			continue
		}
		err := e.retry(ctx, t)
		if IsFatal(err) {
			return done, err
		}
		if err != nil {
			e.log.WithError(err).WithField("reference", t.Reference).Warn("[transfer] retry failed")
			continue
		}
		done++
	}
	return done, nil
}

func (e *Engine) retry(ctx context.Context, t *bisonapi.Transfer) error {
	unlock, err := e.lockUser(ctx, t.UserId)
	if err != nil {
		return err
	}
	defer unlock()
	r, err := e.rates.Rate(ctx)
	if err != nil {
		return err
	}
	if t.Txid != "" {
		_, err = e.confirmTransfer(ctx, t, t.Txid, r)
		return err
	}
	_, err = e.attempt(ctx, t, r)
	return err
}

func (e *Engine) abandon(ctx context.Context, t *bisonapi.Transfer) error {
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		cur, err := tx.TransferById(t.Id, true)
		if err != nil {
			return err
		}
		if cur.Status != bisonapi.TransferNew {
			return nil
		}
		cur.Status = bisonapi.TransferAbandoned
		cur.LastError = "outcome unknown, reconcile manually"
		return tx.SaveTransfer(cur)
	})
	if err != nil {
		return err
	}
	metrics.RecordTransfer(t.Kind, "abandoned")
	e.log.WithField("reference", t.Reference).Error("[transfer] stale transfer abandoned")
	e.alert(ctx, "Transfer %s (%s of %s for user %d) has an unknown outcome, reconcile %s -> %s",
		t.Reference, t.Kind, t.Amount, t.UserId, t.FromAddress, t.ToAddress)
	return nil
}

// Transfer returns a transfer by id.
func (e *Engine) Transfer(ctx context.Context, id uint) (*bisonapi.Transfer, error) {
	var t *bisonapi.Transfer
	err := e.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.TransferById(id, false)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("transfer %d: %w", id, err)
	}
	return t, err
}
