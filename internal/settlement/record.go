// Package settlement connects the contract to the network that moves the
// funds. Inbound deposits are verified before they are credited. Outbound
// transfers emitted by committed calls are written to an outbox in the same
// atomic unit as the state change and drained later by a Dispatcher.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/google/uuid"
)

// Kind is the operation that produced a transfer.
type Kind string

const (
	KindWithdraw Kind = "withdraw"
	KindRefund   Kind = "refund"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrRecordNotFound is returned by a Queue for an unknown record id, or for a
// record that is not in the state the call expects.
var ErrRecordNotFound = errors.New("settlement record not found")

// Record is one outbound transfer awaiting or past settlement.
type Record struct {
	ID        string             `json:"id"`
	Kind      Kind               `json:"kind"`
	Transfer  crowdfund.Transfer `json:"transfer"`
	Status    Status             `json:"status"`
	TxHash    string             `json:"tx_hash,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`

	// Attempts counts failed tries that were kept pending.
	Attempts int `json:"attempts,omitempty"`
	// NextAttemptAt is zero for a record that has never been retried.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
}

// Due reports whether a pending record may be tried at now.
func (r Record) Due(now time.Time) bool {
	return r.Status == StatusPending && !r.NextAttemptAt.After(now)
}

// NewRecords wraps the transfers of one call as pending records.
func NewRecords(kind Kind, transfers []crowdfund.Transfer, now time.Time) []Record {
	records := make([]Record, 0, len(transfers))
	for _, t := range transfers {
		records = append(records, Record{
			ID:        uuid.NewString(),
			Kind:      kind,
			Transfer:  t,
			Status:    StatusPending,
			CreatedAt: now.UTC(),
		})
	}
	return records
}

// Queue is the outbox as seen by the dispatcher.
type Queue interface {
	// Due returns up to limit pending records whose next attempt is not
	// after now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Record, error)
	// Complete marks a pending record settled by txHash.
	Complete(ctx context.Context, id, txHash string) error
	// Retry keeps a pending record pending, counts the attempt and defers
	// the next one to next.
	Retry(ctx context.Context, id, reason string, next time.Time) error
	// Fail marks a pending record permanently failed.
	Fail(ctx context.Context, id, reason string) error
	// Requeue returns a failed record to pending with a fresh attempt count.
	Requeue(ctx context.Context, id string) error
}

// Settler executes a single transfer and returns the transaction reference.
// Errors are retried unless wrapped with Permanent.
type Settler interface {
	Settle(ctx context.Context, record Record) (string, error)
}

// PermanentError marks a transfer that no retry can complete.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the dispatcher fails the record instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
