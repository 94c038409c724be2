// Package store defines the persistence boundary of the host runtime.
package store

import (
	"context"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
)

// Batch is the write view handed to one atomic unit of work: the contract
// state plus the settlement outbox.
type Batch interface {
	crowdfund.Store
	Enqueue(records []settlement.Record) error

	// ClaimDeposit marks an inbound deposit reference as credited. It
	// returns false if the reference was claimed before.
	ClaimDeposit(ref string) (bool, error)
}

// Backend persists contract state and the settlement outbox.
type Backend interface {
	settlement.Queue

	// Atomic runs fn against a batch. The batch is committed only if fn
	// returns nil; otherwise every write made through it is discarded.
	Atomic(ctx context.Context, fn func(Batch) error) error

	// View runs fn against a read-only snapshot of the contract state.
	View(ctx context.Context, fn func(crowdfund.Store) error) error

	Close() error
}
