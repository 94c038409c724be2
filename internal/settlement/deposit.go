package settlement

import (
	"context"
	"fmt"

	"github.com/blues/cfs-escrow/internal/crowdfund"
)

// ErrInvalidDeposit is returned for a deposit reference that does not prove
// funds arrived in escrow custody.
var ErrInvalidDeposit = fmt.Errorf("invalid deposit: %w", crowdfund.ErrInvalidRequest)

// Deposit is an inbound transfer into escrow custody, confirmed on the network.
type Deposit struct {
	// TxHash is the canonical transaction reference, used to credit it once.
	TxHash string
	From   crowdfund.Address
	Amount crowdfund.Uint128

	// Symbol is set for a native deposit, Token for a token transfer.
	Symbol string
	Token  crowdfund.Address
}

// DepositVerifier confirms that a transaction moved funds into escrow.
type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, txHash string) (*Deposit, error)
}
