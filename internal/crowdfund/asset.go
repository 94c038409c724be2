package crowdfund

import (
	"errors"
	"fmt"
)

// Address identifies an account on the host ledger.
type Address string

// Native is an asset settled by the host's built-in transfer capability.
type Native struct {
	Symbol string `json:"symbol"`
}

// Delegated is a token whose balances are administered by a separate account.
// Pledges arrive as notifications from Administrator and payouts are requests
// addressed to it.
type Delegated struct {
	Administrator Address `json:"administrator"`
}

// AssetKind is the one asset a project accepts. Exactly one arm is set.
type AssetKind struct {
	Native    *Native    `json:"native,omitempty"`
	Delegated *Delegated `json:"delegated,omitempty"`
}

// NativeAsset returns the asset kind for a native symbol.
func NativeAsset(symbol string) AssetKind {
	return AssetKind{Native: &Native{Symbol: symbol}}
}

// DelegatedAsset returns the asset kind for a token run by administrator.
func DelegatedAsset(administrator Address) AssetKind {
	return AssetKind{Delegated: &Delegated{Administrator: administrator}}
}

// Validate checks that exactly one well-formed arm is present.
func (k AssetKind) Validate() error {
	switch {
	case k.Native != nil && k.Delegated != nil:
		return errors.New("asset must be either native or delegated, not both")
	case k.Native != nil:
		if k.Native.Symbol == "" {
			return errors.New("native asset symbol is empty")
		}
	case k.Delegated != nil:
		if k.Delegated.Administrator == "" {
			return errors.New("delegated asset administrator is empty")
		}
	default:
		return errors.New("asset is not configured")
	}
	return nil
}

// String renders the asset as kind:reference.
func (k AssetKind) String() string {
	switch {
	case k.Native != nil:
		return "native:" + k.Native.Symbol
	case k.Delegated != nil:
		return "delegated:" + string(k.Delegated.Administrator)
	default:
		return "unset"
	}
}

// transfer builds the payout instruction matching the asset's settlement mechanism.
func (k AssetKind) transfer(to Address, amount Uint128) Transfer {
	t := Transfer{Recipient: to, Amount: amount}
	if k.Native != nil {
		t.Native = &NativeSend{Symbol: k.Native.Symbol}
	} else {
		t.Delegated = &DelegatedSend{Administrator: k.Delegated.Administrator}
	}
	return t
}

// Coin is a quantity of a native asset attached to a call.
type Coin struct {
	Symbol string  `json:"symbol"`
	Amount Uint128 `json:"amount"`
}

func (c Coin) String() string {
	return fmt.Sprintf("%s%s", c.Amount, c.Symbol)
}

// NativeSend moves funds with the host's built-in transfer.
type NativeSend struct {
	Symbol string `json:"symbol"`
}

// DelegatedSend asks the administrator to move funds on this contract's behalf.
type DelegatedSend struct {
	Administrator Address `json:"administrator"`
}

// Transfer is an outgoing asset movement for the host to execute after the call commits.
type Transfer struct {
	Recipient Address        `json:"recipient"`
	Amount    Uint128        `json:"amount"`
	Native    *NativeSend    `json:"native,omitempty"`
	Delegated *DelegatedSend `json:"delegated,omitempty"`
}

// Target is the account the instruction is addressed to: the recipient for a
// native send, the administrator for a delegated one.
func (t Transfer) Target() Address {
	if t.Delegated != nil {
		return t.Delegated.Administrator
	}
	return t.Recipient
}
