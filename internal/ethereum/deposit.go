package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptBackend is the part of ethclient.Client the deposit verifier needs.
type ReceiptBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// DepositVerifier confirms pledges made on chain: a successful value transfer
// to the escrow account, or a successful transaction emitting one ERC-20
// Transfer event to it.
type DepositVerifier struct {
	client       ReceiptBackend
	escrow       common.Address
	signer       types.Signer
	nativeSymbol string
	transfer     abi.Event
}

var _ settlement.DepositVerifier = (*DepositVerifier)(nil)

// NewDepositVerifier creates a verifier for deposits into escrow.
func NewDepositVerifier(client ReceiptBackend, escrow common.Address, cfg config.ChainConfig) (*DepositVerifier, error) {
	parsedABI, err := parseTokenABI()
	if err != nil {
		return nil, err
	}
	return &DepositVerifier{
		client:       client,
		escrow:       escrow,
		signer:       types.LatestSignerForChainID(big.NewInt(cfg.ChainId)),
		nativeSymbol: cfg.NativeSymbol,
		transfer:     parsedABI.Events["Transfer"],
	}, nil
}

// VerifyDeposit looks up txHash and returns the deposit it made into escrow.
func (v *DepositVerifier) VerifyDeposit(ctx context.Context, txHash string) (*settlement.Deposit, error) {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return nil, fmt.Errorf("%w: malformed transaction hash %q", settlement.ErrInvalidDeposit, txHash)
	}
	hash := common.BytesToHash(raw)

	receipt, err := v.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, geth.NotFound) {
		return nil, fmt.Errorf("%w: transaction %s not found or not mined", settlement.ErrInvalidDeposit, hash.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipt of %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", settlement.ErrInvalidDeposit, hash.Hex())
	}

	tx, pending, err := v.client.TransactionByHash(ctx, hash)
	if errors.Is(err, geth.NotFound) || (err == nil && pending) {
		return nil, fmt.Errorf("%w: transaction %s not found or not mined", settlement.ErrInvalidDeposit, hash.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash.Hex(), err)
	}

	if tx.To() != nil && *tx.To() == v.escrow && tx.Value().Sign() > 0 {
		return v.nativeDeposit(hash, tx)
	}
	return v.tokenDeposit(hash, receipt)
}

func (v *DepositVerifier) nativeDeposit(hash common.Hash, tx *types.Transaction) (*settlement.Deposit, error) {
	from, err := types.Sender(v.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot recover sender of %s: %v", settlement.ErrInvalidDeposit, hash.Hex(), err)
	}
	amount, err := crowdfund.ParseUint128(tx.Value().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", settlement.ErrInvalidDeposit, err)
	}
	return &settlement.Deposit{
		TxHash: hash.Hex(),
		From:   crowdfund.Address(from.Hex()),
		Amount: amount,
		Symbol: v.nativeSymbol,
	}, nil
}

func (v *DepositVerifier) tokenDeposit(hash common.Hash, receipt *types.Receipt) (*settlement.Deposit, error) {
	var match *types.Log
	for _, l := range receipt.Logs {
		if len(l.Topics) != 3 || l.Topics[0] != v.transfer.ID {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != v.escrow {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: transaction %s makes several token transfers to escrow", settlement.ErrInvalidDeposit, hash.Hex())
		}
		match = l
	}
	if match == nil {
		return nil, fmt.Errorf("%w: transaction %s moves no funds to %s", settlement.ErrInvalidDeposit, hash.Hex(), v.escrow.Hex())
	}

	values, err := v.transfer.Inputs.NonIndexed().Unpack(match.Data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: undecodable transfer event in %s", settlement.ErrInvalidDeposit, hash.Hex())
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: undecodable transfer value in %s", settlement.ErrInvalidDeposit, hash.Hex())
	}
	amount, err := crowdfund.ParseUint128(value.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", settlement.ErrInvalidDeposit, err)
	}
	return &settlement.Deposit{
		TxHash: hash.Hex(),
		From:   crowdfund.Address(common.BytesToAddress(match.Topics[1].Bytes()).Hex()),
		Amount: amount,
		Token:  crowdfund.Address(match.Address.Hex()),
	}, nil
}
