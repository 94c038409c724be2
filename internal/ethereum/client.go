package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nativeTransferGas is the intrinsic gas of a plain value transfer.
const nativeTransferGas = 21000

const erc20ABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

func parseTokenABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	return parsed, nil
}

// Backend is the part of ethclient.Client the settler needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Settler pays out settlement records on an EVM chain. Native transfers are
// value transfers to the recipient; delegated transfers call the ERC-20
// transfer method on the administrator contract.
type Settler struct {
	client       Backend
	privateKey   *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	gasLimit     uint64
	nativeSymbol string
	tokenABI     abi.ABI

	mu sync.Mutex // orders nonce assignment
}

var _ settlement.Settler = (*Settler)(nil)

// Dial connects to the configured RPC endpoint and checks it serves the
// configured chain.
func Dial(ctx context.Context, cfg config.ChainConfig) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum client: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainId {
		client.Close()
		return nil, fmt.Errorf("rpc serves chain %s, configured %d", chainID, cfg.ChainId)
	}
	return client, nil
}

// NewSettler creates a settler that signs with the configured key.
func NewSettler(client Backend, cfg config.ChainConfig) (*Settler, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	parsedABI, err := parseTokenABI()
	if err != nil {
		return nil, err
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 100000
	}
	return &Settler{
		client:       client,
		privateKey:   privateKey,
		from:         crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:      big.NewInt(cfg.ChainId),
		gasLimit:     gasLimit,
		nativeSymbol: cfg.NativeSymbol,
		tokenABI:     parsedABI,
	}, nil
}

// From returns the escrow account that signs payouts.
func (s *Settler) From() common.Address {
	return s.from
}

// ValidateAsset reports whether payouts in asset can be settled on this chain.
func (s *Settler) ValidateAsset(asset crowdfund.AssetKind) error {
	switch {
	case asset.Native != nil:
		if s.nativeSymbol != "" && asset.Native.Symbol != s.nativeSymbol {
			return fmt.Errorf("native symbol %q is not settled on this chain, expected %q", asset.Native.Symbol, s.nativeSymbol)
		}
	case asset.Delegated != nil:
		if _, err := hexAddress(asset.Delegated.Administrator); err != nil {
			return fmt.Errorf("token administrator: %w", err)
		}
	}
	return nil
}

// Settle signs and broadcasts the transfer and returns its transaction hash.
// Malformed transfers and signing failures are permanent; RPC errors are not.
func (s *Settler) Settle(ctx context.Context, record settlement.Record) (string, error) {
	to, value, gas, data, err := s.buildCall(record.Transfer)
	if err != nil {
		return "", settlement.Permanent(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return "", settlement.Permanent(fmt.Errorf("failed to sign transaction: %w", err))
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (s *Settler) buildCall(t crowdfund.Transfer) (common.Address, *big.Int, uint64, []byte, error) {
	recipient, err := hexAddress(t.Recipient)
	if err != nil {
		return common.Address{}, nil, 0, nil, err
	}

	switch {
	case t.Native != nil:
		if s.nativeSymbol != "" && t.Native.Symbol != s.nativeSymbol {
			return common.Address{}, nil, 0, nil, fmt.Errorf("native symbol %q is not settled on this chain", t.Native.Symbol)
		}
		return recipient, t.Amount.Big(), nativeTransferGas, nil, nil
	case t.Delegated != nil:
		token, err := hexAddress(t.Delegated.Administrator)
		if err != nil {
			return common.Address{}, nil, 0, nil, err
		}
		data, err := s.tokenABI.Pack("transfer", recipient, t.Amount.Big())
		if err != nil {
			return common.Address{}, nil, 0, nil, fmt.Errorf("failed to pack token transfer: %w", err)
		}
		return token, new(big.Int), s.gasLimit, data, nil
	default:
		return common.Address{}, nil, 0, nil, errors.New("transfer has no asset")
	}
}

func hexAddress(a crowdfund.Address) (common.Address, error) {
	if !common.IsHexAddress(string(a)) {
		return common.Address{}, fmt.Errorf("invalid address %q", a)
	}
	return common.HexToAddress(string(a)), nil
}
