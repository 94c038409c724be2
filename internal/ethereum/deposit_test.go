package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/blues/cfs-escrow/internal/config"
	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var escrowAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

type fakeChain struct {
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	err      error
}

func newFakeChain() *fakeChain {
	return &fakeChain{txs: map[common.Hash]*types.Transaction{}, receipts: map[common.Hash]*types.Receipt{}}
}

func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, geth.NotFound
	}
	return tx, false, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, geth.NotFound
	}
	return r, nil
}

// mine signs a transaction from key and stores it with a receipt of the given status and logs.
func (f *fakeChain) mine(t *testing.T, key *ecdsa.PrivateKey, to common.Address, value *big.Int, status uint64, logs ...*types.Log) common.Hash {
	t.Helper()
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    uint64(len(f.txs)),
		To:       &to,
		Value:    value,
		Gas:      60000,
		GasPrice: big.NewInt(1),
	}), types.LatestSignerForChainID(big.NewInt(1337)), key)
	require.NoError(t, err)
	f.txs[tx.Hash()] = tx
	f.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash(), Logs: logs}
	return tx.Hash()
}

func newTestVerifier(t *testing.T) (*DepositVerifier, *fakeChain) {
	t.Helper()
	chain := newFakeChain()
	v, err := NewDepositVerifier(chain, escrowAddr, config.ChainConfig{ChainId: 1337, NativeSymbol: "wei"})
	require.NoError(t, err)
	return v, chain
}

func transferLog(v *DepositVerifier, token, from, to common.Address, value int64) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			v.transfer.ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
	}
}

func TestVerifyNativeDeposit(t *testing.T) {
	v, chain := newTestVerifier(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hash := chain.mine(t, key, escrowAddr, big.NewInt(500), types.ReceiptStatusSuccessful)

	d, err := v.VerifyDeposit(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), d.TxHash)
	assert.Equal(t, crowdfund.Address(crypto.PubkeyToAddress(key.PublicKey).Hex()), d.From)
	assert.Equal(t, "500", d.Amount.String())
	assert.Equal(t, "wei", d.Symbol)
	assert.Empty(t, d.Token)
}

func TestVerifyTokenDeposit(t *testing.T) {
	v, chain := newTestVerifier(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	token := common.HexToAddress(tokenAddr)
	other := common.HexToAddress(recipient)

	hash := chain.mine(t, key, token, new(big.Int), types.ReceiptStatusSuccessful,
		transferLog(v, token, from, other, 9),
		transferLog(v, token, from, escrowAddr, 250))

	d, err := v.VerifyDeposit(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, crowdfund.Address(from.Hex()), d.From)
	assert.Equal(t, crowdfund.Address(token.Hex()), d.Token)
	assert.Equal(t, "250", d.Amount.String())
	assert.Empty(t, d.Symbol)
}

func TestVerifyDepositRejects(t *testing.T) {
	v, chain := newTestVerifier(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)
	token := common.HexToAddress(tokenAddr)
	elsewhere := common.HexToAddress(recipient)

	reverted := chain.mine(t, key, escrowAddr, big.NewInt(500), types.ReceiptStatusFailed)
	notToEscrow := chain.mine(t, key, elsewhere, big.NewInt(500), types.ReceiptStatusSuccessful)
	twoTransfers := chain.mine(t, key, token, new(big.Int), types.ReceiptStatusSuccessful,
		transferLog(v, token, from, escrowAddr, 1),
		transferLog(v, token, from, escrowAddr, 2))

	tests := []struct {
		name string
		hash string
	}{
		{"malformed", "0x1234"},
		{"not hex", "deposit"},
		{"unknown", common.HexToHash("0x99").Hex()},
		{"reverted", reverted.Hex()},
		{"paid elsewhere", notToEscrow.Hex()},
		{"ambiguous", twoTransfers.Hex()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyDeposit(context.Background(), tt.hash)
			assert.ErrorIs(t, err, settlement.ErrInvalidDeposit)
			assert.ErrorIs(t, err, crowdfund.ErrInvalidRequest)
		})
	}
}

func TestVerifyDepositRPCError(t *testing.T) {
	v, chain := newTestVerifier(t)
	chain.err = errors.New("connection refused")

	_, err := v.VerifyDeposit(context.Background(), common.HexToHash("0x01").Hex())
	require.Error(t, err)
	assert.NotErrorIs(t, err, settlement.ErrInvalidDeposit)
}
