package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdcContract  = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	otherContract = common.HexToAddress("0x9999999999999999999999999999999999999999")
	fromAddr      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	toAddr        = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func transferLog(contract common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{transferTopic, addressTopic(fromAddr), addressTopic(toAddr)},
		Data:    common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func testBackend() *backend {
	return &backend{token: TokenInfo{Contract: usdcContract, Decimals: 6, Name: "USDC"}}
}

func TestExtractTransferScalesAcceptedToken(t *testing.T) {
	// 10_000 raw units at 6 decimals = 0.01
	ev := testBackend().extractTransfer([]*types.Log{
		transferLog(usdcContract, big.NewInt(10_000)),
	})

	require.NotNil(t, ev)
	assert.Equal(t, usdcContract, ev.Token)
	assert.Equal(t, fromAddr, ev.From)
	assert.Equal(t, toAddr, ev.To)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("0.01")))
}

func TestExtractTransferPrefersAcceptedToken(t *testing.T) {
	ev := testBackend().extractTransfer([]*types.Log{
		transferLog(otherContract, big.NewInt(500)),
		transferLog(usdcContract, big.NewInt(20_000)),
	})

	require.NotNil(t, ev)
	assert.Equal(t, usdcContract, ev.Token)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("0.02")))
}

func TestExtractTransferFallsBackToOtherToken(t *testing.T) {
	ev := testBackend().extractTransfer([]*types.Log{
		transferLog(otherContract, big.NewInt(500)),
	})

	require.NotNil(t, ev)
	assert.Equal(t, otherContract, ev.Token)
}

func TestExtractTransferIgnoresNonTransferLogs(t *testing.T) {
	b := testBackend()

	assert.Nil(t, b.extractTransfer(nil))
	assert.Nil(t, b.extractTransfer([]*types.Log{
		{
			// Approval-style log: right arity, wrong topic.
			Address: usdcContract,
			Topics:  []common.Hash{common.HexToHash("0xab"), addressTopic(fromAddr), addressTopic(toAddr)},
			Data:    common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
		},
		{
			// Transfer topic but malformed arity.
			Address: usdcContract,
			Topics:  []common.Hash{transferTopic},
			Data:    common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
		},
	}))
}
