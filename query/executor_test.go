package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/ledger"
)

// fakeAdapter records the query it received and returns a scripted page.
type fakeAdapter struct {
	got  ledger.TransferQuery
	page *ledger.TransferPage
	err  error
}

func (f *fakeAdapter) GetTransaction(context.Context, string, chainpass.Network) (*chainpass.LedgerTransaction, error) {
	return nil, chainpass.ErrTxNotFound
}

func (f *fakeAdapter) GetTransferHistory(_ context.Context, q ledger.TransferQuery) (*ledger.TransferPage, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func normalized(t *testing.T, p Params) Params {
	t.Helper()
	out, gateErr := p.Normalize()
	require.Nil(t, gateErr)
	return out
}

func TestExecuteForwardsFilters(t *testing.T) {
	adapter := &fakeAdapter{page: &ledger.TransferPage{}}
	ex := NewExecutor(adapter, chainpass.NetworkBaseSepolia, nil)

	p := normalized(t, Params{
		FromAddress: validAddr,
		FromBlock:   "0x10",
		MaxCount:    25,
		Order:       "asc",
		PageKey:     "cursor-1",
	})

	_, err := ex.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, chainpass.NetworkBaseSepolia, adapter.got.Network)
	assert.Equal(t, validAddr, adapter.got.FromAddress)
	assert.Equal(t, "0x10", adapter.got.FromBlock)
	assert.Equal(t, 25, adapter.got.MaxCount)
	assert.Equal(t, "asc", adapter.got.Order)
	assert.Equal(t, "cursor-1", adapter.got.PageKey)
}

func TestExecuteBareAddressFiltersByRecipient(t *testing.T) {
	adapter := &fakeAdapter{page: &ledger.TransferPage{}}
	ex := NewExecutor(adapter, chainpass.NetworkBase, nil)

	_, err := ex.Execute(context.Background(), normalized(t, Params{Address: validAddr}))
	require.NoError(t, err)
	assert.Equal(t, validAddr, adapter.got.ToAddress)
	assert.Empty(t, adapter.got.FromAddress)
}

func TestExecutePagination(t *testing.T) {
	t.Run("more pages", func(t *testing.T) {
		adapter := &fakeAdapter{page: &ledger.TransferPage{
			Transfers: []ledger.AssetTransfer{{Hash: "0xaa"}},
			PageKey:   "next-cursor",
		}}
		ex := NewExecutor(adapter, chainpass.NetworkBase, nil)

		page, err := ex.Execute(context.Background(), normalized(t, Params{Address: validAddr}))
		require.NoError(t, err)
		assert.True(t, page.HasMore)
		assert.Equal(t, "next-cursor", page.PageKey)
		assert.Len(t, page.Transfers, 1)
	})

	t.Run("last page", func(t *testing.T) {
		adapter := &fakeAdapter{page: &ledger.TransferPage{
			Transfers: []ledger.AssetTransfer{{Hash: "0xbb"}},
		}}
		ex := NewExecutor(adapter, chainpass.NetworkBase, nil)

		page, err := ex.Execute(context.Background(), normalized(t, Params{Address: validAddr}))
		require.NoError(t, err)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.PageKey)
	})
}

func TestExecuteProviderFailure(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("provider 502")}
	ex := NewExecutor(adapter, chainpass.NetworkBase, nil)

	_, err := ex.Execute(context.Background(), normalized(t, Params{Address: validAddr}))
	require.Error(t, err)

	var gateErr *chainpass.Error
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, chainpass.ErrCodeLedgerUnavailable, gateErr.Code)
}
