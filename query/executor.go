package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/ledger"
)

// ResultPage is one page of transfer history plus pagination state. PageKey
// is the provider's continuation token, passed through unchanged; it may
// expire and is never reinterpreted here.
type ResultPage struct {
	Transfers []ledger.AssetTransfer
	PageKey   string
	HasMore   bool
}

// Executor runs admitted transfer-history queries against the provider.
type Executor struct {
	adapter ledger.QueryAdapter
	network chainpass.Network
	log     *zap.Logger
}

// NewExecutor creates an executor querying the given network.
func NewExecutor(adapter ledger.QueryAdapter, network chainpass.Network, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{adapter: adapter, network: network, log: log}
}

// Execute forwards normalized params to the provider. Provider failures are
// reported as a retryable ledger_unavailable error, never swallowed. The
// params must already be normalized.
func (e *Executor) Execute(ctx context.Context, p Params) (*ResultPage, error) {
	q := ledger.TransferQuery{
		Network:     e.network,
		FromAddress: p.FromAddress,
		ToAddress:   p.ToAddress,
		Categories:  p.Categories(),
		FromBlock:   p.FromBlock,
		ToBlock:     p.ToBlock,
		MaxCount:    p.MaxCount,
		Order:       p.Order,
		PageKey:     p.PageKey,
	}

	// The provider filters by direction only; a bare address filter asks
	// for transfers received by that address.
	if q.ToAddress == "" && p.Address != "" {
		q.ToAddress = p.Address
	}

	page, err := e.adapter.GetTransferHistory(ctx, q)
	if err != nil {
		e.log.Warn("transfer history query failed", zap.Error(err))
		return nil, chainpass.NewError(chainpass.ErrCodeLedgerUnavailable,
			"transfer history provider unavailable; retry later", nil)
	}

	return &ResultPage{
		Transfers: page.Transfers,
		PageKey:   page.PageKey,
		HasMore:   page.PageKey != "",
	}, nil
}
