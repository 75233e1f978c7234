// Package ledger talks to the blockchain data provider. It implements the
// read-only transaction lookup the payment verifier depends on, and the
// paginated asset-transfer-history query served behind the gate.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/chainpass/chainpass"
)

// TokenInfo describes the fungible token accepted on one network.
type TokenInfo struct {
	Contract common.Address
	Decimals int32
	Name     string
}

// Endpoint is the provider configuration for one network.
type Endpoint struct {
	RPCURL string
	Token  TokenInfo
}

// TransferQuery carries normalized filters for a transfer-history page.
// PageKey is a provider-owned continuation token and is forwarded verbatim,
// never parsed.
type TransferQuery struct {
	Network     chainpass.Network
	FromAddress string
	ToAddress   string
	Categories  []string
	FromBlock   string
	ToBlock     string
	MaxCount    int
	Order       string
	PageKey     string
}

// AssetTransfer is one transfer entry as reported by the provider. The
// field shapes mirror the provider's response; they are surfaced to API
// clients unmodified.
type AssetTransfer struct {
	Hash     string           `json:"hash"`
	From     string           `json:"from"`
	To       string           `json:"to"`
	Value    *decimal.Decimal `json:"value"`
	Asset    string           `json:"asset"`
	Category string           `json:"category"`
	BlockNum string           `json:"blockNum"`
}

// TransferPage is one page of history results. An empty PageKey means the
// provider has no further pages.
type TransferPage struct {
	Transfers []AssetTransfer
	PageKey   string
}

// QueryAdapter is the full provider surface: the verifier's transaction
// lookup plus the paginated history query. Network selection is by explicit
// parameter in both operations.
type QueryAdapter interface {
	chainpass.LedgerReader

	GetTransferHistory(ctx context.Context, q TransferQuery) (*TransferPage, error)
}
