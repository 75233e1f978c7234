package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// ERC-20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type backend struct {
	rpc   *rpc.Client
	eth   *ethclient.Client
	token TokenInfo
}

// Client is the JSON-RPC QueryAdapter. One RPC connection per configured
// network; lookups on an unconfigured network fail rather than falling back.
type Client struct {
	backends map[chainpass.Network]*backend
	log      *zap.Logger
}

var _ QueryAdapter = (*Client)(nil)

// Dial connects to every configured endpoint. It fails fast on the first
// endpoint that cannot be dialed.
func Dial(ctx context.Context, endpoints map[chainpass.Network]Endpoint, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	backends := make(map[chainpass.Network]*backend, len(endpoints))
	for network, ep := range endpoints {
		rc, err := rpc.DialContext(ctx, ep.RPCURL)
		if err != nil {
			for _, b := range backends {
				b.rpc.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", network, err)
		}
		backends[network] = &backend{
			rpc:   rc,
			eth:   ethclient.NewClient(rc),
			token: ep.Token,
		}
	}

	return &Client{backends: backends, log: log}, nil
}

// Close releases all RPC connections.
func (c *Client) Close() {
	for _, b := range c.backends {
		b.rpc.Close()
	}
}

func (c *Client) backend(network chainpass.Network) (*backend, error) {
	b, ok := c.backends[network]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for network %s", network)
	}
	return b, nil
}

// GetTransaction implements chainpass.LedgerReader. It reports the
// transaction's execution status and, when finalized, the ERC-20 transfer it
// effected and its block timestamp.
func (c *Client) GetTransaction(ctx context.Context, txHash string, network chainpass.Network) (*chainpass.LedgerTransaction, error) {
	b, err := c.backend(network)
	if err != nil {
		return nil, err
	}

	hash := common.HexToHash(txHash)

	_, pending, err := b.eth.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%s: %w", txHash, chainpass.ErrTxNotFound)
		}
		return nil, fmt.Errorf("transaction lookup: %w", err)
	}
	if pending {
		return &chainpass.LedgerTransaction{Hash: txHash, Status: chainpass.TxPending}, nil
	}

	receipt, err := b.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Known but not yet mined from this node's view.
			return &chainpass.LedgerTransaction{Hash: txHash, Status: chainpass.TxPending}, nil
		}
		return nil, fmt.Errorf("receipt lookup: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return &chainpass.LedgerTransaction{Hash: txHash, Status: chainpass.TxFailed}, nil
	}

	header, err := b.eth.HeaderByHash(ctx, receipt.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("header lookup: %w", err)
	}

	return &chainpass.LedgerTransaction{
		Hash:      txHash,
		Status:    chainpass.TxSuccess,
		Transfer:  b.extractTransfer(receipt.Logs),
		Timestamp: time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

// extractTransfer picks the transfer event out of a receipt's logs. A log
// for the network's accepted token wins over transfers of other tokens.
func (b *backend) extractTransfer(logs []*types.Log) *chainpass.TransferEvent {
	var fallback *chainpass.TransferEvent

	for _, lg := range logs {
		if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic || len(lg.Data) < 32 {
			continue
		}

		ev := &chainpass.TransferEvent{
			Token: lg.Address,
			From:  common.BytesToAddress(lg.Topics[1].Bytes()),
			To:    common.BytesToAddress(lg.Topics[2].Bytes()),
		}

		raw := new(big.Int).SetBytes(lg.Data[:32])
		if lg.Address == b.token.Contract {
			// Scale to canonical units using the accepted token's
			// decimals; amounts of unrelated tokens are left raw
			// since the verifier rejects them on contract mismatch.
			ev.Amount = decimal.NewFromBigInt(raw, -b.token.Decimals)
			return ev
		}
		ev.Amount = decimal.NewFromBigInt(raw, 0)
		if fallback == nil {
			fallback = ev
		}
	}

	return fallback
}

// transferParams is the wire shape of the provider's asset-transfer query.
type transferParams struct {
	FromBlock   string   `json:"fromBlock,omitempty"`
	ToBlock     string   `json:"toBlock,omitempty"`
	FromAddress string   `json:"fromAddress,omitempty"`
	ToAddress   string   `json:"toAddress,omitempty"`
	Category    []string `json:"category"`
	Order       string   `json:"order,omitempty"`
	MaxCount    string   `json:"maxCount,omitempty"`
	PageKey     string   `json:"pageKey,omitempty"`
}

type transferResult struct {
	Transfers []AssetTransfer `json:"transfers"`
	PageKey   string          `json:"pageKey"`
}

// GetTransferHistory fetches one page of transfer history. The provider's
// continuation token is surfaced verbatim in TransferPage.PageKey.
func (c *Client) GetTransferHistory(ctx context.Context, q TransferQuery) (*TransferPage, error) {
	b, err := c.backend(q.Network)
	if err != nil {
		return nil, err
	}

	params := transferParams{
		FromBlock:   q.FromBlock,
		ToBlock:     q.ToBlock,
		FromAddress: q.FromAddress,
		ToAddress:   q.ToAddress,
		Category:    q.Categories,
		Order:       q.Order,
		PageKey:     q.PageKey,
	}
	if params.FromBlock == "" {
		params.FromBlock = "0x0"
	}
	if q.MaxCount > 0 {
		params.MaxCount = fmt.Sprintf("0x%x", q.MaxCount)
	}

	var result transferResult
	if err := b.rpc.CallContext(ctx, &result, "alchemy_getAssetTransfers", params); err != nil {
		c.log.Warn("transfer history query failed",
			zap.String("network", q.Network.String()), zap.Error(err))
		return nil, fmt.Errorf("transfer history: %w", err)
	}

	return &TransferPage{
		Transfers: result.Transfers,
		PageKey:   result.PageKey,
	}, nil
}
