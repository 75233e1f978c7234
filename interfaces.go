package chainpass

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrTxNotFound is returned by a LedgerReader when the ledger has no record
// of the transaction hash. The hash may simply not be indexed yet, so the
// condition is retryable.
var ErrTxNotFound = errors.New("transaction not found")

// TxStatus is the execution status of a ledger transaction.
type TxStatus string

const (
	// TxPending means the transaction is known but not yet finalized.
	TxPending TxStatus = "pending"
	// TxSuccess means the transaction executed successfully.
	TxSuccess TxStatus = "success"
	// TxFailed means the transaction was included but reverted.
	TxFailed TxStatus = "failed"
)

// TransferEvent is the token transfer effected by a transaction, extracted
// from its event data.
type TransferEvent struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount decimal.Decimal // canonical token units
}

// LedgerTransaction is the ledger's view of a transaction, as consumed by
// the verifier.
type LedgerTransaction struct {
	Hash      string
	Status    TxStatus
	Transfer  *TransferEvent // nil when the tx effected no token transfer
	Timestamp time.Time
}

// LedgerReader is the verifier's one external dependency: a read-only view
// of transaction finality and transfer effects. Network selection is always
// explicit, never inferred.
//
// Implementations must return ErrTxNotFound (possibly wrapped) when the
// hash is unknown. Any other error is treated as a ledger infrastructure
// fault, not a verification failure.
type LedgerReader interface {
	GetTransaction(ctx context.Context, txHash string, network Network) (*LedgerTransaction, error)
}
