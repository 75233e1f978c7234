package chainpass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainpass/chainpass/metrics"
)

// Verifier checks a claimed transaction hash against the ledger. It is pure
// with respect to its inputs except for the single ledger read: it performs
// no writes and verifying the same hash twice yields the same verdict absent
// ledger state changes (such as finalization).
type Verifier struct {
	ledger  LedgerReader
	timeout time.Duration
	log     *zap.Logger
	rec     metrics.Recorder
}

// VerifierOption configures the verifier.
type VerifierOption func(*Verifier)

// WithLedgerTimeout bounds each ledger read. A timed-out read is reported
// as retryable, never as a hard failure.
func WithLedgerTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.timeout = d }
}

// WithVerifierLogger sets the structured logger.
func WithVerifierLogger(log *zap.Logger) VerifierOption {
	return func(v *Verifier) { v.log = log }
}

// WithVerifierMetrics sets the metrics recorder.
func WithVerifierMetrics(rec metrics.Recorder) VerifierOption {
	return func(v *Verifier) { v.rec = rec }
}

// NewVerifier creates a verifier reading from the given ledger.
func NewVerifier(ledger LedgerReader, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		ledger:  ledger,
		timeout: 30 * time.Second,
		log:     zap.NewNop(),
		rec:     metrics.Noop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks txHash against req and returns a typed verdict.
//
// The returned error is non-nil only for ledger infrastructure faults
// (mapped to ErrCodeLedgerUnavailable); every protocol-level outcome,
// including rejections, is expressed in the verdict status. A ledger read
// that exceeds the configured timeout yields a Pending verdict so the
// client retries instead of treating the payment as failed.
func (v *Verifier) Verify(ctx context.Context, txHash string, req PaymentRequirement) (Verdict, error) {
	readCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	tx, err := v.ledger.GetTransaction(readCtx, txHash, req.Network)
	v.rec.ObserveLatency("ledger_get_transaction", time.Since(start), req.Network.String())

	if err != nil {
		switch {
		case errors.Is(err, ErrTxNotFound):
			return v.verdict(txHash, StatusNotFound), nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Our read timeout fired, not the caller's cancellation.
			v.log.Warn("ledger read timed out, reporting pending",
				zap.String("txHash", txHash),
				zap.String("network", req.Network.String()))
			return v.verdict(txHash, StatusPending), nil
		default:
			return Verdict{}, NewError(ErrCodeLedgerUnavailable,
				fmt.Sprintf("ledger query failed: %v", err), nil)
		}
	}

	if tx.Status == TxPending {
		return v.verdict(txHash, StatusPending), nil
	}
	if tx.Status == TxFailed {
		return v.verdict(txHash, StatusTransactionFailed), nil
	}

	transfer := tx.Transfer
	if transfer == nil {
		// Succeeded but moved no tokens; it cannot have paid anyone.
		return v.verdict(txHash, StatusWrongRecipient), nil
	}

	if transfer.Token != req.TokenContract {
		v.log.Debug("transfer token does not match requirement",
			zap.String("txHash", txHash),
			zap.String("got", transfer.Token.Hex()),
			zap.String("want", req.TokenContract.Hex()))
		return v.verdict(txHash, StatusWrongRecipient), nil
	}

	// common.Address comparison is canonical: header values of any hex
	// casing were normalized when parsed.
	if transfer.To != req.Recipient {
		return v.verdict(txHash, StatusWrongRecipient), nil
	}

	floor := req.MinAmount.Sub(req.Tolerance)
	if transfer.Amount.LessThan(floor) {
		return v.verdict(txHash, StatusInsufficientAmount), nil
	}

	return Verdict{
		Status:    StatusVerified,
		TxHash:    txHash,
		Amount:    transfer.Amount,
		Timestamp: tx.Timestamp,
	}, nil
}

func (v *Verifier) verdict(txHash string, status VerdictStatus) Verdict {
	return Verdict{Status: status, TxHash: txHash}
}
