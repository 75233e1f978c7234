// Package chainpass implements a pay-per-request gate for HTTP APIs.
//
// A protected route answers unauthenticated requests with HTTP 402 and a
// structured challenge describing the required on-chain payment. The client
// pays, then retries with the transaction hash in the X-Payment-Hash header.
// The gate verifies the hash against the ledger (recipient, token contract,
// amount, execution status) and caches successful verdicts so retries of an
// already-proven payment never re-hit the ledger.
package chainpass

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ProofHeader is the HTTP header carrying the client's payment proof.
const ProofHeader = "X-Payment-Hash"

// BypassToken is the reserved proof value that skips ledger verification.
// It is honored only when the gate was constructed in development mode.
const BypassToken = "demo"

// Network identifies which chain environment the gate verifies against.
type Network string

const (
	// NetworkBase is the production network.
	NetworkBase Network = "base"
	// NetworkBaseSepolia is the test network.
	NetworkBaseSepolia Network = "base-sepolia"
)

// Valid reports whether the network is one the gate knows how to query.
func (n Network) Valid() bool {
	switch n {
	case NetworkBase, NetworkBaseSepolia:
		return true
	}
	return false
}

func (n Network) String() string { return string(n) }

// PaymentRequirement describes what a client must pay to access a route.
// It is constructed once at startup and never mutated.
type PaymentRequirement struct {
	// Recipient is the address the payment must be sent to.
	Recipient common.Address
	// MinAmount is the minimum accepted transfer amount, in canonical
	// token units (e.g. 0.01 for one cent of USDC).
	MinAmount decimal.Decimal
	// Tolerance is an absolute allowance below MinAmount for rounding.
	// A transfer of exactly MinAmount-Tolerance still verifies.
	Tolerance decimal.Decimal
	// Network selects which chain environment to query.
	Network Network
	// TokenContract is the fungible token accepted on Network.
	TokenContract common.Address
}

// PaymentProof is the client-supplied evidence, taken from ProofHeader.
// It is never trusted without ledger verification, except for BypassToken.
type PaymentProof struct {
	TxHash string
}

// IsBypass reports whether the proof is the reserved bypass literal.
func (p PaymentProof) IsBypass() bool {
	return strings.EqualFold(p.TxHash, BypassToken)
}

// VerdictStatus is the typed outcome of checking a proof.
type VerdictStatus string

const (
	StatusVerified           VerdictStatus = "verified"
	StatusNotFound           VerdictStatus = "not_found"
	StatusPending            VerdictStatus = "pending"
	StatusWrongRecipient     VerdictStatus = "wrong_recipient"
	StatusInsufficientAmount VerdictStatus = "insufficient_amount"
	StatusTransactionFailed  VerdictStatus = "transaction_failed"
	StatusDevModeBypass      VerdictStatus = "dev_mode_bypass"
)

// Accepted reports whether the status admits the request.
func (s VerdictStatus) Accepted() bool {
	return s == StatusVerified || s == StatusDevModeBypass
}

// Retryable reports whether the same proof may succeed later.
// NotFound is retryable: the ledger may simply not have indexed the
// transaction yet.
func (s VerdictStatus) Retryable() bool {
	return s == StatusPending || s == StatusNotFound
}

// Verdict is the verifier's decision about a single proof. Amount and
// Timestamp are populated only for accepted verdicts.
type Verdict struct {
	Status    VerdictStatus   `json:"status"`
	TxHash    string          `json:"transactionHash"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Challenge is the body of a 402 response: everything a client needs to
// construct the required payment. It is a protocol step, not an error.
type Challenge struct {
	Amount           string  `json:"amount"`
	Network          Network `json:"network"`
	RecipientAddress string  `json:"recipientAddress"`
	Instructions     string  `json:"instructions"`
}

// NewChallenge builds the 402 payload for a requirement.
func NewChallenge(req PaymentRequirement) Challenge {
	return Challenge{
		Amount:           req.MinAmount.String(),
		Network:          req.Network,
		RecipientAddress: req.Recipient.Hex(),
		Instructions: "Send the payment to recipientAddress on the given network, " +
			"then retry this request with the transaction hash in the " +
			ProofHeader + " header.",
	}
}
