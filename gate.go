package chainpass

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainpass/chainpass/audit"
	"github.com/chainpass/chainpass/metrics"
)

// AdmissionKind is the gate's three-way decision.
type AdmissionKind int

const (
	// AdmissionChallenge means no proof was presented; the response is
	// the 402 challenge, a protocol step rather than an error.
	AdmissionChallenge AdmissionKind = iota
	// AdmissionAdmitted means the proof verified (or was a permitted
	// bypass) and the request may proceed.
	AdmissionAdmitted
	// AdmissionRejected means the proof was presented and refused.
	AdmissionRejected
)

// Admission is the outcome of Gate.Admit. Exactly one of Verdict,
// Challenge, or Err is meaningful, per Kind.
type Admission struct {
	Kind      AdmissionKind
	Verdict   Verdict
	Challenge *Challenge
	Err       *Error
}

// Gate is the payment-gate state machine. It decides, per request, whether
// to challenge, verify, or admit, and memoizes successful verifications.
//
// Development mode is an explicit construction-time setting so production
// and development gates can exist side by side; it is never read from
// ambient process state.
type Gate struct {
	requirement PaymentRequirement
	verifier    *Verifier
	cache       VerdictCache
	devMode     bool
	log         *zap.Logger
	rec         metrics.Recorder
	auditor     audit.Publisher
}

// GateOption configures the gate.
type GateOption func(*Gate)

// WithCache sets the verified-payment cache. Defaults to an in-memory
// cache without expiry.
func WithCache(cache VerdictCache) GateOption {
	return func(g *Gate) { g.cache = cache }
}

// WithDevelopmentMode enables the bypass token. Never enable this in
// production.
func WithDevelopmentMode(enabled bool) GateOption {
	return func(g *Gate) { g.devMode = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) GateOption {
	return func(g *Gate) { g.rec = rec }
}

// WithAuditor sets the admission audit publisher.
func WithAuditor(a audit.Publisher) GateOption {
	return func(g *Gate) { g.auditor = a }
}

// NewGate creates a gate enforcing req using v.
func NewGate(req PaymentRequirement, v *Verifier, opts ...GateOption) *Gate {
	g := &Gate{
		requirement: req,
		verifier:    v,
		cache:       NewMemoryVerdictCache(0),
		log:         zap.NewNop(),
		rec:         metrics.Noop{},
		auditor:     audit.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Requirement returns the gate's immutable payment requirement.
func (g *Gate) Requirement() PaymentRequirement { return g.requirement }

// Admit runs the challenge/verify state machine for one request. proof is
// the raw ProofHeader value; empty means the client has not paid yet.
func (g *Gate) Admit(ctx context.Context, proofValue string) Admission {
	if proofValue == "" {
		challenge := NewChallenge(g.requirement)
		return Admission{Kind: AdmissionChallenge, Challenge: &challenge}
	}

	proof := PaymentProof{TxHash: proofValue}

	if proof.IsBypass() {
		return g.admitBypass(ctx)
	}

	// A previously-proven payment is admitted without a ledger query.
	cached, hit, err := g.cache.Get(ctx, proof.TxHash)
	if err != nil {
		// A broken cache degrades to re-verification, never to denial.
		g.log.Warn("verdict cache read failed",
			zap.String("txHash", proof.TxHash), zap.Error(err))
	}
	if hit {
		g.rec.IncVerification("cache_hit", g.requirement.Network.String())
		g.publish(ctx, cached, true)
		return Admission{Kind: AdmissionAdmitted, Verdict: cached}
	}

	verdict, verr := g.verifier.Verify(ctx, proof.TxHash, g.requirement)
	if verr != nil {
		gateErr, ok := verr.(*Error)
		if !ok {
			gateErr = NewError(ErrCodeLedgerUnavailable, verr.Error(), nil)
		}
		g.rec.IncVerification("ledger_error", g.requirement.Network.String())
		return Admission{Kind: AdmissionRejected, Err: gateErr}
	}

	g.rec.IncVerification(string(verdict.Status), g.requirement.Network.String())

	if verdict.Status.Accepted() {
		// Write with a detached context: a client that disconnected
		// mid-verification still deserves the cache entry on retry.
		if err := g.cache.Put(context.WithoutCancel(ctx), proof.TxHash, verdict); err != nil {
			g.log.Warn("verdict cache write failed",
				zap.String("txHash", proof.TxHash), zap.Error(err))
		}
		g.publish(ctx, verdict, false)
		return Admission{Kind: AdmissionAdmitted, Verdict: verdict}
	}

	return Admission{Kind: AdmissionRejected, Err: rejectionError(verdict)}
}

// admitBypass handles the reserved bypass literal. Outside development mode
// it is an ordinary rejection, indistinguishable in shape from any other
// refused proof.
func (g *Gate) admitBypass(ctx context.Context) Admission {
	if !g.devMode {
		g.rec.IncVerification("bypass_denied", g.requirement.Network.String())
		g.log.Warn("bypass token presented outside development mode")
		// No status detail: the rejection is terminal, and attaching a
		// verdict status would suggest a retry could change the outcome.
		return Admission{Kind: AdmissionRejected, Err: NewError(
			ErrCodeVerificationRejected,
			"bypass token is not accepted by this server",
			nil,
		)}
	}

	verdict := Verdict{
		Status:    StatusDevModeBypass,
		TxHash:    BypassToken,
		Amount:    g.requirement.MinAmount,
		Timestamp: time.Now().UTC(),
	}
	g.rec.IncVerification(string(StatusDevModeBypass), g.requirement.Network.String())
	g.publish(ctx, verdict, false)
	return Admission{Kind: AdmissionAdmitted, Verdict: verdict}
}

func (g *Gate) publish(ctx context.Context, v Verdict, cacheHit bool) {
	g.auditor.Publish(ctx, audit.Event{
		TxHash:    v.TxHash,
		Amount:    v.Amount.String(),
		Network:   g.requirement.Network.String(),
		Bypass:    v.Status == StatusDevModeBypass,
		CacheHit:  cacheHit,
		Timestamp: v.Timestamp,
	})
}

// rejectionError maps a refusing verdict to its wire error. Retryable
// statuses use the pending code so clients back off and retry instead of
// abandoning the hash.
func rejectionError(v Verdict) *Error {
	details := map[string]interface{}{"status": string(v.Status)}

	switch v.Status {
	case StatusPending:
		return NewError(ErrCodeVerificationPending,
			"transaction is not finalized yet; retry shortly", details)
	case StatusNotFound:
		return NewError(ErrCodeVerificationPending,
			"transaction not found on the ledger; if it was just sent, retry shortly", details)
	case StatusWrongRecipient:
		return NewError(ErrCodeVerificationRejected,
			"transaction did not pay the required recipient in the required token", details)
	case StatusInsufficientAmount:
		return NewError(ErrCodeVerificationRejected,
			"transferred amount is below the required payment", details)
	case StatusTransactionFailed:
		return NewError(ErrCodeVerificationRejected,
			"transaction execution failed on chain", details)
	default:
		return NewError(ErrCodeVerificationRejected, "payment verification failed", details)
	}
}
