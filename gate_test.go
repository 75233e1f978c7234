package chainpass

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpass/chainpass/audit"
)

// captureAuditor records published events for assertions.
type captureAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *captureAuditor) Publish(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *captureAuditor) all() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Event(nil), a.events...)
}

func TestAdmitEmptyProofChallenges(t *testing.T) {
	gate := NewGate(testRequirement(), NewVerifier(&mockLedger{err: errors.New("unreachable")}))

	adm := gate.Admit(context.Background(), "")
	require.Equal(t, AdmissionChallenge, adm.Kind)
	require.NotNil(t, adm.Challenge)
	assert.Equal(t, "0.01", adm.Challenge.Amount)
	assert.Equal(t, NetworkBaseSepolia, adm.Challenge.Network)
	assert.Equal(t, testRecipient.Hex(), adm.Challenge.RecipientAddress)
	assert.NotEmpty(t, adm.Challenge.Instructions)
}

func TestAdmitVerifiedProof(t *testing.T) {
	ledger := &mockLedger{tx: successTx(testRecipient, testToken, "0.01")}
	auditor := &captureAuditor{}
	gate := NewGate(testRequirement(), NewVerifier(ledger), WithAuditor(auditor))

	adm := gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionAdmitted, adm.Kind)
	assert.Equal(t, StatusVerified, adm.Verdict.Status)
	assert.Equal(t, testHash, adm.Verdict.TxHash)

	events := auditor.all()
	require.Len(t, events, 1)
	assert.Equal(t, testHash, events[0].TxHash)
	assert.False(t, events[0].Bypass)
	assert.False(t, events[0].CacheHit)
}

func TestAdmitCacheHitSkipsLedger(t *testing.T) {
	ledger := &mockLedger{tx: successTx(testRecipient, testToken, "0.01")}
	auditor := &captureAuditor{}
	gate := NewGate(testRequirement(), NewVerifier(ledger), WithAuditor(auditor))

	adm := gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionAdmitted, adm.Kind)
	require.EqualValues(t, 1, ledger.calls.Load())

	// Break the ledger; the cached verdict must carry the retry.
	ledger.err = errors.New("ledger down")
	ledger.tx = nil

	adm = gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionAdmitted, adm.Kind)
	assert.Equal(t, StatusVerified, adm.Verdict.Status)
	assert.EqualValues(t, 1, ledger.calls.Load(), "cache hit must not query the ledger")

	events := auditor.all()
	require.Len(t, events, 2)
	assert.True(t, events[1].CacheHit)
}

func TestAdmitFailuresAreNeverCached(t *testing.T) {
	ledger := &mockLedger{tx: successTx(testRecipient, testToken, "0.001")}
	cache := NewMemoryVerdictCache(0)
	gate := NewGate(testRequirement(), NewVerifier(ledger), WithCache(cache))

	adm := gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionRejected, adm.Kind)
	assert.Equal(t, 0, cache.Len())

	// A second attempt re-verifies instead of replaying the rejection.
	gate.Admit(context.Background(), testHash)
	assert.EqualValues(t, 2, ledger.calls.Load())
}

func TestAdmitRejectionCodes(t *testing.T) {
	tests := []struct {
		name       string
		ledger     *mockLedger
		wantCode   string
		wantStatus VerdictStatus
	}{
		{
			name:       "pending is retryable",
			ledger:     &mockLedger{tx: &LedgerTransaction{Hash: testHash, Status: TxPending}},
			wantCode:   ErrCodeVerificationPending,
			wantStatus: StatusPending,
		},
		{
			name:       "not found is retryable",
			ledger:     &mockLedger{err: ErrTxNotFound},
			wantCode:   ErrCodeVerificationPending,
			wantStatus: StatusNotFound,
		},
		{
			name:       "wrong recipient is terminal",
			ledger:     &mockLedger{tx: successTx(otherAddress, testToken, "0.01")},
			wantCode:   ErrCodeVerificationRejected,
			wantStatus: StatusWrongRecipient,
		},
		{
			name:       "insufficient amount is terminal",
			ledger:     &mockLedger{tx: successTx(testRecipient, testToken, "0.001")},
			wantCode:   ErrCodeVerificationRejected,
			wantStatus: StatusInsufficientAmount,
		},
		{
			name:       "failed execution is terminal",
			ledger:     &mockLedger{tx: &LedgerTransaction{Hash: testHash, Status: TxFailed}},
			wantCode:   ErrCodeVerificationRejected,
			wantStatus: StatusTransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(testRequirement(), NewVerifier(tt.ledger))

			adm := gate.Admit(context.Background(), testHash)
			require.Equal(t, AdmissionRejected, adm.Kind)
			require.NotNil(t, adm.Err)
			assert.Equal(t, tt.wantCode, adm.Err.Code)
			assert.Equal(t, string(tt.wantStatus), adm.Err.Details["status"])
		})
	}
}

func TestAdmitLedgerFault(t *testing.T) {
	gate := NewGate(testRequirement(), NewVerifier(&mockLedger{err: errors.New("rpc refused")}))

	adm := gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionRejected, adm.Kind)
	assert.Equal(t, ErrCodeLedgerUnavailable, adm.Err.Code)
}

func TestAdmitBypass(t *testing.T) {
	t.Run("admitted in development mode without ledger query", func(t *testing.T) {
		ledger := &mockLedger{err: errors.New("must not be called")}
		auditor := &captureAuditor{}
		gate := NewGate(testRequirement(), NewVerifier(ledger),
			WithDevelopmentMode(true), WithAuditor(auditor))

		adm := gate.Admit(context.Background(), BypassToken)
		require.Equal(t, AdmissionAdmitted, adm.Kind)
		assert.Equal(t, StatusDevModeBypass, adm.Verdict.Status)
		assert.Equal(t, BypassToken, adm.Verdict.TxHash)
		assert.EqualValues(t, 0, ledger.calls.Load())

		events := auditor.all()
		require.Len(t, events, 1)
		assert.True(t, events[0].Bypass)
	})

	t.Run("case-insensitive match", func(t *testing.T) {
		gate := NewGate(testRequirement(), NewVerifier(&mockLedger{}), WithDevelopmentMode(true))

		adm := gate.Admit(context.Background(), "DEMO")
		require.Equal(t, AdmissionAdmitted, adm.Kind)
		assert.Equal(t, StatusDevModeBypass, adm.Verdict.Status)
	})

	t.Run("rejected outside development mode", func(t *testing.T) {
		ledger := &mockLedger{err: errors.New("must not be called")}
		gate := NewGate(testRequirement(), NewVerifier(ledger))

		adm := gate.Admit(context.Background(), BypassToken)
		require.Equal(t, AdmissionRejected, adm.Kind)
		assert.Equal(t, ErrCodeVerificationRejected, adm.Err.Code)
		assert.NotContains(t, adm.Err.Details, "status",
			"a terminal rejection must not carry a retryable-looking verdict status")
		assert.EqualValues(t, 0, ledger.calls.Load())
	})
}

// brokenCache fails every operation; the gate must degrade to
// re-verification rather than denial.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (Verdict, bool, error) {
	return Verdict{}, false, errors.New("cache down")
}

func (brokenCache) Put(context.Context, string, Verdict) error {
	return errors.New("cache down")
}

func TestAdmitSurvivesBrokenCache(t *testing.T) {
	ledger := &mockLedger{tx: successTx(testRecipient, testToken, "0.01")}
	gate := NewGate(testRequirement(), NewVerifier(ledger), WithCache(brokenCache{}))

	adm := gate.Admit(context.Background(), testHash)
	require.Equal(t, AdmissionAdmitted, adm.Kind)
	assert.Equal(t, StatusVerified, adm.Verdict.Status)
}
