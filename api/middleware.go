package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/metrics"
)

// verdictKey is the request-context key the middleware stores the admission
// verdict under after a successful gate pass.
const verdictKey = "chainpass.verdict"

// requestIDKey holds the per-request UUID, echoed in error bodies and the
// X-Request-Id response header.
const requestIDKey = "chainpass.requestID"

// errorResponse is the wire shape of every non-2xx, non-challenge reply.
type errorResponse struct {
	Error     string `json:"error"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// VerdictFrom returns the admission verdict the payment middleware attached
// to the request, if the request passed the gate.
func VerdictFrom(c *gin.Context) (chainpass.Verdict, bool) {
	v, ok := c.Get(verdictKey)
	if !ok {
		return chainpass.Verdict{}, false
	}
	verdict, ok := v.(chainpass.Verdict)
	return verdict, ok
}

// RequestID middleware assigns a UUID to each request and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequirePayment gates a route behind the challenge/verify protocol.
// Requests without a proof header receive the 402 challenge body; rejected
// proofs receive a typed error at the status their code maps to; admitted
// requests proceed with the verdict attached to the context.
func RequirePayment(gate *chainpass.Gate, log *zap.Logger, rec metrics.Recorder) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		adm := gate.Admit(c.Request.Context(), c.GetHeader(chainpass.ProofHeader))
		rec.ObserveLatency("gate_admit", time.Since(start), gate.Requirement().Network.String())

		switch adm.Kind {
		case chainpass.AdmissionChallenge:
			// A challenge is a protocol step, not an error; the body is
			// the structured payment instructions.
			c.AbortWithStatusJSON(http.StatusPaymentRequired, adm.Challenge)

		case chainpass.AdmissionRejected:
			log.Info("payment rejected",
				zap.String("requestId", requestID(c)),
				zap.String("code", adm.Err.Code),
				zap.String("path", c.Request.URL.Path))
			abortWithError(c, adm.Err)

		case chainpass.AdmissionAdmitted:
			log.Debug("payment admitted",
				zap.String("requestId", requestID(c)),
				zap.String("txHash", adm.Verdict.TxHash),
				zap.String("status", string(adm.Verdict.Status)))
			c.Set(verdictKey, adm.Verdict)
			c.Next()
		}
	}
}

// abortWithError writes a typed gate error at its mapped HTTP status.
func abortWithError(c *gin.Context, err *chainpass.Error) {
	body := errorResponse{
		Error:     err.Code,
		Message:   err.Message,
		RequestID: requestID(c),
	}
	if s, ok := err.Details["status"].(string); ok {
		body.Status = s
	}
	c.AbortWithStatusJSON(httpStatus(err.Code), body)
}

// httpStatus maps error codes to HTTP statuses. Rejected and pending proofs
// stay on 402 so clients keep the payment-required framing; pending is
// retryable and clients should back off and retry the same hash.
func httpStatus(code string) int {
	switch code {
	case chainpass.ErrCodeVerificationRejected, chainpass.ErrCodeVerificationPending:
		return http.StatusPaymentRequired
	case chainpass.ErrCodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case chainpass.ErrCodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
