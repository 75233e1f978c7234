package chainpass

import "fmt"

// Error is a payment-gate error with a machine-readable code.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes. VerificationRejected is terminal for a given hash;
// VerificationPending and LedgerUnavailable are retryable.
const (
	ErrCodeVerificationRejected = "verification_rejected"
	ErrCodeVerificationPending  = "verification_pending"
	ErrCodeLedgerUnavailable    = "ledger_unavailable"
	ErrCodeBadRequest           = "bad_request"
)

// NewError creates a new gate error.
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}
