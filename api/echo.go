package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
)

// EchoVerdictFrom returns the verdict attached by the echo payment
// middleware.
func EchoVerdictFrom(c echo.Context) (chainpass.Verdict, bool) {
	verdict, ok := c.Get(verdictKey).(chainpass.Verdict)
	return verdict, ok
}

// EchoRequirePayment is the echo counterpart of RequirePayment, for
// applications built on echo instead of gin. Behavior is identical: empty
// proof gets the 402 challenge, rejected proofs get the typed error at the
// mapped status, admitted requests proceed with the verdict in the context.
//
// As with the gin router, mount request validation ahead of this middleware:
// a request that fails validation must be rejected before its proof spends a
// ledger query.
func EchoRequirePayment(gate *chainpass.Gate, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			adm := gate.Admit(c.Request().Context(), c.Request().Header.Get(chainpass.ProofHeader))

			switch adm.Kind {
			case chainpass.AdmissionChallenge:
				return c.JSON(http.StatusPaymentRequired, adm.Challenge)

			case chainpass.AdmissionRejected:
				log.Info("payment rejected",
					zap.String("code", adm.Err.Code),
					zap.String("path", c.Request().URL.Path))
				body := errorResponse{Error: adm.Err.Code, Message: adm.Err.Message}
				if s, ok := adm.Err.Details["status"].(string); ok {
					body.Status = s
				}
				return c.JSON(httpStatus(adm.Err.Code), body)

			default:
				c.Set(verdictKey, adm.Verdict)
				return next(c)
			}
		}
	}
}
