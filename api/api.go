// Package api exposes the payment-gated HTTP surface: a gin router with the
// payment middleware on the transfers route, a free informational route, and
// health/metrics endpoints. An echo middleware adapter lives in echo.go for
// applications already built on echo.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
	"github.com/chainpass/chainpass/ledger"
	"github.com/chainpass/chainpass/metrics"
	"github.com/chainpass/chainpass/query"
)

// Server wires the gate and query executor into HTTP handlers.
type Server struct {
	gate           *chainpass.Gate
	executor       *query.Executor
	log            *zap.Logger
	rec            metrics.Recorder
	metricsHandler http.Handler
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Server) { s.rec = rec }
}

// WithMetricsHandler mounts h at GET /metrics (typically promhttp over the
// registry the Prometheus recorder was built on).
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// NewServer creates the HTTP server around a gate and executor.
func NewServer(gate *chainpass.Gate, executor *query.Executor, opts ...Option) *Server {
	s := &Server{
		gate:     gate,
		executor: executor,
		log:      zap.NewNop(),
		rec:      metrics.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID())

	r.GET("/healthz", s.handleHealth)
	if s.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	// Parameter validation runs before the gate: a request that would be
	// rejected as malformed must not spend a ledger query on its proof.
	v1 := r.Group("/v1")
	v1.GET("/transfers/info", s.handleInfo)
	v1.GET("/transfers",
		s.validateTransferParams,
		RequirePayment(s.gate, s.log, s.rec),
		s.handleTransfers,
	)

	return r
}

// paramsKey holds the normalized query parameters attached by
// validateTransferParams.
const paramsKey = "chainpass.queryParams"

// validateTransferParams binds and normalizes the query parameters, aborting
// with 400 before the payment gate ever sees the request.
func (s *Server) validateTransferParams(c *gin.Context) {
	var params query.Params
	if err := c.ShouldBindQuery(&params); err != nil {
		abortWithError(c, chainpass.NewError(chainpass.ErrCodeBadRequest,
			"malformed query parameters: "+err.Error(), nil))
		return
	}

	normalized, gateErr := params.Normalize()
	if gateErr != nil {
		abortWithError(c, gateErr)
		return
	}

	c.Set(paramsKey, normalized)
	c.Next()
}

// paymentReceipt echoes the admitted proof back to the client.
type paymentReceipt struct {
	Hash      string    `json:"hash"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type paginationInfo struct {
	HasMore bool   `json:"hasMore"`
	PageKey string `json:"pageKey,omitempty"`
	Count   int    `json:"count"`
}

type transfersResponse struct {
	Success    bool                   `json:"success"`
	Data       []ledger.AssetTransfer `json:"data"`
	Payment    paymentReceipt         `json:"payment"`
	Pagination paginationInfo         `json:"pagination"`
}

func (s *Server) handleTransfers(c *gin.Context) {
	verdict, ok := VerdictFrom(c)
	if !ok {
		// Route mounted without the payment middleware.
		abortWithError(c, chainpass.NewError(chainpass.ErrCodeVerificationRejected,
			"no payment admission on request", nil))
		return
	}

	normalized, ok := c.Get(paramsKey)
	if !ok {
		abortWithError(c, chainpass.NewError(chainpass.ErrCodeBadRequest,
			"no validated query parameters on request", nil))
		return
	}
	params, ok := normalized.(query.Params)
	if !ok {
		abortWithError(c, chainpass.NewError(chainpass.ErrCodeBadRequest,
			"no validated query parameters on request", nil))
		return
	}

	start := time.Now()
	page, err := s.executor.Execute(c.Request.Context(), params)
	s.rec.ObserveLatency("transfer_query", time.Since(start), s.gate.Requirement().Network.String())
	if err != nil {
		if gerr, ok := err.(*chainpass.Error); ok {
			abortWithError(c, gerr)
			return
		}
		abortWithError(c, chainpass.NewError(chainpass.ErrCodeLedgerUnavailable, err.Error(), nil))
		return
	}

	transfers := page.Transfers
	if transfers == nil {
		transfers = []ledger.AssetTransfer{}
	}

	c.JSON(http.StatusOK, transfersResponse{
		Success: true,
		Data:    transfers,
		Payment: paymentReceipt{
			Hash:      verdict.TxHash,
			Amount:    verdict.Amount.String(),
			Timestamp: verdict.Timestamp,
		},
		Pagination: paginationInfo{
			HasMore: page.HasMore,
			PageKey: page.PageKey,
			Count:   len(transfers),
		},
	})
}

// handleInfo describes the payment requirement and accepted query parameters
// without requiring payment.
func (s *Server) handleInfo(c *gin.Context) {
	req := s.gate.Requirement()
	c.JSON(http.StatusOK, gin.H{
		"endpoint":         "/v1/transfers",
		"proofHeader":      chainpass.ProofHeader,
		"amount":           req.MinAmount.String(),
		"network":          req.Network,
		"recipientAddress": req.Recipient.Hex(),
		"tokenContract":    req.TokenContract.Hex(),
		"acceptedParams":   query.AcceptedParams(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
