// Package client implements the paying side of the protocol: issue the
// request, read the 402 challenge, obtain a payment proof, and retry with
// the proof header. Challenge payloads are validated structurally before any
// field is trusted.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/chainpass/chainpass"
)

// challengeSchema is the structural contract of a 402 challenge body.
// Payloads that do not match are treated as a server fault, not paid.
const challengeSchema = `{
  "type": "object",
  "required": ["amount", "network", "recipientAddress"],
  "properties": {
    "amount": {"type": "string", "minLength": 1},
    "network": {"type": "string", "minLength": 1},
    "recipientAddress": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
    "instructions": {"type": "string"}
  }
}`

var compiledChallengeSchema = gojsonschema.NewStringLoader(challengeSchema)

// ProofFunc produces a payment proof for a challenge. Implementations may
// pay on chain and return the transaction hash, return a pre-paid hash, or
// return the bypass token against a development server.
type ProofFunc func(ctx context.Context, ch chainpass.Challenge) (string, error)

// StaticProof returns the same proof value for every challenge.
func StaticProof(proof string) ProofFunc {
	return func(context.Context, chainpass.Challenge) (string, error) {
		return proof, nil
	}
}

// RejectionError is a server-side refusal of a presented proof, decoded
// from the typed error body.
type RejectionError struct {
	Code       string `json:"error"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether retrying the same proof later may succeed.
func (e *RejectionError) Retryable() bool {
	return e.Code == chainpass.ErrCodeVerificationPending ||
		e.Code == chainpass.ErrCodeLedgerUnavailable
}

// Client performs the challenge/retry handshake over a plain http.Client.
type Client struct {
	http  *http.Client
	proof ProofFunc
	log   *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a handshake client that obtains proofs from proof.
func New(proof ProofFunc, opts ...Option) *Client {
	c := &Client{
		http:  http.DefaultClient,
		proof: proof,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get runs the full handshake against url: request, challenge, pay, retry.
// A first response that is not a 402 is returned as-is. A rejection of the
// proof is returned as *RejectionError.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read challenge: %w", err)
	}

	challenge, err := ParseChallenge(body)
	if err != nil {
		return nil, err
	}

	proof, err := c.proof(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("obtain proof: %w", err)
	}

	c.log.Debug("retrying with payment proof",
		zap.String("amount", challenge.Amount),
		zap.String("network", string(challenge.Network)))

	retry, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	retry.Header.Set(chainpass.ProofHeader, proof)

	resp, err = c.http.Do(retry)
	if err != nil {
		return nil, err
	}

	// A second 402 (or a 400/503 with the typed body) means the proof was
	// refused; surface the typed rejection.
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeRejection(resp)
	}
	return resp, nil
}

// ParseChallenge validates a 402 body against the challenge schema and
// decodes it. Schema violations fail before any field is read.
func ParseChallenge(body []byte) (chainpass.Challenge, error) {
	result, err := gojsonschema.Validate(compiledChallengeSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return chainpass.Challenge{}, fmt.Errorf("validate challenge: %w", err)
	}
	if !result.Valid() {
		return chainpass.Challenge{}, fmt.Errorf("malformed challenge: %v", result.Errors())
	}

	var ch chainpass.Challenge
	if err := json.Unmarshal(body, &ch); err != nil {
		return chainpass.Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return ch, nil
}

func decodeRejection(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rejection body: %w", err)
	}

	rej := &RejectionError{HTTPStatus: resp.StatusCode}
	if err := json.Unmarshal(body, rej); err != nil || rej.Code == "" {
		return fmt.Errorf("proof refused with status %d: %s", resp.StatusCode, body)
	}
	return rej
}
