// Package query validates transfer-history requests and executes them
// against the ledger provider once the gate has admitted them.
package query

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chainpass/chainpass"
)

const (
	// DefaultMaxCount is the page size used when the client asks for
	// none (or a non-positive count).
	DefaultMaxCount = 10
	// MaxMaxCount is the provider's page-size ceiling; larger requests
	// are clamped, not rejected.
	MaxMaxCount = 1000
)

var defaultCategories = []string{"external", "erc20"}

var validate = validator.New()

// Params are the raw transfer-history filters as bound from the request.
// Call Normalize before use; none of the clamping or defaulting has
// happened yet on a freshly bound value.
type Params struct {
	Address     string `form:"address" validate:"omitempty,eth_addr"`
	FromAddress string `form:"fromAddress" validate:"omitempty,eth_addr"`
	ToAddress   string `form:"toAddress" validate:"omitempty,eth_addr"`
	Category    string `form:"category"`
	FromBlock   string `form:"fromBlock"`
	ToBlock     string `form:"toBlock"`
	MaxCount    int    `form:"maxCount"`
	Order       string `form:"order" validate:"omitempty,oneof=asc desc"`
	PageKey     string `form:"pageKey"`
}

// Normalize validates and fills in defaults, returning the effective
// parameters. Violations come back as a bad_request gate error so they are
// rejected before any provider call is made.
func (p Params) Normalize() (Params, *chainpass.Error) {
	if p.Address == "" && p.FromAddress == "" && p.ToAddress == "" {
		return Params{}, chainpass.NewError(chainpass.ErrCodeBadRequest,
			"at least one of address, fromAddress, toAddress is required", nil)
	}

	if err := validate.Struct(p); err != nil {
		return Params{}, chainpass.NewError(chainpass.ErrCodeBadRequest,
			"invalid query parameters: "+err.Error(), nil)
	}

	if p.MaxCount <= 0 {
		p.MaxCount = DefaultMaxCount
	}
	if p.MaxCount > MaxMaxCount {
		p.MaxCount = MaxMaxCount
	}
	if p.Order == "" {
		p.Order = "desc"
	}
	if p.Category == "" {
		p.Category = strings.Join(defaultCategories, ",")
	}

	return p, nil
}

// Categories splits the category filter into the provider's list form.
func (p Params) Categories() []string {
	if p.Category == "" {
		return defaultCategories
	}
	parts := strings.Split(p.Category, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AcceptedParams names the query parameters the transfers route accepts,
// for the informational route.
func AcceptedParams() []string {
	return []string{
		"address", "fromAddress", "toAddress", "category",
		"fromBlock", "toBlock", "maxCount", "order", "pageKey",
	}
}
