package protocol

import (
	"fmt"
	"math/big"
)

// Price is a monetary amount in the currency's smallest unit, transmitted as
// a base-10 integer string to avoid floating-point drift between parties.
// Token prices are denominated per one million tokens.
type Price struct {
	Pol string `json:"$pol"`
}

// Int parses the price into an arbitrary-precision integer. Signs,
// fractions, and non-decimal notation are rejected.
func (p Price) Int() (*big.Int, error) {
	if !isIntegerString(p.Pol, false) {
		return nil, fmt.Errorf("price %q is not a non-negative base-10 integer", p.Pol)
	}
	n, ok := new(big.Int).SetString(p.Pol, 10)
	if !ok {
		return nil, fmt.Errorf("price %q is not a non-negative base-10 integer", p.Pol)
	}
	return n, nil
}

// Offer is a provider's standing terms for one model, immutable for the
// duration of any exchange priced against it.
type Offer struct {
	ModelID          string `json:"model_id"`
	ContextSize      int    `json:"context_size"`
	InputTokenPrice  Price  `json:"input_token_price"`
	OutputTokenPrice Price  `json:"output_token_price"`
	Trial            *Price `json:"trial,omitempty"`
}

// Validate checks the offer's structural invariants, reporting every
// violation.
func (o Offer) Validate() error {
	var v Violations
	if o.ModelID == "" {
		v.Add("model_id", "required")
	}
	if o.ContextSize <= 0 {
		v.Add("context_size", "must be positive")
	}
	if _, err := o.InputTokenPrice.Int(); err != nil {
		v.Add("input_token_price.$pol", err.Error())
	}
	if _, err := o.OutputTokenPrice.Int(); err != nil {
		v.Add("output_token_price.$pol", err.Error())
	}
	if o.Trial != nil {
		if _, err := o.Trial.Int(); err != nil {
			v.Add("trial.$pol", err.Error())
		}
	}
	return v.OrNil()
}

// isIntegerString reports whether s is a base-10 integer with no fractional
// part, optionally allowing a leading minus sign.
func isIntegerString(s string, allowSign bool) bool {
	if allowSign && len(s) > 1 && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
