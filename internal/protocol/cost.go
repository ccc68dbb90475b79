package protocol

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidOffer indicates a malformed price string in the offer.
var ErrInvalidOffer = errors.New("invalid offer")

// ErrInvalidUsage indicates a negative token count in the usage record.
var ErrInvalidUsage = errors.New("invalid usage")

// Token prices are quoted per one million tokens.
const tokensPerPriceUnit = 1_000_000

// CalcCost converts final usage into the exact charge in the currency's
// smallest unit, returned as a base-10 integer string.
//
// The formula is
//
//	floor(input_price * prompt_tokens / 1e6) + floor(output_price * completion_tokens / 1e6)
//
// with each term floored independently before summing. The two-floor order
// is load-bearing: floor(a/n)+floor(b/n) != floor((a+b)/n) in general, and
// both parties must agree on the result byte for byte. All arithmetic is
// arbitrary-precision integer; no float ever enters the computation.
func CalcCost(offer Offer, usage Usage) (string, error) {
	if usage.PromptTokens < 0 {
		return "", fmt.Errorf("%w: prompt_tokens %d is negative", ErrInvalidUsage, usage.PromptTokens)
	}
	if usage.CompletionTokens < 0 {
		return "", fmt.Errorf("%w: completion_tokens %d is negative", ErrInvalidUsage, usage.CompletionTokens)
	}

	inputPrice, err := offer.InputTokenPrice.Int()
	if err != nil {
		return "", fmt.Errorf("%w: input_token_price: %v", ErrInvalidOffer, err)
	}
	outputPrice, err := offer.OutputTokenPrice.Int()
	if err != nil {
		return "", fmt.Errorf("%w: output_token_price: %v", ErrInvalidOffer, err)
	}

	perUnit := big.NewInt(tokensPerPriceUnit)

	inputCost := new(big.Int).Mul(inputPrice, big.NewInt(int64(usage.PromptTokens)))
	inputCost.Quo(inputCost, perUnit)

	outputCost := new(big.Int).Mul(outputPrice, big.NewInt(int64(usage.CompletionTokens)))
	outputCost.Quo(outputCost, perUnit)

	return inputCost.Add(inputCost, outputCost).String(), nil
}
