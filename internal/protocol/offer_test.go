package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceInt_AcceptsPlainIntegers(t *testing.T) {
	n, err := Price{Pol: "1500000000000"}.Int()
	require.NoError(t, err)
	require.Equal(t, "1500000000000", n.String())

	zero, err := Price{Pol: "0"}.Int()
	require.NoError(t, err)
	require.Equal(t, "0", zero.String())
}

func TestPriceInt_RejectsNonIntegers(t *testing.T) {
	for _, bad := range []string{"", "-1", "1.0", "1e3", "twelve", "10 "} {
		_, err := Price{Pol: bad}.Int()
		require.Error(t, err, "price %q", bad)
	}
}

func TestOfferValidate_ReportsEveryViolation(t *testing.T) {
	offer := Offer{
		ContextSize:      0,
		InputTokenPrice:  Price{Pol: "abc"},
		OutputTokenPrice: Price{Pol: "-5"},
	}

	err := offer.Validate()
	require.Error(t, err)

	var v Violations
	require.ErrorAs(t, err, &v)
	require.Len(t, v, 4)
}

func TestOfferValidate_TrialPriceChecked(t *testing.T) {
	offer := Offer{
		ModelID:          "m",
		ContextSize:      1024,
		InputTokenPrice:  Price{Pol: "1"},
		OutputTokenPrice: Price{Pol: "1"},
		Trial:            &Price{Pol: "nope"},
	}
	require.Error(t, offer.Validate())

	offer.Trial = &Price{Pol: "1000"}
	require.NoError(t, offer.Validate())
}
