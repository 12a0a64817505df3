package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// bigInt creates a big.Int from a string for test convenience
func bigInt(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		want   string
	}{
		{"one unit", "10000000", "1"},
		{"two and a half units floors", "25000000", "2"},
		{"sub-unit floors to one", "5000000", "1"},
		{"single stroop floors to one", "1", "1"},
		{"large", "250000000000", "25000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(bigInt(tc.amount))
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestPremium(t *testing.T) {
	// 2% of a $2100 strike for a one-unit option.
	strike := bigInt("21000000000")
	amount := bigInt("10000000")

	premium, err := Premium(strike, amount)
	require.NoError(t, err)
	require.Equal(t, "420000000", premium.String())

	// A half-unit option is charged as a full unit.
	half, err := Premium(strike, bigInt("5000000"))
	require.NoError(t, err)
	require.Equal(t, premium.String(), half.String())

	// Ten units scale the premium linearly.
	ten, err := Premium(strike, bigInt("100000000"))
	require.NoError(t, err)
	require.Equal(t, "4200000000", ten.String())
}

func TestCollateral(t *testing.T) {
	strike := bigInt("21000000000")

	c, err := Collateral(strike, bigInt("10000000"))
	require.NoError(t, err)
	require.Equal(t, strike.String(), c.String())

	// Half a unit reserves half the strike, no flooring quirk here.
	c, err = Collateral(strike, bigInt("5000000"))
	require.NoError(t, err)
	require.Equal(t, "10500000000", c.String())
}

func TestPayoff(t *testing.T) {
	strike := bigInt("21000000000")
	amount := bigInt("10000000")

	// Call in the money.
	p, err := Payoff(true, strike, bigInt("22000000000"), amount)
	require.NoError(t, err)
	require.Equal(t, "1000000000", p.String())

	// Call out of the money.
	p, err = Payoff(true, strike, bigInt("20000000000"), amount)
	require.NoError(t, err)
	require.Zero(t, p.Sign())

	// At the money pays nothing.
	p, err = Payoff(true, strike, strike, amount)
	require.NoError(t, err)
	require.Zero(t, p.Sign())

	// Put in the money.
	p, err = Payoff(false, strike, bigInt("19000000000"), amount)
	require.NoError(t, err)
	require.Equal(t, "2000000000", p.String())

	// Put out of the money.
	p, err = Payoff(false, strike, bigInt("22000000000"), amount)
	require.NoError(t, err)
	require.Zero(t, p.Sign())
}

func TestOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 120)

	_, err := Premium(huge, new(big.Int).Mul(huge, big.NewInt(Scale)))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Collateral(huge, huge)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Payoff(true, big.NewInt(1), huge, new(big.Int).Mul(huge, big.NewInt(Scale)))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckRange(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	require.NoError(t, CheckRange(max))
	require.ErrorIs(t, CheckRange(new(big.Int).Add(max, big.NewInt(1))), ErrOverflow)

	min := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	require.NoError(t, CheckRange(min))
	require.ErrorIs(t, CheckRange(new(big.Int).Sub(min, big.NewInt(1))), ErrOverflow)
}
