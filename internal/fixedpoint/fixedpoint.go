// Package fixedpoint implements the 7-decimal fixed-point arithmetic used for
// all monetary quantities: an integer v represents the real value v / 1e7.
// Division truncates toward zero and results must stay inside the signed
// 128-bit range.
package fixedpoint

import (
	"errors"
	"math/big"
)

// Scale is the fixed-point denominator. A quantity of one whole unit is
// represented as Scale.
const Scale = 10_000_000

// Premium is a flat 200 basis points of strike-weighted notional.
const (
	premiumBps = 200
	bpsDenom   = 10_000
)

// ErrOverflow is returned when a computation leaves the signed 128-bit range.
var ErrOverflow = errors.New("arithmetic overflow outside 128-bit range")

var (
	scaleBig  = big.NewInt(Scale)
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// CheckRange reports whether v fits the signed 128-bit range used for all
// stored quantities.
func CheckRange(v *big.Int) error {
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return ErrOverflow
	}
	return nil
}

// Normalize converts a scaled amount to whole units, flooring to at least 1.
// An amount smaller than one whole unit still counts as a full unit for
// premium and payoff purposes.
func Normalize(amount *big.Int) *big.Int {
	n := new(big.Int).Quo(amount, scaleBig)
	if n.Sign() == 0 {
		return big.NewInt(1)
	}
	return n
}

// Premium computes the upfront premium for an option:
// floor(strike * Normalize(amount) * 200 / 10000).
func Premium(strike, amount *big.Int) (*big.Int, error) {
	p := new(big.Int).Mul(strike, Normalize(amount))
	p.Mul(p, big.NewInt(premiumBps))
	if err := CheckRange(p); err != nil {
		return nil, err
	}
	p.Quo(p, big.NewInt(bpsDenom))
	return p, nil
}

// Collateral computes the collateral reserved against an option:
// floor(strike * amount / 1e7).
func Collateral(strike, amount *big.Int) (*big.Int, error) {
	c := new(big.Int).Mul(strike, amount)
	if err := CheckRange(c); err != nil {
		return nil, err
	}
	c.Quo(c, scaleBig)
	return c, nil
}

// Payoff computes the intrinsic value of an option at the given spot price:
// max(0, spot-strike) * Normalize(amount) for calls, max(0, strike-spot) *
// Normalize(amount) for puts. The caller caps the result at the option's
// locked collateral.
func Payoff(call bool, strike, spot, amount *big.Int) (*big.Int, error) {
	var intrinsic *big.Int
	if call {
		intrinsic = new(big.Int).Sub(spot, strike)
	} else {
		intrinsic = new(big.Int).Sub(strike, spot)
	}
	if intrinsic.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	p := intrinsic.Mul(intrinsic, Normalize(amount))
	if err := CheckRange(p); err != nil {
		return nil, err
	}
	return p, nil
}
