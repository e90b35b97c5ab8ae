// Package splitter implements exact fixed-point percentage splits. Shares are
// computed with floor division and the final bucket absorbs the rounding
// remainder, so the shares always sum to the input amount.
package splitter

import (
	"errors"
	"math/big"
)

// Denominator is the basis-point denominator every weight set must sum to.
const Denominator = 10_000

var (
	ErrNilAmount      = errors.New("splitter: amount must be set")
	ErrNegativeAmount = errors.New("splitter: amount must be non-negative")
	ErrNoWeights      = errors.New("splitter: at least one weight required")
	ErrWeightSum      = errors.New("splitter: weights must sum to the denominator")
)

// Split divides amount across the supplied basis-point weights. Every share
// except the last is floor(amount*weight/Denominator); the last share is the
// remainder, guaranteeing sum(shares) == amount for any amount >= 0.
func Split(amount *big.Int, weights []uint32) ([]*big.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}
	var sum uint64
	for _, w := range weights {
		sum += uint64(w)
	}
	if sum != Denominator {
		return nil, ErrWeightSum
	}
	shares := make([]*big.Int, len(weights))
	allocated := big.NewInt(0)
	den := big.NewInt(Denominator)
	for i, w := range weights[:len(weights)-1] {
		share := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(w)))
		share.Div(share, den)
		shares[i] = share
		allocated.Add(allocated, share)
	}
	shares[len(weights)-1] = new(big.Int).Sub(amount, allocated)
	return shares, nil
}

// Portion returns floor(amount*bps/denominator) for an independent percentage
// that is not part of an exhaustive split, e.g. a fee or cashback rate.
func Portion(amount *big.Int, numerator, denominator uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || numerator == 0 || denominator == 0 {
		return big.NewInt(0)
	}
	portion := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(numerator)))
	return portion.Div(portion, new(big.Int).SetUint64(uint64(denominator)))
}
