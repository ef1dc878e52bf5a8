// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curves

import (
	"math/big"
)

// ArithmeticSeriesCurve prices shares in whole-share steps: the k-th
// whole share costs basePrice + (k-1)*increment, so k whole shares cost
// the arithmetic series k*basePrice + increment*k*(k-1)/2. Fractional
// shares inside the current step are pro-rated at that step's price,
// which makes the spot price a staircase rather than a line.
type ArithmeticSeriesCurve struct {
	basePrice *big.Int
	increment *big.Int
	maxShares *big.Int
	maxAssets *big.Int
}

// NewArithmeticSeriesCurve returns a stepped strategy. The base price
// must be positive; a zero increment yields a flat staircase priced at
// basePrice everywhere.
func NewArithmeticSeriesCurve(basePrice, increment *big.Int) (*ArithmeticSeriesCurve, error) {
	if basePrice == nil || basePrice.Sign() <= 0 {
		return nil, ErrInvalidCurveParams
	}
	if increment == nil || increment.Sign() < 0 {
		return nil, ErrInvalidCurveParams
	}
	c := &ArithmeticSeriesCurve{
		basePrice: new(big.Int).Set(basePrice),
		increment: new(big.Int).Set(increment),
	}
	c.maxShares = c.supplyAtArea(new(big.Int).Mul(MaxUint256, Scale))
	if c.maxShares.Cmp(MaxUint256) > 0 {
		c.maxShares = new(big.Int).Set(MaxUint256)
	}
	c.maxAssets = c.assetsAtSupply(c.maxShares, false)
	return c, nil
}

func (c *ArithmeticSeriesCurve) Name() string { return "arithmetic-series" }

// wholeStepCost returns the real asset cost of k whole shares:
// k*base + inc*k*(k-1)/2.
func (c *ArithmeticSeriesCurve) wholeStepCost(k *big.Int) *big.Int {
	cost := new(big.Int).Mul(k, c.basePrice)
	tri := new(big.Int).Sub(k, big.NewInt(1))
	tri.Mul(tri, k)
	tri.Quo(tri, big.NewInt(2))
	tri.Mul(tri, c.increment)
	return cost.Add(cost, tri)
}

// stepPrice returns the price of the (k+1)-th whole share.
func (c *ArithmeticSeriesCurve) stepPrice(k *big.Int) *big.Int {
	p := new(big.Int).Mul(k, c.increment)
	return p.Add(p, c.basePrice)
}

// areaExact works in units of real assets scaled by Scale, so the
// fractional-step term needs no division:
// Scale*wholeStepCost(k) + r*stepPrice(k) for s = k*Scale + r.
func (c *ArithmeticSeriesCurve) areaExact(s *big.Int) *big.Int {
	k, r := new(big.Int).QuoRem(s, Scale, new(big.Int))
	area := new(big.Int).Mul(Scale, c.wholeStepCost(k))
	frac := new(big.Int).Mul(r, c.stepPrice(k))
	return area.Add(area, frac)
}

func (c *ArithmeticSeriesCurve) supplyAtArea(area *big.Int) *big.Int {
	one := big.NewInt(1)
	var k *big.Int
	if c.increment.Sign() == 0 {
		// Flat staircase: area = Scale*k*base + r*base.
		k = new(big.Int).Quo(area, new(big.Int).Mul(Scale, c.basePrice))
	} else {
		// Solve Scale*inc*k^2 + Scale*(2*base-inc)*k - 2*area <= 0 for
		// the largest k, then correct the floor-sqrt estimate.
		b := new(big.Int).Mul(big.NewInt(2), c.basePrice)
		b.Sub(b, c.increment)
		b.Mul(b, Scale)
		disc := new(big.Int).Mul(b, b)
		tail := new(big.Int).Mul(big.NewInt(8), c.increment)
		tail.Mul(tail, Scale)
		tail.Mul(tail, area)
		disc.Add(disc, tail)
		disc.Sqrt(disc)
		k = new(big.Int).Sub(disc, b)
		k.Quo(k, new(big.Int).Mul(big.NewInt(2), new(big.Int).Mul(Scale, c.increment)))
	}
	if k.Sign() < 0 {
		k.SetInt64(0)
	}
	scaledCost := func(k *big.Int) *big.Int {
		return new(big.Int).Mul(Scale, c.wholeStepCost(k))
	}
	for scaledCost(k).Cmp(area) > 0 {
		k.Sub(k, one)
	}
	for scaledCost(new(big.Int).Add(k, one)).Cmp(area) <= 0 {
		k.Add(k, one)
	}
	rem := new(big.Int).Sub(area, scaledCost(k))
	r := rem.Quo(rem, c.stepPrice(k))
	if r.Cmp(Scale) >= 0 {
		r.Sub(Scale, one)
	}
	s := new(big.Int).Mul(k, Scale)
	return s.Add(s, r)
}

func (c *ArithmeticSeriesCurve) supplyAtAssets(assets *big.Int, roundUp bool) *big.Int {
	s := c.supplyAtArea(new(big.Int).Mul(assets, Scale))
	if roundUp && c.assetsAtSupply(s, true).Cmp(assets) < 0 {
		s.Add(s, big.NewInt(1))
	}
	return s
}

func (c *ArithmeticSeriesCurve) assetsAtSupply(s *big.Int, roundUp bool) *big.Int {
	area := c.areaExact(s)
	if roundUp {
		return ceilDiv(area, Scale)
	}
	return area.Quo(area, Scale)
}

func (c *ArithmeticSeriesCurve) PreviewDeposit(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(assets, totalAssets, totalShares, c.maxAssets, c.maxShares, false); err != nil {
		return nil, err
	}
	return convertDeposit(c, assets, totalAssets, totalShares), nil
}

func (c *ArithmeticSeriesCurve) PreviewMint(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(shares, totalAssets, totalShares, c.maxAssets, c.maxShares, true); err != nil {
		return nil, err
	}
	return convertMint(c, shares, totalAssets, totalShares), nil
}

func (c *ArithmeticSeriesCurve) PreviewRedeem(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertRedeem(c, shares, totalAssets, totalShares), nil
}

func (c *ArithmeticSeriesCurve) PreviewWithdraw(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertWithdraw(c, assets, totalAssets, totalShares)
}

// CurrentPrice is the staircase step price at the given supply.
func (c *ArithmeticSeriesCurve) CurrentPrice(totalShares *big.Int) *big.Int {
	k := new(big.Int).Quo(totalShares, Scale)
	return c.stepPrice(k)
}

func (c *ArithmeticSeriesCurve) MaxShares() *big.Int {
	return new(big.Int).Set(c.maxShares)
}

func (c *ArithmeticSeriesCurve) MaxAssets() *big.Int {
	return new(big.Int).Set(c.maxAssets)
}
