// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curves

import (
	"math/big"
)

// ProgressiveCurve prices shares on a monotonically increasing line:
// the marginal price at supply s is slope*s/Scale, so the assets locked
// under supply s are slope*s^2/(2*Scale^2). Early depositors mint more
// shares per asset than later ones, and the spot price grows without
// bound with the supply.
type ProgressiveCurve struct {
	slope     *big.Int
	maxShares *big.Int
	maxAssets *big.Int
}

// twoScaleSq is 2*Scale^2, the divisor between the curve-internal area
// unit (slope*s^2) and real assets.
var twoScaleSq = new(big.Int).Mul(big.NewInt(2), new(big.Int).Mul(Scale, Scale))

// NewProgressiveCurve returns a progressive strategy with the given
// slope, scaled by Scale. The slope must be positive.
func NewProgressiveCurve(slope *big.Int) (*ProgressiveCurve, error) {
	if slope == nil || slope.Sign() <= 0 {
		return nil, ErrInvalidCurveParams
	}
	c := &ProgressiveCurve{slope: new(big.Int).Set(slope)}

	// Largest supply whose locked assets still fit in 256 bits:
	// slope*s^2/(2*Scale^2) <= MaxUint256.
	bound := new(big.Int).Mul(MaxUint256, twoScaleSq)
	bound.Quo(bound, c.slope)
	c.maxShares = bound.Sqrt(bound)
	if c.maxShares.Cmp(MaxUint256) > 0 {
		c.maxShares = new(big.Int).Set(MaxUint256)
	}
	c.maxAssets = c.assetsAtSupply(c.maxShares, false)
	return c, nil
}

func (c *ProgressiveCurve) Name() string { return "progressive" }

func (c *ProgressiveCurve) areaExact(s *big.Int) *big.Int {
	z := new(big.Int).Mul(s, s)
	return z.Mul(z, c.slope)
}

func (c *ProgressiveCurve) supplyAtArea(area *big.Int) *big.Int {
	z := new(big.Int).Quo(area, c.slope)
	return z.Sqrt(z)
}

func (c *ProgressiveCurve) supplyAtAssets(assets *big.Int, roundUp bool) *big.Int {
	area := new(big.Int).Mul(assets, twoScaleSq)
	s := c.supplyAtArea(area)
	if roundUp && c.assetsAtSupply(s, true).Cmp(assets) < 0 {
		s.Add(s, big.NewInt(1))
	}
	return s
}

func (c *ProgressiveCurve) assetsAtSupply(s *big.Int, roundUp bool) *big.Int {
	area := c.areaExact(s)
	if roundUp {
		return ceilDiv(area, twoScaleSq)
	}
	return area.Quo(area, twoScaleSq)
}

func (c *ProgressiveCurve) PreviewDeposit(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(assets, totalAssets, totalShares, c.maxAssets, c.maxShares, false); err != nil {
		return nil, err
	}
	return convertDeposit(c, assets, totalAssets, totalShares), nil
}

func (c *ProgressiveCurve) PreviewMint(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(shares, totalAssets, totalShares, c.maxAssets, c.maxShares, true); err != nil {
		return nil, err
	}
	return convertMint(c, shares, totalAssets, totalShares), nil
}

func (c *ProgressiveCurve) PreviewRedeem(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertRedeem(c, shares, totalAssets, totalShares), nil
}

func (c *ProgressiveCurve) PreviewWithdraw(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertWithdraw(c, assets, totalAssets, totalShares)
}

// CurrentPrice is slope*s/Scale: strictly increasing in the supply.
func (c *ProgressiveCurve) CurrentPrice(totalShares *big.Int) *big.Int {
	return mulDiv(c.slope, totalShares, Scale)
}

func (c *ProgressiveCurve) MaxShares() *big.Int {
	return new(big.Int).Set(c.maxShares)
}

func (c *ProgressiveCurve) MaxAssets() *big.Int {
	return new(big.Int).Set(c.maxAssets)
}
