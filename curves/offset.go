// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curves

import (
	"math/big"
)

// OffsetProgressiveCurve is the progressive curve reparametrized by a
// fixed supply offset: the marginal price at supply s is
// slope*(s+offset)/Scale, so the curve opens at a non-zero base price
// and the locked assets under supply s are
// slope*((s+offset)^2 - offset^2)/(2*Scale^2).
type OffsetProgressiveCurve struct {
	slope     *big.Int
	offset    *big.Int
	offsetSq  *big.Int
	maxShares *big.Int
	maxAssets *big.Int
}

// NewOffsetProgressiveCurve returns an offset progressive strategy. The
// slope must be positive and the offset non-negative; a zero offset
// degenerates to the plain progressive curve and is rejected.
func NewOffsetProgressiveCurve(slope, offset *big.Int) (*OffsetProgressiveCurve, error) {
	if slope == nil || slope.Sign() <= 0 {
		return nil, ErrInvalidCurveParams
	}
	if offset == nil || offset.Sign() <= 0 {
		return nil, ErrInvalidCurveParams
	}
	c := &OffsetProgressiveCurve{
		slope:    new(big.Int).Set(slope),
		offset:   new(big.Int).Set(offset),
		offsetSq: new(big.Int).Mul(offset, offset),
	}

	// slope*((s+o)^2 - o^2)/(2*Scale^2) <= MaxUint256 bounds the supply.
	bound := new(big.Int).Mul(MaxUint256, twoScaleSq)
	bound.Quo(bound, c.slope)
	bound.Add(bound, c.offsetSq)
	bound.Sqrt(bound)
	bound.Sub(bound, c.offset)
	if bound.Sign() < 0 {
		bound.SetInt64(0)
	}
	c.maxShares = bound
	if c.maxShares.Cmp(MaxUint256) > 0 {
		c.maxShares = new(big.Int).Set(MaxUint256)
	}
	c.maxAssets = c.assetsAtSupply(c.maxShares, false)
	return c, nil
}

func (c *OffsetProgressiveCurve) Name() string { return "offset-progressive" }

func (c *OffsetProgressiveCurve) areaExact(s *big.Int) *big.Int {
	z := new(big.Int).Add(s, c.offset)
	z.Mul(z, z)
	z.Sub(z, c.offsetSq)
	return z.Mul(z, c.slope)
}

func (c *OffsetProgressiveCurve) supplyAtArea(area *big.Int) *big.Int {
	z := new(big.Int).Quo(area, c.slope)
	z.Add(z, c.offsetSq)
	z.Sqrt(z)
	z.Sub(z, c.offset)
	if z.Sign() < 0 {
		z.SetInt64(0)
	}
	return z
}

func (c *OffsetProgressiveCurve) supplyAtAssets(assets *big.Int, roundUp bool) *big.Int {
	area := new(big.Int).Mul(assets, twoScaleSq)
	s := c.supplyAtArea(area)
	if roundUp && c.assetsAtSupply(s, true).Cmp(assets) < 0 {
		s.Add(s, big.NewInt(1))
	}
	return s
}

func (c *OffsetProgressiveCurve) assetsAtSupply(s *big.Int, roundUp bool) *big.Int {
	area := c.areaExact(s)
	if roundUp {
		return ceilDiv(area, twoScaleSq)
	}
	return area.Quo(area, twoScaleSq)
}

func (c *OffsetProgressiveCurve) PreviewDeposit(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(assets, totalAssets, totalShares, c.maxAssets, c.maxShares, false); err != nil {
		return nil, err
	}
	return convertDeposit(c, assets, totalAssets, totalShares), nil
}

func (c *OffsetProgressiveCurve) PreviewMint(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(shares, totalAssets, totalShares, c.maxAssets, c.maxShares, true); err != nil {
		return nil, err
	}
	return convertMint(c, shares, totalAssets, totalShares), nil
}

func (c *OffsetProgressiveCurve) PreviewRedeem(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertRedeem(c, shares, totalAssets, totalShares), nil
}

func (c *OffsetProgressiveCurve) PreviewWithdraw(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.maxShares) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertWithdraw(c, assets, totalAssets, totalShares)
}

// CurrentPrice is slope*(s+offset)/Scale: strictly increasing, non-zero
// already at zero supply.
func (c *OffsetProgressiveCurve) CurrentPrice(totalShares *big.Int) *big.Int {
	z := new(big.Int).Add(totalShares, c.offset)
	return mulDiv(c.slope, z, Scale)
}

func (c *OffsetProgressiveCurve) MaxShares() *big.Int {
	return new(big.Int).Set(c.maxShares)
}

func (c *OffsetProgressiveCurve) MaxAssets() *big.Int {
	return new(big.Int).Set(c.maxAssets)
}
