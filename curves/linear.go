// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curves

import (
	"math/big"
)

// LinearCurve prices shares pro-rata against the vault totals: one asset
// buys one share at genesis, and afterwards the exchange rate is exactly
// totalAssets/totalShares. The spot price quoted by the shape itself is
// constant; value retained in the vault appreciates shares through the
// pro-rata conversion, not through the curve.
type LinearCurve struct{}

// NewLinearCurve returns the flat-price strategy.
func NewLinearCurve() *LinearCurve {
	return &LinearCurve{}
}

func (c *LinearCurve) Name() string { return "linear" }

func (c *LinearCurve) areaExact(s *big.Int) *big.Int {
	return new(big.Int).Set(s)
}

func (c *LinearCurve) supplyAtArea(area *big.Int) *big.Int {
	return new(big.Int).Set(area)
}

func (c *LinearCurve) supplyAtAssets(assets *big.Int, _ bool) *big.Int {
	return new(big.Int).Set(assets)
}

func (c *LinearCurve) assetsAtSupply(s *big.Int, _ bool) *big.Int {
	return new(big.Int).Set(s)
}

func (c *LinearCurve) PreviewDeposit(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(assets, totalAssets, totalShares, c.MaxAssets(), c.MaxShares(), false); err != nil {
		return nil, err
	}
	return convertDeposit(c, assets, totalAssets, totalShares), nil
}

func (c *LinearCurve) PreviewMint(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if err := checkDomain(shares, totalAssets, totalShares, c.MaxAssets(), c.MaxShares(), true); err != nil {
		return nil, err
	}
	return convertMint(c, shares, totalAssets, totalShares), nil
}

func (c *LinearCurve) PreviewRedeem(shares, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.MaxShares()) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertRedeem(c, shares, totalAssets, totalShares), nil
}

func (c *LinearCurve) PreviewWithdraw(assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if totalShares.Cmp(c.MaxShares()) > 0 {
		return nil, ErrExceedsMaxShares
	}
	return convertWithdraw(c, assets, totalAssets, totalShares)
}

// CurrentPrice is constant for the flat curve: one whole asset per whole
// share, at every supply.
func (c *LinearCurve) CurrentPrice(_ *big.Int) *big.Int {
	return new(big.Int).Set(Scale)
}

func (c *LinearCurve) MaxShares() *big.Int {
	return new(big.Int).Set(MaxUint256)
}

func (c *LinearCurve) MaxAssets() *big.Int {
	return new(big.Int).Set(MaxUint256)
}
