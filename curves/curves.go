// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package curves implements the pluggable bonding-curve strategies that
// price share/asset conversions for multivault term vaults, plus the
// append-only registry that maps stable curve ids to strategy instances.
//
// All curve math is pure fixed-point arithmetic at 18 decimals over
// math/big integers. A curve never holds mutable state beyond its
// construction-time parameters, so every historical vault remains
// reproducible from (curveId, totalAssets, totalShares) alone.
package curves

import (
	"errors"
	"math/big"
)

// Decimals is the fixed-point precision shared by every curve.
const Decimals = 18

// Scale is 10^Decimals, the value of one whole share and the unit in
// which spot prices are quoted.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// MaxUint256 is the absolute ceiling for any asset or share quantity.
// Amounts cross the StateDB boundary as 256-bit words, so no curve may
// produce a value above it.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var (
	ErrUnknownCurve           = errors.New("unknown curve id")
	ErrCurveAlreadyRegistered = errors.New("curve already registered")
	ErrNilCurve               = errors.New("curve is nil")
	ErrInvalidCurveParams     = errors.New("invalid curve parameters")
	ErrExceedsMaxAssets       = errors.New("amount exceeds curve max assets")
	ErrExceedsMaxShares       = errors.New("amount exceeds curve max shares")
	ErrSupplyUnderflow        = errors.New("share supply underflow")
)

// BondingCurve is the pricing strategy contract shared by every curve.
//
// All previews take the vault's current totals and are monotonically
// non-decreasing in their amount argument. The one invariant every
// implementation must satisfy exactly: redeeming all outstanding shares
// returns totalAssets to the last wei, leaving neither residue nor
// shortfall behind.
type BondingCurve interface {
	// Name identifies the strategy. Registration rejects duplicates by
	// name, so names double as stable strategy identities.
	Name() string

	// PreviewDeposit returns the shares minted for depositing assets
	// into a vault holding (totalAssets, totalShares). Rounds down.
	PreviewDeposit(assets, totalAssets, totalShares *big.Int) (*big.Int, error)

	// PreviewMint returns the assets required to mint an exact share
	// count. Rounds up; this is the ask side and is never cheaper than
	// the inverse of PreviewDeposit.
	PreviewMint(shares, totalAssets, totalShares *big.Int) (*big.Int, error)

	// PreviewRedeem returns the assets released for burning shares.
	// Rounds down, except that burning the entire supply returns
	// totalAssets exactly.
	PreviewRedeem(shares, totalAssets, totalShares *big.Int) (*big.Int, error)

	// PreviewWithdraw returns the shares burned to extract an exact
	// asset amount. Rounds up.
	PreviewWithdraw(assets, totalAssets, totalShares *big.Int) (*big.Int, error)

	// CurrentPrice returns the marginal share price at the given supply,
	// scaled by Scale.
	CurrentPrice(totalShares *big.Int) *big.Int

	// MaxShares returns the largest share supply this curve can price
	// without overflowing 256-bit intermediates.
	MaxShares() *big.Int

	// MaxAssets returns the largest asset total this curve can price.
	MaxAssets() *big.Int
}

// shape is the per-curve primitive the generic conversion machinery is
// built on. areaExact is the curve's locked-asset integral expressed in
// curve-internal units chosen so it involves multiplications only; the
// floor divisions all happen in one place, in the conversions below.
type shape interface {
	// areaExact returns F(s) in internal units. Strictly increasing,
	// zero only at s == 0.
	areaExact(s *big.Int) *big.Int

	// supplyAtArea inverts areaExact, rounding the supply down.
	supplyAtArea(area *big.Int) *big.Int

	// supplyAtAssets converts real assets to supply for the empty-vault
	// case, rounding down (or up when roundUp is set).
	supplyAtAssets(assets *big.Int, roundUp bool) *big.Int

	// assetsAtSupply converts supply to real assets for the empty-vault
	// case, rounding down (or up when roundUp is set).
	assetsAtSupply(s *big.Int, roundUp bool) *big.Int
}

// mulDiv returns floor(a * b / d).
func mulDiv(a, b, d *big.Int) *big.Int {
	z := new(big.Int).Mul(a, b)
	return z.Quo(z, d)
}

// mulDivUp returns ceil(a * b / d).
func mulDivUp(a, b, d *big.Int) *big.Int {
	z := new(big.Int).Mul(a, b)
	z.Add(z, new(big.Int).Sub(d, big.NewInt(1)))
	return z.Quo(z, d)
}

// ceilDiv returns ceil(a / d).
func ceilDiv(a, d *big.Int) *big.Int {
	z := new(big.Int).Add(a, new(big.Int).Sub(d, big.NewInt(1)))
	return z.Quo(z, d)
}

// convertDeposit is the shared deposit conversion. With a live supply the
// deposit buys the asset-weighted area slice floor(assets*F(S)/A), so
// value retained in the vault (entry fees, rounding dust) appreciates
// every outstanding share uniformly. An empty vault prices directly off
// the shape.
func convertDeposit(sh shape, assets, totalAssets, totalShares *big.Int) *big.Int {
	if assets.Sign() == 0 {
		return new(big.Int)
	}
	if totalShares.Sign() == 0 {
		return sh.supplyAtAssets(assets, false)
	}
	fs := sh.areaExact(totalShares)
	delta := mulDiv(assets, fs, totalAssets)
	after := sh.supplyAtArea(new(big.Int).Add(fs, delta))
	if after.Cmp(totalShares) <= 0 {
		return new(big.Int)
	}
	return after.Sub(after, totalShares)
}

// convertMint is the shared ask-side conversion: the exact-share cost,
// rounded against the minter.
func convertMint(sh shape, shares, totalAssets, totalShares *big.Int) *big.Int {
	if shares.Sign() == 0 {
		return new(big.Int)
	}
	if totalShares.Sign() == 0 {
		return sh.assetsAtSupply(shares, true)
	}
	fs := sh.areaExact(totalShares)
	delta := new(big.Int).Sub(sh.areaExact(new(big.Int).Add(totalShares, shares)), fs)
	return mulDivUp(delta, totalAssets, fs)
}

// convertRedeem is the shared redeem conversion. Burning the full supply
// short-circuits to totalAssets so full redemption is exact for every
// curve regardless of accumulated rounding.
func convertRedeem(sh shape, shares, totalAssets, totalShares *big.Int) *big.Int {
	if shares.Sign() == 0 || totalShares.Sign() == 0 {
		return new(big.Int)
	}
	if shares.Cmp(totalShares) >= 0 {
		return new(big.Int).Set(totalAssets)
	}
	fs := sh.areaExact(totalShares)
	remaining := sh.areaExact(new(big.Int).Sub(totalShares, shares))
	delta := new(big.Int).Sub(fs, remaining)
	return mulDiv(delta, totalAssets, fs)
}

// convertWithdraw is the shared exact-asset conversion, rounded against
// the withdrawer: the burned share count is always sufficient to cover
// the requested assets under convertRedeem.
func convertWithdraw(sh shape, assets, totalAssets, totalShares *big.Int) (*big.Int, error) {
	if assets.Sign() == 0 {
		return new(big.Int), nil
	}
	if assets.Cmp(totalAssets) > 0 {
		return nil, ErrSupplyUnderflow
	}
	if assets.Cmp(totalAssets) == 0 {
		return new(big.Int).Set(totalShares), nil
	}
	fs := sh.areaExact(totalShares)
	delta := mulDivUp(assets, fs, totalAssets)
	if delta.Cmp(fs) >= 0 {
		return new(big.Int).Set(totalShares), nil
	}
	remaining := sh.supplyAtArea(new(big.Int).Sub(fs, delta))
	return new(big.Int).Sub(totalShares, remaining), nil
}

// checkDomain validates preview inputs against the curve ceilings.
func checkDomain(amount, totalAssets, totalShares, maxAssets, maxShares *big.Int, amountIsShares bool) error {
	if totalShares.Cmp(maxShares) > 0 {
		return ErrExceedsMaxShares
	}
	if totalAssets.Cmp(maxAssets) > 0 {
		return ErrExceedsMaxAssets
	}
	if amountIsShares {
		if new(big.Int).Add(amount, totalShares).Cmp(maxShares) > 0 {
			return ErrExceedsMaxShares
		}
		return nil
	}
	if new(big.Int).Add(amount, totalAssets).Cmp(maxAssets) > 0 {
		return ErrExceedsMaxAssets
	}
	return nil
}
