// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/multivault/curves"
)

// maxFeeDivisor caps every fee stage at 10% of the fee denominator.
const maxFeeDivisor = 10

// GeneralConfig carries the engine-wide parameters.
type GeneralConfig struct {
	// Admin may change configuration; admin identity changes themselves
	// go through the timelock.
	Admin common.Address `json:"admin"`

	// Treasury receives protocol fees. It must accept arbitrary value
	// pushes without failing.
	Treasury common.Address `json:"treasury"`

	// FeeDenominator is the basis of every fee percentage.
	FeeDenominator uint64 `json:"feeDenominator"`

	// MinDeposit is the genesis floor: the first deposit into a fresh
	// vault must carry at least this much.
	MinDeposit *big.Int `json:"minDeposit"`

	// MinShare is the phantom share supply seeded to the burn address
	// at vault genesis. No redemption may take a vault below it.
	MinShare *big.Int `json:"minShare"`

	// AtomDataMaxLength caps atom payload sizes.
	AtomDataMaxLength int `json:"atomDataMaxLength"`

	// DecimalPrecision is the fixed-point scale shared with the curve
	// strategies. Must equal curves.Scale.
	DecimalPrecision *big.Int `json:"decimalPrecision"`

	// MinDelay is the timelock delay in seconds for the gated subset of
	// configuration changes.
	MinDelay int64 `json:"minDelay"`
}

// AtomConfig carries atom creation parameters.
type AtomConfig struct {
	// AtomCreationProtocolFee is the static fee sent to the treasury on
	// every atom creation.
	AtomCreationProtocolFee *big.Int `json:"atomCreationProtocolFee"`

	// AtomWalletInitialDepositAmount is staked into the new atom's vault
	// on behalf of its wallet at creation.
	AtomWalletInitialDepositAmount *big.Int `json:"atomWalletInitialDepositAmount"`
}

// TripleConfig carries triple creation parameters.
type TripleConfig struct {
	// TripleCreationProtocolFee is the static fee sent to the treasury
	// on every triple creation.
	TripleCreationProtocolFee *big.Int `json:"tripleCreationProtocolFee"`

	// TotalAtomDepositsOnTripleCreation is the static amount routed in
	// equal thirds into the constituent atom vaults at creation.
	TotalAtomDepositsOnTripleCreation *big.Int `json:"totalAtomDepositsOnTripleCreation"`

	// AtomDepositFractionForTriple is the portion (in basis of the fee
	// denominator) of every triple deposit redirected into the three
	// constituent atom vaults.
	AtomDepositFractionForTriple uint64 `json:"atomDepositFractionForTriple"`
}

// WalletConfig carries the atom wallet parameters consumed by the
// external wallet factory.
type WalletConfig struct {
	// AtomWarden is the initial owner of every deployed atom wallet and
	// salts the deterministic wallet address derivation.
	AtomWarden common.Address `json:"atomWarden"`
}

// BondingCurveConfig binds the engine to a curve registry.
type BondingCurveConfig struct {
	// Registry resolves curve ids. Shared with other engine instances.
	Registry *curves.Registry `json:"-"`

	// DefaultCurveID prices creation-time deposits and the atom legs of
	// triple fan-out.
	DefaultCurveID uint64 `json:"defaultCurveId"`
}

// VaultFees is one fee schedule: entry on deposit, exit on redemption,
// protocol on both. Values are numerators over GeneralConfig.FeeDenominator.
type VaultFees struct {
	EntryFee    uint64 `json:"entryFee"`
	ExitFee     uint64 `json:"exitFee"`
	ProtocolFee uint64 `json:"protocolFee"`
}

// Config is the immutable-at-call construction parameter set.
type Config struct {
	General      GeneralConfig      `json:"general"`
	Atom         AtomConfig         `json:"atom"`
	Triple       TripleConfig       `json:"triple"`
	Wallet       WalletConfig       `json:"wallet"`
	BondingCurve BondingCurveConfig `json:"bondingCurve"`
	Fees         VaultFees          `json:"fees"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	g := &c.General
	if g.FeeDenominator == 0 {
		return ErrInvalidConfig
	}
	if g.MinDeposit == nil || g.MinDeposit.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if g.MinShare == nil || g.MinShare.Sign() <= 0 {
		return ErrInvalidConfig
	}
	if g.AtomDataMaxLength <= 0 {
		return ErrInvalidConfig
	}
	if g.DecimalPrecision == nil || g.DecimalPrecision.Cmp(curves.Scale) != 0 {
		return ErrInvalidConfig
	}
	if g.MinDelay < 0 {
		return ErrInvalidConfig
	}
	if g.Treasury == (common.Address{}) || g.Admin == (common.Address{}) {
		return ErrInvalidConfig
	}

	if c.Atom.AtomCreationProtocolFee == nil || c.Atom.AtomCreationProtocolFee.Sign() < 0 {
		return ErrInvalidConfig
	}
	if c.Atom.AtomWalletInitialDepositAmount == nil || c.Atom.AtomWalletInitialDepositAmount.Sign() < 0 {
		return ErrInvalidConfig
	}
	if c.Triple.TripleCreationProtocolFee == nil || c.Triple.TripleCreationProtocolFee.Sign() < 0 {
		return ErrInvalidConfig
	}
	if c.Triple.TotalAtomDepositsOnTripleCreation == nil || c.Triple.TotalAtomDepositsOnTripleCreation.Sign() < 0 {
		return ErrInvalidConfig
	}
	if c.Triple.AtomDepositFractionForTriple > g.FeeDenominator {
		return ErrInvalidConfig
	}

	if c.BondingCurve.Registry == nil {
		return ErrInvalidConfig
	}
	if _, err := c.BondingCurve.Registry.Resolve(c.BondingCurve.DefaultCurveID); err != nil {
		return ErrInvalidConfig
	}

	return c.Fees.validate(g.FeeDenominator)
}

func (f *VaultFees) validate(denominator uint64) error {
	limit := denominator / maxFeeDivisor
	if f.EntryFee > limit || f.ExitFee > limit || f.ProtocolFee > limit {
		return ErrInvalidFee
	}
	return nil
}

// AtomCost returns the minimum value an atom creation must carry: the
// static creation fee, the wallet's initial stake and the ghost share
// seed.
func (c *Config) AtomCost() *big.Int {
	cost := new(big.Int).Add(c.Atom.AtomCreationProtocolFee, c.Atom.AtomWalletInitialDepositAmount)
	return cost.Add(cost, c.General.MinShare)
}

// TripleCost returns the minimum value a triple creation must carry: the
// static creation fee, the static atom deposits and the ghost share
// seeds of both the positive and the counter vault.
func (c *Config) TripleCost() *big.Int {
	cost := new(big.Int).Add(c.Triple.TripleCreationProtocolFee, c.Triple.TotalAtomDepositsOnTripleCreation)
	cost.Add(cost, c.General.MinShare)
	return cost.Add(cost, c.General.MinShare)
}
