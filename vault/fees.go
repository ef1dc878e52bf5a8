// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
)

// FeeBreakdown records every charge taken by one operation, for event
// emission and preview mirrors.
type FeeBreakdown struct {
	ProtocolFee *big.Int `json:"protocolFee"`
	EntryFee    *big.Int `json:"entryFee"`
	ExitFee     *big.Int `json:"exitFee"`
}

func zeroFees() FeeBreakdown {
	return FeeBreakdown{
		ProtocolFee: new(big.Int),
		EntryFee:    new(big.Int),
		ExitFee:     new(big.Int),
	}
}

// feesFor resolves the fee schedule for a term: the per-term override if
// one was set, otherwise the default schedule under id 0.
func (m *MultiVault) feesFor(termID uint64) VaultFees {
	if f, ok := m.feeOverrides[termID]; ok {
		return f
	}
	return m.config.Fees
}

// protocolFeeAmount is charged on gross amounts in both directions and
// rounds against the user.
func (m *MultiVault) protocolFeeAmount(amount *big.Int, termID uint64) *big.Int {
	fees := m.feesFor(termID)
	return feeCeil(amount, fees.ProtocolFee, m.config.General.FeeDenominator)
}

// entryFeeAmount is charged on deposits after the protocol fee and
// rounds in the depositor's favor. The fee stays in the vault as assets.
func (m *MultiVault) entryFeeAmount(amount *big.Int, termID uint64) *big.Int {
	fees := m.feesFor(termID)
	return feeFloor(amount, fees.EntryFee, m.config.General.FeeDenominator)
}

// exitFeeAmount is charged on redemptions after the protocol fee and
// rounds against the redeemer. The fee stays in the vault as assets.
func (m *MultiVault) exitFeeAmount(amount *big.Int, termID uint64) *big.Int {
	fees := m.feesFor(termID)
	return feeCeil(amount, fees.ExitFee, m.config.General.FeeDenominator)
}

// atomDepositFraction returns the slice of a triple deposit redirected
// into the constituent atom vaults.
func (m *MultiVault) atomDepositFraction(amount *big.Int) *big.Int {
	return feeFloor(amount, m.config.Triple.AtomDepositFractionForTriple, m.config.General.FeeDenominator)
}

func feeFloor(amount *big.Int, numerator, denominator uint64) *big.Int {
	z := new(big.Int).Mul(amount, new(big.Int).SetUint64(numerator))
	return z.Quo(z, new(big.Int).SetUint64(denominator))
}

func feeCeil(amount *big.Int, numerator, denominator uint64) *big.Int {
	d := new(big.Int).SetUint64(denominator)
	z := new(big.Int).Mul(amount, new(big.Int).SetUint64(numerator))
	z.Add(z, new(big.Int).Sub(d, big.NewInt(1)))
	return z.Quo(z, d)
}
