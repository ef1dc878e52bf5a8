// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// vaultKey identifies one ledger: a term priced by a curve.
type vaultKey struct {
	termID  uint64
	curveID uint64
}

// vaultState is the per-(term, curve) accounting record. The package
// invariant sum(balances) == totalShares holds at every call boundary,
// and totalAssets == 0 iff totalShares == 0 except between genesis
// seeding steps inside a single operation.
type vaultState struct {
	totalAssets *big.Int
	totalShares *big.Int
	// ghostShares is the unredeemable floor minted to the burn address
	// at genesis. It doubles as the entry-fee waiver threshold: while
	// totalShares == ghostShares the vault has no real positions.
	ghostShares *big.Int
	balances    map[common.Address]*big.Int
}

func newVaultState() *vaultState {
	return &vaultState{
		totalAssets: new(big.Int),
		totalShares: new(big.Int),
		ghostShares: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
	}
}

func (v *vaultState) balanceOf(holder common.Address) *big.Int {
	if b, ok := v.balances[holder]; ok {
		return b
	}
	return new(big.Int)
}

// mint credits shares to holder backed by assets.
func (v *vaultState) mint(holder common.Address, shares, assets *big.Int) {
	v.totalShares.Add(v.totalShares, shares)
	v.totalAssets.Add(v.totalAssets, assets)
	b, ok := v.balances[holder]
	if !ok {
		b = new(big.Int)
		v.balances[holder] = b
	}
	b.Add(b, shares)
}

// burn removes shares from holder and assets from the vault total.
// Callers validate sufficiency beforehand.
func (v *vaultState) burn(holder common.Address, shares, assets *big.Int) {
	v.totalShares.Sub(v.totalShares, shares)
	v.totalAssets.Sub(v.totalAssets, assets)
	b := v.balances[holder]
	b.Sub(b, shares)
	if b.Sign() == 0 {
		delete(v.balances, holder)
	}
}

// donate adds assets without minting shares, appreciating every
// outstanding share. Entry fees and fan-out dust land here.
func (v *vaultState) donate(assets *big.Int) {
	v.totalAssets.Add(v.totalAssets, assets)
}

// vaultOf returns the ledger for (termID, curveID), creating it lazily.
func (m *MultiVault) vaultOf(termID, curveID uint64) *vaultState {
	key := vaultKey{termID: termID, curveID: curveID}
	v, ok := m.vaults[key]
	if !ok {
		v = newVaultState()
		m.vaults[key] = v
	}
	return v
}

// peekVault returns the ledger without creating it.
func (m *MultiVault) peekVault(termID, curveID uint64) (*vaultState, bool) {
	v, ok := m.vaults[vaultKey{termID: termID, curveID: curveID}]
	return v, ok
}

// hasStakeOnTerm reports whether the holder has shares in the term
// under any registered curve.
func (m *MultiVault) hasStakeOnTerm(termID uint64, holder common.Address) bool {
	count := m.config.BondingCurve.Registry.Count()
	for curveID := uint64(1); curveID <= count; curveID++ {
		if v, ok := m.peekVault(termID, curveID); ok && v.balanceOf(holder).Sign() > 0 {
			return true
		}
	}
	return false
}
