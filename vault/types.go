// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements the multivault accounting engine: per-term,
// per-curve share ledgers over a native asset, with three fee stages,
// pluggable bonding-curve pricing, triple fan-out and timelock-gated
// administration.
//
// The engine is a pure state machine invoked through typed calls. Each
// operation is atomic: every precondition is validated before the first
// mutation, and a failing call leaves state byte-for-byte unchanged.
package vault

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// StateDB is the native balance ledger the engine settles against.
// Transfers happen strictly after ledger effects in every mutating path.
type StateDB interface {
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)
}

// WalletFactory is notified when an atom is created so an associated
// smart wallet can be deployed out of band. The notification is
// fire-and-forget: the engine does not depend on its outcome.
type WalletFactory interface {
	NotifyAtomCreated(atomID uint64, wallet common.Address, data []byte)
}

// ApprovalTypes is the bitmask of rights a holder grants a sender.
type ApprovalTypes uint8

const (
	ApprovalNone       ApprovalTypes = 0
	ApprovalDeposit    ApprovalTypes = 1
	ApprovalRedemption ApprovalTypes = 2
	ApprovalBoth       ApprovalTypes = ApprovalDeposit | ApprovalRedemption
)

// BurnAddress holds the phantom ghost shares seeded at vault genesis.
// Nothing can ever redeem from it.
var BurnAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Counter-term ids descend from the top of the id space while real term
// ids ascend from 1, so the two ranges can never collide in practice.
const counterIDBase = math.MaxUint64

// CounterID returns the implicit counter-term id for a triple id, and
// maps a counter id back to its triple.
func CounterID(id uint64) uint64 {
	return counterIDBase - id
}

// IsCounterID reports whether id lives in the counter-term range.
func IsCounterID(id uint64) bool {
	return id >= counterIDBase/2
}

// Precondition violations.
var (
	ErrZeroAmount          = errors.New("amount is zero")
	ErrZeroShares          = errors.New("shares is zero")
	ErrDepositBelowMinimum = errors.New("deposit below minimum")
	ErrInsufficientBalance = errors.New("insufficient native balance")
	ErrInsufficientShares  = errors.New("insufficient share balance")
	ErrUnknownTerm         = errors.New("unknown term id")
	ErrTermNotAtom         = errors.New("term is not an atom")
	ErrAtomExists          = errors.New("atom already exists")
	ErrTripleExists        = errors.New("triple already exists")
	ErrAtomDataTooLong     = errors.New("atom data exceeds max length")
	ErrAtomDataEmpty       = errors.New("atom data is empty")
	ErrHasCounterStake     = errors.New("holder has stake in the opposite triple vault")
	ErrSelfApproval        = errors.New("cannot set approval for self")
)

// Invariant-floor violations.
var (
	ErrBreachesShareFloor = errors.New("redemption would breach the minimum share floor")
)

// Authorization errors.
var (
	ErrNotAdmin          = errors.New("sender is not the admin")
	ErrSenderNotApproved = errors.New("sender not approved by holder")
)

// Lifecycle errors.
var (
	ErrPaused        = errors.New("engine is paused")
	ErrNotPaused     = errors.New("engine is not paused")
	ErrInvalidFee    = errors.New("fee exceeds maximum")
	ErrInvalidConfig = errors.New("invalid configuration")
)
