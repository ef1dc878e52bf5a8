// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/multivault/curves"
	"github.com/luxfi/multivault/timelock"
)

// Timelocked operation names. They salt the operation hash so the same
// payload scheduled for different operations cannot collide.
const (
	OpSetAdmin   = "setAdmin"
	OpSetExitFee = "setExitFee"
)

func (m *MultiVault) requireAdmin(sender common.Address) error {
	if sender != m.config.General.Admin {
		return ErrNotAdmin
	}
	return nil
}

func (m *MultiVault) emitConfigUpdate(parameter, value string) {
	m.emit(EventConfigUpdated, ConfigUpdatedEvent{Parameter: parameter, Value: value})
}

// =========================================================================
// Emergency pause
// =========================================================================

// Pause blocks deposits and creations. Redemptions stay available with
// all fees waived.
func (m *MultiVault) Pause(sender common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if m.paused {
		return ErrPaused
	}
	m.paused = true
	m.emit(EventPaused, ConfigUpdatedEvent{Parameter: "paused", Value: "true"})
	return nil
}

// Unpause restores normal operation.
func (m *MultiVault) Unpause(sender common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if !m.paused {
		return ErrNotPaused
	}
	m.paused = false
	m.emit(EventUnpaused, ConfigUpdatedEvent{Parameter: "paused", Value: "false"})
	return nil
}

// =========================================================================
// Immediate setters
// =========================================================================

// SetTreasury redirects future protocol fees.
func (m *MultiVault) SetTreasury(sender, treasury common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if treasury == (common.Address{}) {
		return ErrInvalidConfig
	}
	m.config.General.Treasury = treasury
	m.emitConfigUpdate("treasury", treasury.Hex())
	return nil
}

// SetMinDeposit changes the genesis deposit floor.
func (m *MultiVault) SetMinDeposit(sender common.Address, minDeposit *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if minDeposit == nil || minDeposit.Sign() <= 0 {
		return ErrInvalidConfig
	}
	m.config.General.MinDeposit = new(big.Int).Set(minDeposit)
	m.emitConfigUpdate("minDeposit", minDeposit.String())
	return nil
}

// SetMinShare changes the ghost share seed for vaults created after the
// call. Existing vaults keep the floor they were seeded with.
func (m *MultiVault) SetMinShare(sender common.Address, minShare *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if minShare == nil || minShare.Sign() <= 0 {
		return ErrInvalidConfig
	}
	m.config.General.MinShare = new(big.Int).Set(minShare)
	m.emitConfigUpdate("minShare", minShare.String())
	return nil
}

// SetAtomDataMaxLength changes the atom payload cap.
func (m *MultiVault) SetAtomDataMaxLength(sender common.Address, maxLength int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if maxLength <= 0 {
		return ErrInvalidConfig
	}
	m.config.General.AtomDataMaxLength = maxLength
	m.emitConfigUpdate("atomDataMaxLength", fmt.Sprintf("%d", maxLength))
	return nil
}

// SetAtomCreationProtocolFee changes the static atom creation fee.
func (m *MultiVault) SetAtomCreationProtocolFee(sender common.Address, fee *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fee == nil || fee.Sign() < 0 {
		return ErrInvalidConfig
	}
	m.config.Atom.AtomCreationProtocolFee = new(big.Int).Set(fee)
	m.emitConfigUpdate("atomCreationProtocolFee", fee.String())
	return nil
}

// SetAtomWalletInitialDepositAmount changes the creation-time wallet
// stake.
func (m *MultiVault) SetAtomWalletInitialDepositAmount(sender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidConfig
	}
	m.config.Atom.AtomWalletInitialDepositAmount = new(big.Int).Set(amount)
	m.emitConfigUpdate("atomWalletInitialDepositAmount", amount.String())
	return nil
}

// SetTripleCreationProtocolFee changes the static triple creation fee.
func (m *MultiVault) SetTripleCreationProtocolFee(sender common.Address, fee *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fee == nil || fee.Sign() < 0 {
		return ErrInvalidConfig
	}
	m.config.Triple.TripleCreationProtocolFee = new(big.Int).Set(fee)
	m.emitConfigUpdate("tripleCreationProtocolFee", fee.String())
	return nil
}

// SetTotalAtomDepositsOnTripleCreation changes the static creation-time
// amount routed into constituent atoms.
func (m *MultiVault) SetTotalAtomDepositsOnTripleCreation(sender common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidConfig
	}
	m.config.Triple.TotalAtomDepositsOnTripleCreation = new(big.Int).Set(amount)
	m.emitConfigUpdate("totalAtomDepositsOnTripleCreation", amount.String())
	return nil
}

// SetAtomDepositFractionForTriple changes the fan-out slice of triple
// deposits.
func (m *MultiVault) SetAtomDepositFractionForTriple(sender common.Address, fraction uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fraction > m.config.General.FeeDenominator {
		return ErrInvalidFee
	}
	m.config.Triple.AtomDepositFractionForTriple = fraction
	m.emitConfigUpdate("atomDepositFractionForTriple", fmt.Sprintf("%d", fraction))
	return nil
}

// SetEntryFee updates the entry fee for one term, or the default
// schedule when termID is zero.
func (m *MultiVault) SetEntryFee(sender common.Address, termID uint64, fee uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fee > m.config.General.FeeDenominator/maxFeeDivisor {
		return ErrInvalidFee
	}
	if termID == 0 {
		m.config.Fees.EntryFee = fee
	} else {
		schedule := m.feesFor(termID)
		schedule.EntryFee = fee
		m.feeOverrides[termID] = schedule
	}
	m.emitConfigUpdate("entryFee", fmt.Sprintf("term=%d fee=%d", termID, fee))
	return nil
}

// SetProtocolFee updates the protocol fee for one term, or the default
// schedule when termID is zero.
func (m *MultiVault) SetProtocolFee(sender common.Address, termID uint64, fee uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fee > m.config.General.FeeDenominator/maxFeeDivisor {
		return ErrInvalidFee
	}
	if termID == 0 {
		m.config.Fees.ProtocolFee = fee
	} else {
		schedule := m.feesFor(termID)
		schedule.ProtocolFee = fee
		m.feeOverrides[termID] = schedule
	}
	m.emitConfigUpdate("protocolFee", fmt.Sprintf("term=%d fee=%d", termID, fee))
	return nil
}

// SetDefaultCurveID changes the curve pricing creation-time deposits
// and triple fan-out legs. The id must resolve.
func (m *MultiVault) SetDefaultCurveID(sender common.Address, curveID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if _, err := m.config.BondingCurve.Registry.Resolve(curveID); err != nil {
		return err
	}
	m.config.BondingCurve.DefaultCurveID = curveID
	m.emitConfigUpdate("defaultCurveId", fmt.Sprintf("%d", curveID))
	return nil
}

// RegisterCurve adds a pricing strategy to the shared registry and
// returns its id.
func (m *MultiVault) RegisterCurve(sender common.Address, curve curves.BondingCurve) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return 0, err
	}
	return m.config.BondingCurve.Registry.Register(curve)
}

// SetTimelockDelay changes the delay for operations scheduled after the
// call. In-flight operations keep their original ready time, but their
// hashes were derived under the old delay, so they must be cancelled by
// hash and rescheduled to execute under the new one.
func (m *MultiVault) SetTimelockDelay(sender common.Address, delay int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if delay < 0 {
		return ErrInvalidConfig
	}
	m.config.General.MinDelay = delay
	m.lock.SetMinDelay(delay)
	m.emitConfigUpdate("minDelay", fmt.Sprintf("%d", delay))
	return nil
}

// =========================================================================
// Timelocked setters
// =========================================================================

// opHash derives the correlation key for a scheduled operation from its
// name, the delay in effect, and the payload. Folding the delay in means
// a delay change mints fresh operation identities, so a consumed
// (operation, payload) pair becomes schedulable again under the new
// delay instead of being dead for the engine's lifetime.
func opHash(name string, delay int64, payload []byte) common.Hash {
	var delayBuf [8]byte
	binary.BigEndian.PutUint64(delayBuf[:], uint64(delay))
	h := blake3.New()
	h.Write([]byte("tmlk"))
	h.Write([]byte(name))
	h.Write(delayBuf[:])
	h.Write(payload)
	var out common.Hash
	h.Digest().Read(out[:])
	return out
}

func (m *MultiVault) setAdminHash(newAdmin common.Address) common.Hash {
	return opHash(OpSetAdmin, m.lock.MinDelay(), newAdmin[:])
}

func (m *MultiVault) setExitFeeHash(termID uint64, fee uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:], termID)
	binary.BigEndian.PutUint64(buf[8:], fee)
	return opHash(OpSetExitFee, m.lock.MinDelay(), buf[:])
}

// ScheduleSetAdmin queues an admin handover. Returns the operation hash
// and its ready time.
func (m *MultiVault) ScheduleSetAdmin(sender, newAdmin common.Address) (common.Hash, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return common.Hash{}, 0, err
	}
	if newAdmin == (common.Address{}) {
		return common.Hash{}, 0, ErrInvalidConfig
	}
	hash := m.setAdminHash(newAdmin)
	readyAt, err := m.lock.Schedule(hash)
	if err != nil {
		return common.Hash{}, 0, err
	}
	m.emit(EventOperationScheduled, TimelockEvent{Operation: OpSetAdmin, Hash: hash, ReadyAt: readyAt})
	return hash, readyAt, nil
}

// ExecuteSetAdmin applies a matured admin handover.
func (m *MultiVault) ExecuteSetAdmin(sender, newAdmin common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	hash := m.setAdminHash(newAdmin)
	if err := m.lock.Execute(hash); err != nil {
		return err
	}
	m.config.General.Admin = newAdmin
	m.emit(EventOperationExecuted, TimelockEvent{Operation: OpSetAdmin, Hash: hash})
	m.emitConfigUpdate("admin", newAdmin.Hex())
	return nil
}

// ScheduleSetExitFee queues an exit fee change for one term, or the
// default schedule when termID is zero. Exit fee raises are timelocked
// so holders can redeem under the old rate before it takes effect.
func (m *MultiVault) ScheduleSetExitFee(sender common.Address, termID uint64, fee uint64) (common.Hash, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return common.Hash{}, 0, err
	}
	if fee > m.config.General.FeeDenominator/maxFeeDivisor {
		return common.Hash{}, 0, ErrInvalidFee
	}
	hash := m.setExitFeeHash(termID, fee)
	readyAt, err := m.lock.Schedule(hash)
	if err != nil {
		return common.Hash{}, 0, err
	}
	m.emit(EventOperationScheduled, TimelockEvent{Operation: OpSetExitFee, Hash: hash, ReadyAt: readyAt})
	return hash, readyAt, nil
}

// ExecuteSetExitFee applies a matured exit fee change.
func (m *MultiVault) ExecuteSetExitFee(sender common.Address, termID uint64, fee uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if fee > m.config.General.FeeDenominator/maxFeeDivisor {
		return ErrInvalidFee
	}
	hash := m.setExitFeeHash(termID, fee)
	if err := m.lock.Execute(hash); err != nil {
		return err
	}
	if termID == 0 {
		m.config.Fees.ExitFee = fee
	} else {
		schedule := m.feesFor(termID)
		schedule.ExitFee = fee
		m.feeOverrides[termID] = schedule
	}
	m.emit(EventOperationExecuted, TimelockEvent{Operation: OpSetExitFee, Hash: hash})
	m.emitConfigUpdate("exitFee", fmt.Sprintf("term=%d fee=%d", termID, fee))
	return nil
}

// CancelOperation drops a scheduled operation before execution.
func (m *MultiVault) CancelOperation(sender common.Address, hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireAdmin(sender); err != nil {
		return err
	}
	if err := m.lock.Cancel(hash); err != nil {
		return err
	}
	m.emit(EventOperationCancelled, TimelockEvent{Hash: hash})
	return nil
}

// OperationStatus exposes the timelock state of a hash.
func (m *MultiVault) OperationStatus(hash common.Hash) timelock.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lock.Status(hash)
}

// Admin returns the current admin address.
func (m *MultiVault) Admin() common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.General.Admin
}
