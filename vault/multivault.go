// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/multivault/curves"
	"github.com/luxfi/multivault/timelock"
)

// MultiVault is the bonding-curve vault accounting engine. Every term
// (atom or triple) owns one ledger per active curve; deposits and
// redemptions convert between assets and shares through the resolved
// curve, with fees applied around the conversion.
//
// Callers serialize operations externally; the internal mutex only
// guards against accidental concurrent use and spans whole operations,
// triple fan-out included.
type MultiVault struct {
	mu sync.RWMutex

	// address is the engine's own account on the StateDB: vault assets
	// are custodied here between deposit and redemption.
	address common.Address

	config  Config
	state   StateDB
	factory WalletFactory
	journal *Journal
	lock    *timelock.Timelock
	log     log.Logger
	clock   func() int64

	paused bool

	// Term space. Atom and triple ids share one ascending counter;
	// counter-term ids are derived, never allocated.
	termCount    uint64
	atoms        map[uint64][]byte
	atomHashes   map[common.Hash]uint64
	atomWallets  map[uint64]common.Address
	triples      map[uint64][3]uint64
	tripleHashes map[common.Hash]uint64

	vaults       map[vaultKey]*vaultState
	feeOverrides map[uint64]VaultFees
	approvals    map[common.Address]map[common.Address]ApprovalTypes
}

// New constructs an engine instance. The journal may be nil to disable
// event persistence; the clock may be nil to use wall time.
func New(
	address common.Address,
	config Config,
	state StateDB,
	factory WalletFactory,
	journal *Journal,
	logger log.Logger,
	clock func() int64,
) (*MultiVault, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: nil state db", ErrInvalidConfig)
	}
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	m := &MultiVault{
		address:      address,
		config:       config,
		state:        state,
		factory:      factory,
		journal:      journal,
		log:          logger,
		clock:        clock,
		atoms:        make(map[uint64][]byte),
		atomHashes:   make(map[common.Hash]uint64),
		atomWallets:  make(map[uint64]common.Address),
		triples:      make(map[uint64][3]uint64),
		tripleHashes: make(map[common.Hash]uint64),
		vaults:       make(map[vaultKey]*vaultState),
		feeOverrides: make(map[uint64]VaultFees),
		approvals:    make(map[common.Address]map[common.Address]ApprovalTypes),
	}
	m.lock = timelock.New(config.General.MinDelay, clock)
	return m, nil
}

// =========================================================================
// Hashing and derived identities
// =========================================================================

func hashAtomData(data []byte) common.Hash {
	h := blake3.New()
	h.Write([]byte("atom"))
	h.Write(data)
	var out common.Hash
	h.Digest().Read(out[:])
	return out
}

func hashTriple(subject, predicate, object uint64) common.Hash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], subject)
	binary.BigEndian.PutUint64(buf[8:], predicate)
	binary.BigEndian.PutUint64(buf[16:], object)
	h := blake3.New()
	h.Write([]byte("trpl"))
	h.Write(buf[:])
	var out common.Hash
	h.Digest().Read(out[:])
	return out
}

// atomWalletAddress derives the deterministic wallet address for an
// atom from the engine address, the warden and the atom id.
func (m *MultiVault) atomWalletAddress(atomID uint64) common.Address {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], atomID)
	h := blake3.New()
	h.Write([]byte("wllt"))
	h.Write(m.address[:])
	h.Write(m.config.Wallet.AtomWarden[:])
	h.Write(buf[:])
	var digest [32]byte
	h.Digest().Read(digest[:])
	return common.BytesToAddress(digest[12:])
}

// =========================================================================
// Term helpers
// =========================================================================

func (m *MultiVault) termExists(id uint64) bool {
	if _, ok := m.atoms[id]; ok {
		return true
	}
	if _, ok := m.triples[id]; ok {
		return true
	}
	if IsCounterID(id) {
		_, ok := m.triples[CounterID(id)]
		return ok
	}
	return false
}

// isTripleVault reports whether id is a triple or counter-triple term.
func (m *MultiVault) isTripleVault(id uint64) bool {
	if _, ok := m.triples[id]; ok {
		return true
	}
	if IsCounterID(id) {
		_, ok := m.triples[CounterID(id)]
		return ok
	}
	return false
}

// constituentsOf returns the three atom ids behind a triple or counter
// vault id.
func (m *MultiVault) constituentsOf(id uint64) ([3]uint64, bool) {
	if c, ok := m.triples[id]; ok {
		return c, true
	}
	if IsCounterID(id) {
		c, ok := m.triples[CounterID(id)]
		return c, ok
	}
	return [3]uint64{}, false
}

// oppositeVaultID returns the twin vault of a triple-side term.
func oppositeVaultID(id uint64) uint64 {
	return CounterID(id)
}

func (m *MultiVault) resolveCurve(curveID uint64) (curves.BondingCurve, error) {
	return m.config.BondingCurve.Registry.Resolve(curveID)
}

// =========================================================================
// Native value plumbing
// =========================================================================

func toU256(amount *big.Int) *uint256.Int {
	z, overflow := uint256.FromBig(amount)
	if overflow {
		// Curve ceilings bound every amount below 2^256 first.
		panic("vault: amount exceeds 256 bits")
	}
	return z
}

// checkValue verifies the payer can cover amount. The actual transfer
// happens after ledger effects.
func (m *MultiVault) checkValue(payer common.Address, amount *big.Int) error {
	if m.state.GetBalance(payer).ToBig().Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// settleDeposit moves a collected deposit: protocol share to the
// treasury, the remainder into the engine's custody account.
func (m *MultiVault) settleDeposit(payer common.Address, amount, treasuryCut *big.Int) {
	m.state.SubBalance(payer, toU256(amount))
	kept := new(big.Int).Sub(amount, treasuryCut)
	if kept.Sign() > 0 {
		m.state.AddBalance(m.address, toU256(kept))
	}
	if treasuryCut.Sign() > 0 {
		m.state.AddBalance(m.config.General.Treasury, toU256(treasuryCut))
	}
}

// settleRedemption pays out a redemption from the custody account.
func (m *MultiVault) settleRedemption(receiver common.Address, net, protocolFee *big.Int) {
	released := new(big.Int).Add(net, protocolFee)
	if released.Sign() > 0 {
		m.state.SubBalance(m.address, toU256(released))
	}
	if net.Sign() > 0 {
		m.state.AddBalance(receiver, toU256(net))
	}
	if protocolFee.Sign() > 0 {
		m.state.AddBalance(m.config.General.Treasury, toU256(protocolFee))
	}
}

// =========================================================================
// Atom creation
// =========================================================================

// CreateAtom registers a new atom term funded by value and genesis-seeds
// its default-curve vault: ghost shares to the burn address, the initial
// wallet stake to the atom wallet, and the remaining deposit to the
// sender. Returns the new atom id.
func (m *MultiVault) CreateAtom(sender common.Address, data []byte, value *big.Int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return 0, ErrPaused
	}
	if len(data) == 0 {
		return 0, ErrAtomDataEmpty
	}
	if len(data) > m.config.General.AtomDataMaxLength {
		return 0, ErrAtomDataTooLong
	}
	dataHash := hashAtomData(data)
	if _, exists := m.atomHashes[dataHash]; exists {
		return 0, ErrAtomExists
	}
	cost := m.config.AtomCost()
	if value == nil || value.Cmp(cost) < 0 {
		return 0, ErrDepositBelowMinimum
	}
	if err := m.checkValue(sender, value); err != nil {
		return 0, err
	}

	curve, err := m.resolveCurve(m.config.BondingCurve.DefaultCurveID)
	if err != nil {
		return 0, err
	}

	userDeposit := new(big.Int).Sub(value, cost)
	protocolFee := m.protocolFeeAmount(userDeposit, 0)
	userNet := new(big.Int).Sub(userDeposit, protocolFee)
	walletDeposit := m.config.Atom.AtomWalletInitialDepositAmount
	minShare := m.config.General.MinShare

	// Simulate the three genesis mints before touching any state so a
	// curve rejection cannot leave a half-seeded vault behind.
	ghostShares, err := curve.PreviewDeposit(minShare, new(big.Int), new(big.Int))
	if err != nil {
		return 0, err
	}
	if ghostShares.Cmp(minShare) < 0 {
		ghostShares = new(big.Int).Set(minShare)
	}
	simAssets := new(big.Int).Set(minShare)
	simShares := new(big.Int).Set(ghostShares)

	walletShares, err := curve.PreviewDeposit(walletDeposit, simAssets, simShares)
	if err != nil {
		return 0, err
	}
	simAssets.Add(simAssets, walletDeposit)
	simShares.Add(simShares, walletShares)

	userShares, err := curve.PreviewDeposit(userNet, simAssets, simShares)
	if err != nil {
		return 0, err
	}

	// Effects.
	m.termCount++
	id := m.termCount
	wallet := m.atomWalletAddress(id)
	m.atoms[id] = append([]byte(nil), data...)
	m.atomHashes[dataHash] = id
	m.atomWallets[id] = wallet

	v := m.vaultOf(id, m.config.BondingCurve.DefaultCurveID)
	v.ghostShares = new(big.Int).Set(ghostShares)
	v.mint(BurnAddress, ghostShares, minShare)
	if walletDeposit.Sign() > 0 {
		v.mint(wallet, walletShares, walletDeposit)
	}
	if userNet.Sign() > 0 {
		v.mint(sender, userShares, userNet)
	}

	// External transfers.
	treasuryCut := new(big.Int).Add(m.config.Atom.AtomCreationProtocolFee, protocolFee)
	m.settleDeposit(sender, value, treasuryCut)

	if m.factory != nil {
		m.factory.NotifyAtomCreated(id, wallet, m.atoms[id])
	}

	m.emit(EventAtomCreated, AtomCreatedEvent{
		Creator:    sender,
		AtomID:     id,
		AtomWallet: wallet,
		DataHash:   dataHash,
	})
	return id, nil
}

// =========================================================================
// Triple creation
// =========================================================================

// CreateTriple registers a subject-predicate-object claim over three
// existing atoms, seeds its positive and counter vaults, and routes the
// configured static and fractional deposits into the constituent atom
// vaults. Returns the new triple id.
func (m *MultiVault) CreateTriple(sender common.Address, subject, predicate, object uint64, value *big.Int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return 0, ErrPaused
	}
	for _, atomID := range [3]uint64{subject, predicate, object} {
		if !m.termExists(atomID) {
			return 0, ErrUnknownTerm
		}
		if _, ok := m.atoms[atomID]; !ok {
			return 0, ErrTermNotAtom
		}
	}
	tripleHash := hashTriple(subject, predicate, object)
	if _, exists := m.tripleHashes[tripleHash]; exists {
		return 0, ErrTripleExists
	}
	cost := m.config.TripleCost()
	if value == nil || value.Cmp(cost) < 0 {
		return 0, ErrDepositBelowMinimum
	}
	if err := m.checkValue(sender, value); err != nil {
		return 0, err
	}

	defaultCurveID := m.config.BondingCurve.DefaultCurveID
	curve, err := m.resolveCurve(defaultCurveID)
	if err != nil {
		return 0, err
	}

	minShare := m.config.General.MinShare
	userDeposit := new(big.Int).Sub(value, cost)
	protocolFee := m.protocolFeeAmount(userDeposit, 0)
	userNet := new(big.Int).Sub(userDeposit, protocolFee)

	// Fractional fan-out of the user deposit into the atom legs.
	fraction := m.atomDepositFraction(userNet)
	perAtomUser := new(big.Int).Quo(fraction, big.NewInt(3))
	fanDust := new(big.Int).Sub(fraction, new(big.Int).Mul(perAtomUser, big.NewInt(3)))
	positiveDeposit := new(big.Int).Sub(userNet, fraction)

	// Static creation-time atom deposits, asset-only.
	static := m.config.Triple.TotalAtomDepositsOnTripleCreation
	perAtomStatic := new(big.Int).Quo(static, big.NewInt(3))
	staticDust := new(big.Int).Sub(static, new(big.Int).Mul(perAtomStatic, big.NewInt(3)))

	// Simulate every curve conversion before mutating.
	ghostShares, err := curve.PreviewDeposit(minShare, new(big.Int), new(big.Int))
	if err != nil {
		return 0, err
	}
	if ghostShares.Cmp(minShare) < 0 {
		ghostShares = new(big.Int).Set(minShare)
	}
	posShares, err := curve.PreviewDeposit(positiveDeposit, minShare, ghostShares)
	if err != nil {
		return 0, err
	}

	legs, err := m.simulateAtomLegs([3]uint64{subject, predicate, object}, defaultCurveID, curve, perAtomUser, perAtomStatic)
	if err != nil {
		return 0, err
	}

	// Effects.
	m.termCount++
	id := m.termCount
	counterID := CounterID(id)
	m.triples[id] = [3]uint64{subject, predicate, object}
	m.tripleHashes[tripleHash] = id

	pos := m.vaultOf(id, defaultCurveID)
	pos.ghostShares = new(big.Int).Set(ghostShares)
	pos.mint(BurnAddress, ghostShares, minShare)
	if positiveDeposit.Sign() > 0 {
		pos.mint(sender, posShares, positiveDeposit)
	}
	// Fan-out and static split remainders stay with the positive vault
	// rather than vanishing.
	dust := new(big.Int).Add(fanDust, staticDust)
	if dust.Sign() > 0 {
		pos.donate(dust)
	}

	neg := m.vaultOf(counterID, defaultCurveID)
	neg.ghostShares = new(big.Int).Set(ghostShares)
	neg.mint(BurnAddress, ghostShares, minShare)

	m.applyAtomLegs(sender, legs, defaultCurveID, perAtomStatic)

	// External transfers.
	treasuryCut := new(big.Int).Add(m.config.Triple.TripleCreationProtocolFee, protocolFee)
	m.settleDeposit(sender, value, treasuryCut)

	m.emit(EventTripleCreated, TripleCreatedEvent{
		Creator:   sender,
		TripleID:  id,
		CounterID: counterID,
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	})
	return id, nil
}

// atomLeg is one precomputed fan-out deposit into a constituent atom.
type atomLeg struct {
	atomID   uint64
	entryFee *big.Int
	assets   *big.Int
	shares   *big.Int
	before   VaultTotals
}

// simulateAtomLegs computes the fan-out deposits into the three
// constituent atoms without mutating state. Repeated constituents are
// handled by carrying running totals per atom id.
func (m *MultiVault) simulateAtomLegs(
	atomIDs [3]uint64,
	curveID uint64,
	curve curves.BondingCurve,
	perAtom *big.Int,
	perAtomStatic *big.Int,
) ([]atomLeg, error) {
	type running struct {
		assets *big.Int
		shares *big.Int
		ghost  *big.Int
	}
	totals := make(map[uint64]*running, 3)
	legs := make([]atomLeg, 0, 3)

	for _, atomID := range atomIDs {
		r, ok := totals[atomID]
		if !ok {
			r = &running{assets: new(big.Int), shares: new(big.Int), ghost: new(big.Int)}
			if v, exists := m.peekVault(atomID, curveID); exists {
				r.assets.Set(v.totalAssets)
				r.shares.Set(v.totalShares)
				r.ghost.Set(v.ghostShares)
			}
			totals[atomID] = r
		}
		before := VaultTotals{
			TotalAssets: new(big.Int).Set(r.assets),
			TotalShares: new(big.Int).Set(r.shares),
		}

		// Static creation-time amount lands first, as assets only.
		if perAtomStatic != nil && perAtomStatic.Sign() > 0 {
			r.assets.Add(r.assets, perAtomStatic)
		}

		entryFee := new(big.Int)
		if r.shares.Cmp(r.ghost) != 0 && r.shares.Sign() != 0 {
			entryFee = m.entryFeeAmount(perAtom, atomID)
		}
		assetsForAtom := new(big.Int).Sub(perAtom, entryFee)
		shares, err := curve.PreviewDeposit(assetsForAtom, r.assets, r.shares)
		if err != nil {
			return nil, err
		}

		r.assets.Add(r.assets, new(big.Int).Add(assetsForAtom, entryFee))
		r.shares.Add(r.shares, shares)

		legs = append(legs, atomLeg{
			atomID:   atomID,
			entryFee: entryFee,
			assets:   assetsForAtom,
			shares:   shares,
			before:   before,
		})
	}
	return legs, nil
}

// applyAtomLegs commits precomputed fan-out legs to the atom ledgers and
// emits their deposit events.
func (m *MultiVault) applyAtomLegs(receiver common.Address, legs []atomLeg, curveID uint64, perAtomStatic *big.Int) {
	for _, leg := range legs {
		v := m.vaultOf(leg.atomID, curveID)
		if perAtomStatic != nil && perAtomStatic.Sign() > 0 {
			v.donate(perAtomStatic)
		}
		if leg.shares.Sign() > 0 {
			v.mint(receiver, leg.shares, leg.assets)
		} else if leg.assets.Sign() > 0 {
			v.donate(leg.assets)
		}
		if leg.entryFee.Sign() > 0 {
			v.donate(leg.entryFee)
		}

		m.emit(EventDeposited, DepositedEvent{
			Sender:          receiver,
			Receiver:        receiver,
			TermID:          leg.atomID,
			CurveID:         curveID,
			Amount:          new(big.Int).Add(leg.assets, leg.entryFee),
			AssetsAfterFees: leg.assets,
			SharesMinted:    leg.shares,
			Fees: FeeBreakdown{
				ProtocolFee: new(big.Int),
				EntryFee:    leg.entryFee,
				ExitFee:     new(big.Int),
			},
			Before: leg.before,
			After: VaultTotals{
				TotalAssets: new(big.Int).Set(v.totalAssets),
				TotalShares: new(big.Int).Set(v.totalShares),
			},
		})
	}
}

// =========================================================================
// Deposit
// =========================================================================

// Deposit stakes amount into the (termID, curveID) vault and credits the
// minted shares to receiver. A sender depositing for another receiver
// needs that receiver's deposit approval. Depositing into a triple-side
// vault additionally fans a configured fraction out into the three
// constituent atom vaults under the default curve, charging the protocol
// fee only once. Returns the shares minted on the target vault.
func (m *MultiVault) Deposit(sender, receiver common.Address, termID, curveID uint64, amount *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if sender != receiver && m.approvalFor(receiver, sender)&ApprovalDeposit == 0 {
		return nil, ErrSenderNotApproved
	}
	if !m.termExists(termID) {
		return nil, ErrUnknownTerm
	}
	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, err
	}
	if err := m.checkValue(sender, amount); err != nil {
		return nil, err
	}

	isTriple := m.isTripleVault(termID)
	if isTriple && m.hasStakeOnTerm(oppositeVaultID(termID), receiver) {
		// Opposing positions on the same claim are contradictory,
		// whichever curve prices them; the holder must exit one side
		// first.
		return nil, ErrHasCounterStake
	}

	v := m.vaultOf(termID, curveID)
	if v.totalShares.Sign() == 0 && amount.Cmp(m.config.General.MinDeposit) < 0 {
		return nil, ErrDepositBelowMinimum
	}

	protocolFee := m.protocolFeeAmount(amount, termID)
	net := new(big.Int).Sub(amount, protocolFee)

	// Triple fan-out slice, priced on the default curve. The protocol
	// fee was already taken off the top and is not charged again here.
	var legs []atomLeg
	var fanDust *big.Int
	defaultCurveID := m.config.BondingCurve.DefaultCurveID
	if isTriple {
		fraction := m.atomDepositFraction(net)
		perAtom := new(big.Int).Quo(fraction, big.NewInt(3))
		fanDust = new(big.Int).Sub(fraction, new(big.Int).Mul(perAtom, big.NewInt(3)))
		net = new(big.Int).Sub(net, fraction)

		defaultCurve, err := m.resolveCurve(defaultCurveID)
		if err != nil {
			return nil, err
		}
		atomIDs, _ := m.constituentsOf(termID)
		legs, err = m.simulateAtomLegs(atomIDs, defaultCurveID, defaultCurve, perAtom, nil)
		if err != nil {
			return nil, err
		}
	}

	entryFee := new(big.Int)
	if v.totalShares.Sign() != 0 && v.totalShares.Cmp(v.ghostShares) != 0 {
		entryFee = m.entryFeeAmount(net, termID)
	}
	assetsAfterFees := new(big.Int).Sub(net, entryFee)

	before := VaultTotals{
		TotalAssets: new(big.Int).Set(v.totalAssets),
		TotalShares: new(big.Int).Set(v.totalShares),
	}

	shares, err := curve.PreviewDeposit(assetsAfterFees, v.totalAssets, v.totalShares)
	if err != nil {
		return nil, err
	}

	minShare := m.config.General.MinShare
	genesis := v.totalShares.Sign() == 0
	if genesis && shares.Cmp(minShare) <= 0 {
		// The first deposit must fund the ghost floor and still leave
		// the depositor with a position.
		return nil, ErrDepositBelowMinimum
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}

	// Effects.
	receiverShares := shares
	if genesis {
		v.ghostShares = new(big.Int).Set(minShare)
		v.mint(BurnAddress, minShare, assetsAfterFees)
		receiverShares = new(big.Int).Sub(shares, minShare)
		v.mint(receiver, receiverShares, new(big.Int))
	} else {
		v.mint(receiver, shares, assetsAfterFees)
	}
	if entryFee.Sign() > 0 {
		v.donate(entryFee)
	}
	if fanDust != nil && fanDust.Sign() > 0 {
		v.donate(fanDust)
	}
	m.applyAtomLegs(receiver, legs, defaultCurveID, nil)

	// External transfers.
	m.settleDeposit(sender, amount, protocolFee)

	m.emit(EventDeposited, DepositedEvent{
		Sender:          sender,
		Receiver:        receiver,
		TermID:          termID,
		CurveID:         curveID,
		Amount:          new(big.Int).Set(amount),
		AssetsAfterFees: assetsAfterFees,
		SharesMinted:    receiverShares,
		Fees: FeeBreakdown{
			ProtocolFee: protocolFee,
			EntryFee:    entryFee,
			ExitFee:     new(big.Int),
		},
		Before:   before,
		After:    VaultTotals{TotalAssets: new(big.Int).Set(v.totalAssets), TotalShares: new(big.Int).Set(v.totalShares)},
		IsTriple: isTriple,
	})
	return new(big.Int).Set(receiverShares), nil
}

// =========================================================================
// Redeem
// =========================================================================

// Redeem burns shares from holder's position on (termID, curveID) and
// pays the net assets to holder. A sender redeeming another holder's
// position needs that holder's redemption approval. While the engine is
// paused redemption stays available with every fee waived, so principal
// is always recoverable during an incident.
func (m *MultiVault) Redeem(sender, holder common.Address, termID, curveID uint64, shares *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	if sender != holder && m.approvalFor(holder, sender)&ApprovalRedemption == 0 {
		return nil, ErrSenderNotApproved
	}
	if !m.termExists(termID) {
		return nil, ErrUnknownTerm
	}
	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, err
	}
	v, ok := m.peekVault(termID, curveID)
	if !ok {
		return nil, ErrInsufficientShares
	}
	if v.balanceOf(holder).Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	remaining := new(big.Int).Sub(v.totalShares, shares)
	if remaining.Cmp(v.ghostShares) < 0 {
		return nil, ErrBreachesShareFloor
	}

	gross, err := curve.PreviewRedeem(shares, v.totalAssets, v.totalShares)
	if err != nil {
		return nil, err
	}

	fees := zeroFees()
	if !m.paused {
		fees.ProtocolFee = m.protocolFeeAmount(gross, termID)
		afterProtocol := new(big.Int).Sub(gross, fees.ProtocolFee)
		// Landing exactly on the ghost floor exits the vault's last
		// real position; that final redemption is not taxed.
		if remaining.Cmp(v.ghostShares) != 0 {
			fees.ExitFee = m.exitFeeAmount(afterProtocol, termID)
		}
	}
	net := new(big.Int).Sub(gross, fees.ProtocolFee)
	net.Sub(net, fees.ExitFee)

	before := VaultTotals{
		TotalAssets: new(big.Int).Set(v.totalAssets),
		TotalShares: new(big.Int).Set(v.totalShares),
	}

	// Effects: the exit fee stays in the vault as assets.
	released := new(big.Int).Add(net, fees.ProtocolFee)
	v.burn(holder, shares, released)

	// External transfers.
	m.settleRedemption(holder, net, fees.ProtocolFee)

	m.emit(EventRedeemed, RedeemedEvent{
		Sender:       sender,
		Holder:       holder,
		TermID:       termID,
		CurveID:      curveID,
		SharesBurned: new(big.Int).Set(shares),
		GrossAssets:  gross,
		NetAssets:    net,
		Fees:         fees,
		Before:       before,
		After:        VaultTotals{TotalAssets: new(big.Int).Set(v.totalAssets), TotalShares: new(big.Int).Set(v.totalShares)},
	})
	return net, nil
}

// =========================================================================
// Read-only mirrors
// =========================================================================

// PreviewDeposit simulates Deposit for the target vault, returning the
// shares the receiver would be minted and the fee breakdown, without
// mutating anything. Fan-out legs of triple deposits are reflected in
// the fees but their atom-side shares are not reported here.
func (m *MultiVault) PreviewDeposit(termID, curveID uint64, amount *big.Int) (*big.Int, FeeBreakdown, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fees := zeroFees()
	if amount == nil || amount.Sign() <= 0 {
		return nil, fees, ErrZeroAmount
	}
	if !m.termExists(termID) {
		return nil, fees, ErrUnknownTerm
	}
	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, fees, err
	}

	totalAssets, totalShares, ghost := m.vaultTotals(termID, curveID)
	if totalShares.Sign() == 0 && amount.Cmp(m.config.General.MinDeposit) < 0 {
		return nil, fees, ErrDepositBelowMinimum
	}

	fees.ProtocolFee = m.protocolFeeAmount(amount, termID)
	net := new(big.Int).Sub(amount, fees.ProtocolFee)
	if m.isTripleVault(termID) {
		net.Sub(net, m.atomDepositFraction(net))
	}
	if totalShares.Sign() != 0 && totalShares.Cmp(ghost) != 0 {
		fees.EntryFee = m.entryFeeAmount(net, termID)
	}
	assetsAfterFees := new(big.Int).Sub(net, fees.EntryFee)

	shares, err := curve.PreviewDeposit(assetsAfterFees, totalAssets, totalShares)
	if err != nil {
		return nil, fees, err
	}
	if totalShares.Sign() == 0 {
		if shares.Cmp(m.config.General.MinShare) <= 0 {
			return nil, fees, ErrDepositBelowMinimum
		}
		shares = new(big.Int).Sub(shares, m.config.General.MinShare)
	}
	return shares, fees, nil
}

// PreviewRedeem simulates Redeem, returning the net assets paid out and
// the fee breakdown.
func (m *MultiVault) PreviewRedeem(termID, curveID uint64, shares *big.Int) (*big.Int, FeeBreakdown, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fees := zeroFees()
	if shares == nil || shares.Sign() <= 0 {
		return nil, fees, ErrZeroShares
	}
	if !m.termExists(termID) {
		return nil, fees, ErrUnknownTerm
	}
	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, fees, err
	}
	totalAssets, totalShares, ghost := m.vaultTotals(termID, curveID)
	remaining := new(big.Int).Sub(totalShares, shares)
	if remaining.Cmp(ghost) < 0 {
		return nil, fees, ErrBreachesShareFloor
	}

	gross, err := curve.PreviewRedeem(shares, totalAssets, totalShares)
	if err != nil {
		return nil, fees, err
	}
	if !m.paused {
		fees.ProtocolFee = m.protocolFeeAmount(gross, termID)
		afterProtocol := new(big.Int).Sub(gross, fees.ProtocolFee)
		if remaining.Cmp(ghost) != 0 {
			fees.ExitFee = m.exitFeeAmount(afterProtocol, termID)
		}
	}
	net := new(big.Int).Sub(gross, fees.ProtocolFee)
	net.Sub(net, fees.ExitFee)
	return net, fees, nil
}

// PreviewMint mirrors the curve's ask side against the vault totals.
func (m *MultiVault) PreviewMint(termID, curveID uint64, shares *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, err
	}
	totalAssets, totalShares, _ := m.vaultTotals(termID, curveID)
	return curve.PreviewMint(shares, totalAssets, totalShares)
}

// PreviewWithdraw mirrors the curve's exact-asset side against the vault
// totals.
func (m *MultiVault) PreviewWithdraw(termID, curveID uint64, assets *big.Int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, err
	}
	totalAssets, totalShares, _ := m.vaultTotals(termID, curveID)
	return curve.PreviewWithdraw(assets, totalAssets, totalShares)
}

// CurrentSharePrice returns the resolved curve's spot price at the
// vault's share supply.
func (m *MultiVault) CurrentSharePrice(termID, curveID uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	curve, err := m.resolveCurve(curveID)
	if err != nil {
		return nil, err
	}
	_, totalShares, _ := m.vaultTotals(termID, curveID)
	return curve.CurrentPrice(totalShares), nil
}

func (m *MultiVault) vaultTotals(termID, curveID uint64) (totalAssets, totalShares, ghost *big.Int) {
	if v, ok := m.peekVault(termID, curveID); ok {
		return new(big.Int).Set(v.totalAssets), new(big.Int).Set(v.totalShares), new(big.Int).Set(v.ghostShares)
	}
	return new(big.Int), new(big.Int), new(big.Int)
}

// GetVault returns the (totalAssets, totalShares) snapshot of a ledger.
func (m *MultiVault) GetVault(termID, curveID uint64) (*big.Int, *big.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalAssets, totalShares, _ := m.vaultTotals(termID, curveID)
	return totalAssets, totalShares
}

// GetShares returns holder's share balance on a ledger.
func (m *MultiVault) GetShares(holder common.Address, termID, curveID uint64) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.peekVault(termID, curveID); ok {
		return new(big.Int).Set(v.balanceOf(holder))
	}
	return new(big.Int)
}

// MaxRedeem returns the largest share amount holder can currently burn
// without breaching the floor.
func (m *MultiVault) MaxRedeem(holder common.Address, termID, curveID uint64) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.peekVault(termID, curveID)
	if !ok {
		return new(big.Int)
	}
	balance := new(big.Int).Set(v.balanceOf(holder))
	headroom := new(big.Int).Sub(v.totalShares, v.ghostShares)
	if balance.Cmp(headroom) > 0 {
		return headroom
	}
	return balance
}

// IsTriple reports whether id identifies a triple or counter vault term.
func (m *MultiVault) IsTriple(id uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isTripleVault(id)
}

// GetTriple returns the constituent atom ids of a triple-side term.
func (m *MultiVault) GetTriple(id uint64) ([3]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.constituentsOf(id)
	if !ok {
		return [3]uint64{}, ErrUnknownTerm
	}
	return c, nil
}

// GetAtomData returns an atom's payload.
func (m *MultiVault) GetAtomData(id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.atoms[id]
	if !ok {
		return nil, ErrUnknownTerm
	}
	return append([]byte(nil), data...), nil
}

// AtomWallet returns the deterministic wallet bound to an atom.
func (m *MultiVault) AtomWallet(id uint64) (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wallet, ok := m.atomWallets[id]
	if !ok {
		return common.Address{}, ErrUnknownTerm
	}
	return wallet, nil
}

// AtomCost returns the minimum value for CreateAtom.
func (m *MultiVault) AtomCost() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.AtomCost()
}

// TripleCost returns the minimum value for CreateTriple.
func (m *MultiVault) TripleCost() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.TripleCost()
}

// TermCount returns the number of created terms (counter-terms not
// included).
func (m *MultiVault) TermCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.termCount
}

// Paused reports the emergency state.
func (m *MultiVault) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}
