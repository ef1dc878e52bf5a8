// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/multivault/curves"
)

// mockStateDB is an in-memory native balance ledger.
type mockStateDB struct {
	balances map[common.Address]*uint256.Int
}

func newMockStateDB() *mockStateDB {
	return &mockStateDB{balances: make(map[common.Address]*uint256.Int)}
}

func (s *mockStateDB) GetBalance(addr common.Address) *uint256.Int {
	if b, ok := s.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (s *mockStateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	b, ok := s.balances[addr]
	if !ok {
		b = new(uint256.Int)
		s.balances[addr] = b
	}
	b.Add(b, amount)
}

func (s *mockStateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	b, ok := s.balances[addr]
	if !ok {
		b = new(uint256.Int)
		s.balances[addr] = b
	}
	b.Sub(b, amount)
}

type walletNotification struct {
	atomID uint64
	wallet common.Address
	data   []byte
}

type mockWalletFactory struct {
	notifications []walletNotification
}

func (f *mockWalletFactory) NotifyAtomCreated(atomID uint64, wallet common.Address, data []byte) {
	f.notifications = append(f.notifications, walletNotification{atomID: atomID, wallet: wallet, data: data})
}

var (
	engineAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	admin      = common.HexToAddress("0xad111111111111111111111111111111111111ad")
	treasury   = common.HexToAddress("0x7e111111111111111111111111111111111111e7")
	alice      = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob        = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	carol      = common.HexToAddress("0xca40000000000000000000000000000000000003")
)

type testEnv struct {
	engine  *MultiVault
	state   *mockStateDB
	factory *mockWalletFactory
	now     int64

	linearID      uint64
	progressiveID uint64
	seriesID      uint64
}

func testConfig(t *testing.T) (Config, uint64, uint64, uint64) {
	t.Helper()
	registry := curves.NewRegistry()
	linearID, err := registry.Register(curves.NewLinearCurve())
	require.NoError(t, err)
	progressive, err := curves.NewProgressiveCurve(curves.Scale)
	require.NoError(t, err)
	progressiveID, err := registry.Register(progressive)
	require.NoError(t, err)
	series, err := curves.NewArithmeticSeriesCurve(new(big.Int).Mul(big.NewInt(2), curves.Scale), curves.Scale)
	require.NoError(t, err)
	seriesID, err := registry.Register(series)
	require.NoError(t, err)

	cfg := Config{
		General: GeneralConfig{
			Admin:             admin,
			Treasury:          treasury,
			FeeDenominator:    10_000,
			MinDeposit:        big.NewInt(1_000),
			MinShare:          big.NewInt(1_000_000),
			AtomDataMaxLength: 256,
			DecimalPrecision:  new(big.Int).Set(curves.Scale),
			MinDelay:          3_600,
		},
		Atom: AtomConfig{
			AtomCreationProtocolFee:        big.NewInt(100_000),
			AtomWalletInitialDepositAmount: new(big.Int),
		},
		Triple: TripleConfig{
			TripleCreationProtocolFee:         big.NewInt(200_000),
			TotalAtomDepositsOnTripleCreation: big.NewInt(300_000),
			AtomDepositFractionForTriple:      900,
		},
		Wallet: WalletConfig{
			AtomWarden: common.HexToAddress("0x3a44000000000000000000000000000000000001"),
		},
		BondingCurve: BondingCurveConfig{
			Registry:       registry,
			DefaultCurveID: linearID,
		},
		Fees: VaultFees{
			EntryFee:    500,
			ExitFee:     500,
			ProtocolFee: 100,
		},
	}
	return cfg, linearID, progressiveID, seriesID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, linearID, progressiveID, seriesID := testConfig(t)
	env := &testEnv{
		state:         newMockStateDB(),
		factory:       &mockWalletFactory{},
		now:           1_700_000_000,
		linearID:      linearID,
		progressiveID: progressiveID,
		seriesID:      seriesID,
	}
	engine, err := New(engineAddr, cfg, env.state, env.factory, nil, nil, func() int64 { return env.now })
	require.NoError(t, err)
	env.engine = engine

	funding := uint256.MustFromBig(new(big.Int).Mul(big.NewInt(100), curves.Scale))
	for _, addr := range []common.Address{alice, bob, carol} {
		env.state.AddBalance(addr, funding)
	}
	return env
}

func (env *testEnv) balance(addr common.Address) *big.Int {
	return env.state.GetBalance(addr).ToBig()
}

// createAtom creates an atom funded with AtomCost plus extra.
func (env *testEnv) createAtom(t *testing.T, creator common.Address, data string, extra int64) uint64 {
	t.Helper()
	value := new(big.Int).Add(env.engine.AtomCost(), big.NewInt(extra))
	id, err := env.engine.CreateAtom(creator, []byte(data), value)
	require.NoError(t, err)
	return id
}

// createTriple creates a triple over three fresh atoms funded with
// TripleCost plus extra.
func (env *testEnv) createTriple(t *testing.T, creator common.Address, extra int64) (uint64, [3]uint64) {
	t.Helper()
	atoms := [3]uint64{
		env.createAtom(t, creator, "subject", 0),
		env.createAtom(t, creator, "predicate", 0),
		env.createAtom(t, creator, "object", 0),
	}
	value := new(big.Int).Add(env.engine.TripleCost(), big.NewInt(extra))
	id, err := env.engine.CreateTriple(creator, atoms[0], atoms[1], atoms[2], value)
	require.NoError(t, err)
	return id, atoms
}

// =========================================================================
// Construction
// =========================================================================

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg, _, _, _ := testConfig(t)
	cfg.General.FeeDenominator = 0
	_, err := New(engineAddr, cfg, newMockStateDB(), nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg, _, _, _ = testConfig(t)
	cfg.Fees.EntryFee = 1_001 // above denominator/10
	_, err = New(engineAddr, cfg, newMockStateDB(), nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidFee)

	cfg, _, _, _ = testConfig(t)
	_, err = New(engineAddr, cfg, nil, nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCostsFollowConfig(t *testing.T) {
	env := newTestEnv(t)
	// creation fee + wallet seed + ghost share assets
	require.Equal(t, big.NewInt(1_100_000), env.engine.AtomCost())
	// creation fee + static atom deposits + two ghost seeds
	require.Equal(t, big.NewInt(2_500_000), env.engine.TripleCost())
}

// =========================================================================
// Atom creation
// =========================================================================

func TestCreateAtom(t *testing.T) {
	env := newTestEnv(t)
	aliceBefore := env.balance(alice)

	// AtomCost plus a 1_000_000 personal deposit.
	id := env.createAtom(t, alice, "ipfs://atom-1", 1_000_000)
	require.Equal(t, uint64(1), id)
	require.Equal(t, uint64(1), env.engine.TermCount())

	// Protocol fee 1% of the personal deposit, ceil-rounded.
	totalAssets, totalShares := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_990_000), totalAssets) // ghost 1_000_000 + net 990_000
	require.Equal(t, big.NewInt(1_990_000), totalShares)
	require.Equal(t, big.NewInt(990_000), env.engine.GetShares(alice, id, env.linearID))
	require.Equal(t, big.NewInt(1_000_000), env.engine.GetShares(BurnAddress, id, env.linearID))

	// Treasury takes the static creation fee plus the deposit cut.
	require.Equal(t, big.NewInt(110_000), env.balance(treasury))
	// The engine custodies exactly the vault assets.
	require.Equal(t, big.NewInt(1_990_000), env.balance(engineAddr))
	spent := new(big.Int).Sub(aliceBefore, env.balance(alice))
	require.Equal(t, big.NewInt(2_100_000), spent)

	data, err := env.engine.GetAtomData(id)
	require.NoError(t, err)
	require.Equal(t, []byte("ipfs://atom-1"), data)

	wallet, err := env.engine.AtomWallet(id)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, wallet)

	require.Len(t, env.factory.notifications, 1)
	require.Equal(t, id, env.factory.notifications[0].atomID)
	require.Equal(t, wallet, env.factory.notifications[0].wallet)
}

func TestCreateAtomValidation(t *testing.T) {
	env := newTestEnv(t)
	env.createAtom(t, alice, "taken", 0)

	_, err := env.engine.CreateAtom(alice, []byte("taken"), env.engine.AtomCost())
	require.ErrorIs(t, err, ErrAtomExists)

	_, err = env.engine.CreateAtom(alice, nil, env.engine.AtomCost())
	require.ErrorIs(t, err, ErrAtomDataEmpty)

	long := make([]byte, 257)
	_, err = env.engine.CreateAtom(alice, long, env.engine.AtomCost())
	require.ErrorIs(t, err, ErrAtomDataTooLong)

	short := new(big.Int).Sub(env.engine.AtomCost(), big.NewInt(1))
	_, err = env.engine.CreateAtom(alice, []byte("cheap"), short)
	require.ErrorIs(t, err, ErrDepositBelowMinimum)

	poor := common.HexToAddress("0x9009000000000000000000000000000000000009")
	_, err = env.engine.CreateAtom(poor, []byte("broke"), env.engine.AtomCost())
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateAtomWalletSeed(t *testing.T) {
	cfg, linearID, _, _ := testConfig(t)
	cfg.Atom.AtomWalletInitialDepositAmount = big.NewInt(50_000)
	state := newMockStateDB()
	engine, err := New(engineAddr, cfg, state, nil, nil, nil, nil)
	require.NoError(t, err)
	state.AddBalance(alice, uint256.NewInt(10_000_000))

	id, err := engine.CreateAtom(alice, []byte("seeded"), engine.AtomCost())
	require.NoError(t, err)

	wallet, err := engine.AtomWallet(id)
	require.NoError(t, err)
	// Ghost assets and wallet seed both enter at a 1:1 rate.
	require.Equal(t, big.NewInt(50_000), engine.GetShares(wallet, id, linearID))
	totalAssets, totalShares := engine.GetVault(id, linearID)
	require.Equal(t, big.NewInt(1_050_000), totalAssets)
	require.Equal(t, big.NewInt(1_050_000), totalShares)
}

// =========================================================================
// Triple creation
// =========================================================================

func TestCreateTriple(t *testing.T) {
	env := newTestEnv(t)
	id, atoms := env.createTriple(t, alice, 1_000_000)
	require.Equal(t, uint64(4), id)

	counter := CounterID(id)
	require.True(t, env.engine.IsTriple(id))
	require.True(t, env.engine.IsTriple(counter))
	got, err := env.engine.GetTriple(id)
	require.NoError(t, err)
	require.Equal(t, atoms, got)
	got, err = env.engine.GetTriple(counter)
	require.NoError(t, err)
	require.Equal(t, atoms, got)

	// Personal deposit 1_000_000: 1% protocol fee off the top, then 9%
	// of the net fanned out in equal thirds.
	totalAssets, totalShares := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_900_900), totalAssets) // ghost + (990_000 - 89_100)
	require.Equal(t, big.NewInt(1_900_900), totalShares)
	require.Equal(t, big.NewInt(900_900), env.engine.GetShares(alice, id, env.linearID))

	// Counter vault holds only its ghost seed.
	counterAssets, counterShares := env.engine.GetVault(counter, env.linearID)
	require.Equal(t, big.NewInt(1_000_000), counterAssets)
	require.Equal(t, big.NewInt(1_000_000), counterShares)
	require.Zero(t, env.engine.GetShares(alice, counter, env.linearID).Sign())

	// Each atom got a 100_000 static donation plus a 29_700 stake. The
	// fresh atom vaults hold only ghosts, so no entry fee applies; the
	// donation landed before the stake, so 29_700 buys 27_000 shares.
	for _, atomID := range atoms {
		atomAssets, atomShares := env.engine.GetVault(atomID, env.linearID)
		require.Equal(t, big.NewInt(1_129_700), atomAssets)
		require.Equal(t, big.NewInt(1_027_000), atomShares)
		require.Equal(t, big.NewInt(27_000), env.engine.GetShares(alice, atomID, env.linearID))
	}

	// Custody covers every vault: triple + counter + three atoms.
	custody := new(big.Int).Add(big.NewInt(1_900_900), big.NewInt(1_000_000))
	custody.Add(custody, big.NewInt(3*1_129_700))
	// Atom creations put 3 * 1_000_000 of ghost assets in custody too,
	// already counted inside the per-atom totals above.
	require.Equal(t, custody, env.balance(engineAddr))
}

func TestCreateTripleValidation(t *testing.T) {
	env := newTestEnv(t)
	id, atoms := env.createTriple(t, alice, 0)

	_, err := env.engine.CreateTriple(alice, atoms[0], atoms[1], atoms[2], env.engine.TripleCost())
	require.ErrorIs(t, err, ErrTripleExists)

	_, err = env.engine.CreateTriple(alice, 99, atoms[1], atoms[2], env.engine.TripleCost())
	require.ErrorIs(t, err, ErrUnknownTerm)

	// A triple id cannot be a constituent.
	_, err = env.engine.CreateTriple(alice, id, atoms[1], atoms[2], env.engine.TripleCost())
	require.ErrorIs(t, err, ErrTermNotAtom)

	short := new(big.Int).Sub(env.engine.TripleCost(), big.NewInt(1))
	_, err = env.engine.CreateTriple(alice, atoms[0], atoms[1], atoms[0], short)
	require.ErrorIs(t, err, ErrDepositBelowMinimum)
}

// =========================================================================
// Deposit
// =========================================================================

func TestDepositChargesEntryFee(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	// Vault holds real positions, so the entry fee applies: 1% protocol
	// off the top, 5% entry on the remainder.
	shares, err := env.engine.Deposit(bob, bob, id, env.linearID, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(940_500), shares)
	require.Equal(t, big.NewInt(940_500), env.engine.GetShares(bob, id, env.linearID))

	// Entry fee stays in the vault as assets.
	totalAssets, totalShares := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(2_980_000), totalAssets)
	require.Equal(t, big.NewInt(2_930_500), totalShares)
}

func TestDepositWaivesEntryFeeOnGhostOnlyVault(t *testing.T) {
	env := newTestEnv(t)
	// Created with no personal deposit: only ghost shares outstanding.
	id := env.createAtom(t, alice, "ghost-only", 0)

	shares, err := env.engine.Deposit(bob, bob, id, env.linearID, big.NewInt(1_000_000))
	require.NoError(t, err)
	// No entry fee: full 990_000 net converts.
	require.Equal(t, big.NewInt(990_000), shares)
}

func TestDepositGenesisOnSecondCurve(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 0)

	// First deposit on a curve carves the ghost floor from the minted
	// shares; no entry fee on an empty ledger.
	amount := new(big.Int).Mul(big.NewInt(2), curves.Scale)
	shares, err := env.engine.Deposit(bob, bob, id, env.progressiveID, amount)
	require.NoError(t, err)
	require.True(t, shares.Sign() > 0)

	totalAssets, totalShares := env.engine.GetVault(id, env.progressiveID)
	ghost := env.engine.GetShares(BurnAddress, id, env.progressiveID)
	require.Equal(t, big.NewInt(1_000_000), ghost)
	require.Equal(t, new(big.Int).Add(shares, ghost), totalShares)
	// 1% protocol fee off the top, the rest backs the vault.
	wantAssets := new(big.Int).Sub(amount, big.NewInt(20_000_000_000_000_000))
	require.Equal(t, wantAssets, totalAssets)

	// The linear ledger of the same atom is untouched.
	linearAssets, _ := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_000_000), linearAssets)
}

func TestDepositGenesisGuards(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 0)

	// Below the genesis deposit floor.
	_, err := env.engine.Deposit(bob, bob, id, env.progressiveID, big.NewInt(500))
	require.ErrorIs(t, err, ErrDepositBelowMinimum)

	// Above the floor but too few shares to cover the ghost seed: at two
	// whole assets per share, 990 wei of net deposit mints under the
	// 1_000_000 share floor.
	_, err = env.engine.Deposit(bob, bob, id, env.seriesID, big.NewInt(1_000))
	require.ErrorIs(t, err, ErrDepositBelowMinimum)
}

func TestDepositValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 0)

	_, err := env.engine.Deposit(bob, bob, id, env.linearID, new(big.Int))
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = env.engine.Deposit(bob, bob, 42, env.linearID, big.NewInt(10_000))
	require.ErrorIs(t, err, ErrUnknownTerm)

	_, err = env.engine.Deposit(bob, bob, id, 9, big.NewInt(10_000))
	require.ErrorIs(t, err, curves.ErrUnknownCurve)

	whale := new(big.Int).Mul(big.NewInt(1_000), curves.Scale)
	_, err = env.engine.Deposit(bob, bob, id, env.linearID, whale)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDepositApproval(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 0)

	_, err := env.engine.Deposit(bob, alice, id, env.linearID, big.NewInt(100_000))
	require.ErrorIs(t, err, ErrSenderNotApproved)

	require.ErrorIs(t, env.engine.ApproveSender(alice, alice, ApprovalDeposit), ErrSelfApproval)
	require.NoError(t, env.engine.ApproveSender(alice, bob, ApprovalDeposit))
	require.Equal(t, ApprovalDeposit, env.engine.GetApproval(alice, bob))

	bobBefore := env.balance(bob)
	shares, err := env.engine.Deposit(bob, alice, id, env.linearID, big.NewInt(100_000))
	require.NoError(t, err)
	// Bob pays, alice holds.
	require.Equal(t, shares, env.engine.GetShares(alice, id, env.linearID))
	require.Zero(t, env.engine.GetShares(bob, id, env.linearID).Sign())
	require.Equal(t, big.NewInt(100_000), new(big.Int).Sub(bobBefore, env.balance(bob)))

	// Deposit approval does not cover redemption.
	_, err = env.engine.Redeem(bob, alice, id, env.linearID, shares)
	require.ErrorIs(t, err, ErrSenderNotApproved)

	// Revocation is immediate.
	require.NoError(t, env.engine.ApproveSender(alice, bob, ApprovalNone))
	_, err = env.engine.Deposit(bob, alice, id, env.linearID, big.NewInt(100_000))
	require.ErrorIs(t, err, ErrSenderNotApproved)
}

// =========================================================================
// Triple deposits
// =========================================================================

func TestTripleDepositFansOutToAtoms(t *testing.T) {
	env := newTestEnv(t)
	id, atoms := env.createTriple(t, alice, 0)

	atomAssetsBefore := make(map[uint64]*big.Int)
	for _, atomID := range atoms {
		assets, _ := env.engine.GetVault(atomID, env.linearID)
		atomAssetsBefore[atomID] = assets
	}

	shares, err := env.engine.Deposit(bob, bob, id, env.linearID, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, shares.Sign() > 0)

	// 9% of the post-protocol net splits into thirds of 29_700.
	for _, atomID := range atoms {
		assets, _ := env.engine.GetVault(atomID, env.linearID)
		grown := new(big.Int).Sub(assets, atomAssetsBefore[atomID])
		require.Equal(t, big.NewInt(29_700), grown)
		require.True(t, env.engine.GetShares(bob, atomID, env.linearID).Sign() > 0)
	}

	// Triple vault kept net minus fraction; ghost-only vault, no entry.
	totalAssets, _ := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_900_900), totalAssets)
}

func TestCounterStakeConflict(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.createTriple(t, alice, 1_000_000)
	counter := CounterID(id)

	// Alice holds positive shares from creation.
	_, err := env.engine.Deposit(alice, alice, counter, env.linearID, big.NewInt(100_000))
	require.ErrorIs(t, err, ErrHasCounterStake)

	// Carol takes the counter side first, then the positive side locks.
	_, err = env.engine.Deposit(carol, carol, counter, env.linearID, big.NewInt(100_000))
	require.NoError(t, err)
	_, err = env.engine.Deposit(carol, carol, id, env.linearID, big.NewInt(100_000))
	require.ErrorIs(t, err, ErrHasCounterStake)

	// Exiting the counter position unlocks the positive side.
	counterShares := env.engine.GetShares(carol, counter, env.linearID)
	_, err = env.engine.Redeem(carol, carol, counter, env.linearID, counterShares)
	require.NoError(t, err)
	_, err = env.engine.Deposit(carol, carol, id, env.linearID, big.NewInt(100_000))
	require.NoError(t, err)
}

func TestCounterStakeConflictSpansCurves(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.createTriple(t, alice, 1_000_000)
	counter := CounterID(id)

	// Carol takes the counter side priced by the progressive curve.
	amount := new(big.Int).Mul(big.NewInt(2), curves.Scale)
	_, err := env.engine.Deposit(carol, carol, counter, env.progressiveID, amount)
	require.NoError(t, err)

	// The positive side is locked under every curve, not just the one
	// the counter stake was priced on.
	_, err = env.engine.Deposit(carol, carol, id, env.linearID, big.NewInt(100_000))
	require.ErrorIs(t, err, ErrHasCounterStake)
	_, err = env.engine.Deposit(carol, carol, id, env.progressiveID, amount)
	require.ErrorIs(t, err, ErrHasCounterStake)

	// Exiting the counter position unlocks both.
	counterShares := env.engine.GetShares(carol, counter, env.progressiveID)
	_, err = env.engine.Redeem(carol, carol, counter, env.progressiveID, counterShares)
	require.NoError(t, err)
	_, err = env.engine.Deposit(carol, carol, id, env.linearID, big.NewInt(100_000))
	require.NoError(t, err)
}

// =========================================================================
// Redeem
// =========================================================================

func TestRedeemFullPositionWaivesExitFee(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)
	aliceBefore := env.balance(alice)

	require.Equal(t, big.NewInt(990_000), env.engine.MaxRedeem(alice, id, env.linearID))

	// Redemption lands exactly on the ghost floor: only the 1% protocol
	// fee applies.
	net, err := env.engine.Redeem(alice, alice, id, env.linearID, big.NewInt(990_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(980_100), net)
	require.Equal(t, net, new(big.Int).Sub(env.balance(alice), aliceBefore))

	totalAssets, totalShares := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_000_000), totalAssets)
	require.Equal(t, big.NewInt(1_000_000), totalShares)
	require.Zero(t, env.engine.GetShares(alice, id, env.linearID).Sign())
	require.Zero(t, env.engine.MaxRedeem(alice, id, env.linearID).Sign())
}

func TestRedeemPartialChargesExitFee(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	// 500_000 shares at rate 1: gross 500_000, 1% protocol, 5% exit on
	// the remainder, ceil-rounded.
	net, err := env.engine.Redeem(alice, alice, id, env.linearID, big.NewInt(500_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(470_250), net)

	// The exit fee stays in the vault and appreciates remaining shares.
	totalAssets, totalShares := env.engine.GetVault(id, env.linearID)
	require.Equal(t, big.NewInt(1_514_750), totalAssets)
	require.Equal(t, big.NewInt(1_490_000), totalShares)
}

func TestRedeemValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	_, err := env.engine.Redeem(alice, alice, id, env.linearID, new(big.Int))
	require.ErrorIs(t, err, ErrZeroShares)

	_, err = env.engine.Redeem(alice, alice, 42, env.linearID, big.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownTerm)

	_, err = env.engine.Redeem(alice, alice, id, env.linearID, big.NewInt(990_001))
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = env.engine.Redeem(bob, bob, id, env.linearID, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)

	// The ghost floor itself is visible through the preview mirror.
	_, totalShares := env.engine.GetVault(id, env.linearID)
	_, _, err = env.engine.PreviewRedeem(id, env.linearID, totalShares)
	require.ErrorIs(t, err, ErrBreachesShareFloor)
}

func TestRedeemWithApproval(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	require.NoError(t, env.engine.ApproveSender(alice, bob, ApprovalRedemption))
	aliceBefore := env.balance(alice)
	bobBefore := env.balance(bob)

	net, err := env.engine.Redeem(bob, alice, id, env.linearID, big.NewInt(100_000))
	require.NoError(t, err)
	// Proceeds go to the position holder, not the approved sender.
	require.Equal(t, net, new(big.Int).Sub(env.balance(alice), aliceBefore))
	require.Equal(t, bobBefore, env.balance(bob))
}

// =========================================================================
// Previews match execution
// =========================================================================

func TestPreviewsMatchExecution(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	amount := big.NewInt(777_777)
	wantShares, depositFees, err := env.engine.PreviewDeposit(id, env.linearID, amount)
	require.NoError(t, err)
	require.True(t, depositFees.ProtocolFee.Sign() > 0)
	require.True(t, depositFees.EntryFee.Sign() > 0)

	shares, err := env.engine.Deposit(bob, bob, id, env.linearID, amount)
	require.NoError(t, err)
	require.Equal(t, wantShares, shares)

	wantNet, redeemFees, err := env.engine.PreviewRedeem(id, env.linearID, shares)
	require.NoError(t, err)
	require.True(t, redeemFees.ExitFee.Sign() > 0)

	net, err := env.engine.Redeem(bob, bob, id, env.linearID, shares)
	require.NoError(t, err)
	require.Equal(t, wantNet, net)
}

func TestPreviewMintAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	// Raw curve mirrors without the fee stages.
	assets, err := env.engine.PreviewMint(id, env.linearID, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), assets)

	burned, err := env.engine.PreviewWithdraw(id, env.linearID, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000), burned)

	price, err := env.engine.CurrentSharePrice(id, env.linearID)
	require.NoError(t, err)
	require.Equal(t, curves.Scale, price)
}

// =========================================================================
// Emergency pause
// =========================================================================

func TestEmergencyRedemption(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	require.ErrorIs(t, env.engine.Pause(bob), ErrNotAdmin)
	require.NoError(t, env.engine.Pause(admin))
	require.True(t, env.engine.Paused())
	require.ErrorIs(t, env.engine.Pause(admin), ErrPaused)

	_, err := env.engine.CreateAtom(alice, []byte("blocked"), env.engine.AtomCost())
	require.ErrorIs(t, err, ErrPaused)
	_, err = env.engine.Deposit(alice, alice, id, env.linearID, big.NewInt(10_000))
	require.ErrorIs(t, err, ErrPaused)

	// Redemption stays open with every fee waived: principal out equals
	// gross value.
	net, err := env.engine.Redeem(alice, alice, id, env.linearID, big.NewInt(990_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(990_000), net)

	require.ErrorIs(t, env.engine.Unpause(bob), ErrNotAdmin)
	require.NoError(t, env.engine.Unpause(admin))
	require.ErrorIs(t, env.engine.Unpause(admin), ErrNotPaused)

	_, err = env.engine.Deposit(alice, alice, id, env.linearID, big.NewInt(10_000))
	require.NoError(t, err)
}

// =========================================================================
// Failure atomicity
// =========================================================================

func TestFailedOperationsLeaveStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	id := env.createAtom(t, alice, "atom", 1_000_000)

	assetsBefore, sharesBefore := env.engine.GetVault(id, env.linearID)
	custodyBefore := env.balance(engineAddr)
	treasuryBefore := env.balance(treasury)

	_, err := env.engine.Deposit(bob, alice, id, env.linearID, big.NewInt(50_000))
	require.ErrorIs(t, err, ErrSenderNotApproved)
	_, err = env.engine.Deposit(bob, bob, 42, env.linearID, big.NewInt(50_000))
	require.ErrorIs(t, err, ErrUnknownTerm)
	_, err = env.engine.Redeem(bob, bob, id, env.linearID, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, err = env.engine.CreateAtom(bob, []byte("atom"), env.engine.AtomCost())
	require.ErrorIs(t, err, ErrAtomExists)

	assetsAfter, sharesAfter := env.engine.GetVault(id, env.linearID)
	require.Equal(t, assetsBefore, assetsAfter)
	require.Equal(t, sharesBefore, sharesAfter)
	require.Equal(t, custodyBefore, env.balance(engineAddr))
	require.Equal(t, treasuryBefore, env.balance(treasury))
	require.Equal(t, uint64(1), env.engine.TermCount())
}

// =========================================================================
// Conservation
// =========================================================================

func TestCustodyCoversAllVaults(t *testing.T) {
	env := newTestEnv(t)
	id, atoms := env.createTriple(t, alice, 1_000_000)

	_, err := env.engine.Deposit(bob, bob, id, env.linearID, big.NewInt(500_000))
	require.NoError(t, err)
	shares := env.engine.GetShares(bob, id, env.linearID)
	_, err = env.engine.Redeem(bob, bob, id, env.linearID, shares)
	require.NoError(t, err)

	sum := new(big.Int)
	for _, termID := range []uint64{id, CounterID(id), atoms[0], atoms[1], atoms[2]} {
		assets, _ := env.engine.GetVault(termID, env.linearID)
		sum.Add(sum, assets)
	}
	require.Equal(t, sum, env.balance(engineAddr))
}
