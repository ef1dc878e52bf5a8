// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

// EventType tags journal records.
type EventType string

const (
	EventAtomCreated        EventType = "AtomCreated"
	EventTripleCreated      EventType = "TripleCreated"
	EventDeposited          EventType = "Deposited"
	EventRedeemed           EventType = "Redeemed"
	EventApprovalUpdated    EventType = "ApprovalTypeUpdated"
	EventPaused             EventType = "Paused"
	EventUnpaused           EventType = "Unpaused"
	EventConfigUpdated      EventType = "ConfigUpdated"
	EventOperationScheduled EventType = "OperationScheduled"
	EventOperationCancelled EventType = "OperationCancelled"
	EventOperationExecuted  EventType = "OperationExecuted"
)

// Event is one journal record. Data holds the type-specific payload.
type Event struct {
	Sequence uint64          `json:"sequence"`
	Type     EventType       `json:"type"`
	Time     int64           `json:"time"`
	Data     json.RawMessage `json:"data"`
}

// AtomCreatedEvent records a new atom and its wallet binding.
type AtomCreatedEvent struct {
	Creator    common.Address `json:"creator"`
	AtomID     uint64         `json:"atomId"`
	AtomWallet common.Address `json:"atomWallet"`
	DataHash   common.Hash    `json:"dataHash"`
}

// TripleCreatedEvent records a new triple and its counter-term.
type TripleCreatedEvent struct {
	Creator   common.Address `json:"creator"`
	TripleID  uint64         `json:"tripleId"`
	CounterID uint64         `json:"counterId"`
	Subject   uint64         `json:"subject"`
	Predicate uint64         `json:"predicate"`
	Object    uint64         `json:"object"`
}

// VaultTotals snapshots one ledger side of a mutation.
type VaultTotals struct {
	TotalAssets *big.Int `json:"totalAssets"`
	TotalShares *big.Int `json:"totalShares"`
}

// DepositedEvent records a deposit with its full fee breakdown and
// before/after ledger totals for off-chain price-history reconstruction.
type DepositedEvent struct {
	Sender          common.Address `json:"sender"`
	Receiver        common.Address `json:"receiver"`
	TermID          uint64         `json:"termId"`
	CurveID         uint64         `json:"curveId"`
	Amount          *big.Int       `json:"amount"`
	AssetsAfterFees *big.Int       `json:"assetsAfterFees"`
	SharesMinted    *big.Int       `json:"sharesMinted"`
	Fees            FeeBreakdown   `json:"fees"`
	Before          VaultTotals    `json:"before"`
	After           VaultTotals    `json:"after"`
	IsTriple        bool           `json:"isTriple"`
}

// RedeemedEvent records a redemption with its fee breakdown and ledger
// snapshots.
type RedeemedEvent struct {
	Sender       common.Address `json:"sender"`
	Holder       common.Address `json:"holder"`
	TermID       uint64         `json:"termId"`
	CurveID      uint64         `json:"curveId"`
	SharesBurned *big.Int       `json:"sharesBurned"`
	GrossAssets  *big.Int       `json:"grossAssets"`
	NetAssets    *big.Int       `json:"netAssets"`
	Fees         FeeBreakdown   `json:"fees"`
	Before       VaultTotals    `json:"before"`
	After        VaultTotals    `json:"after"`
}

// ApprovalUpdatedEvent records a delegation change.
type ApprovalUpdatedEvent struct {
	Holder   common.Address `json:"holder"`
	Sender   common.Address `json:"sender"`
	Approval ApprovalTypes  `json:"approval"`
}

// ConfigUpdatedEvent records an immediate admin setter.
type ConfigUpdatedEvent struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// TimelockEvent records a scheduled-operation transition.
type TimelockEvent struct {
	Operation string      `json:"operation"`
	Hash      common.Hash `json:"hash"`
	ReadyAt   int64       `json:"readyAt,omitempty"`
}

var journalKeyPrefix = []byte("evnt")

// Journal is the append-only structured event log. Records are stored
// as JSON under big-endian sequence keys so an iterator replays them in
// order.
type Journal struct {
	mu  sync.Mutex
	db  database.Database
	seq uint64
}

// NewJournal returns a journal backed by db.
func NewJournal(db database.Database) *Journal {
	return &Journal{db: db}
}

func journalKey(seq uint64) []byte {
	key := make([]byte, len(journalKeyPrefix)+8)
	copy(key, journalKeyPrefix)
	binary.BigEndian.PutUint64(key[len(journalKeyPrefix):], seq)
	return key
}

// Append stores one event and assigns its sequence number.
func (j *Journal) Append(eventType EventType, now int64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	evt := Event{
		Sequence: j.seq,
		Type:     eventType,
		Time:     now,
		Data:     data,
	}
	blob, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}
	if err := j.db.Put(journalKey(j.seq), blob); err != nil {
		return fmt.Errorf("persist journal record %d: %w", j.seq, err)
	}
	j.seq++
	return nil
}

// Get returns the event stored under seq.
func (j *Journal) Get(seq uint64) (Event, error) {
	blob, err := j.db.Get(journalKey(seq))
	if err != nil {
		return Event{}, err
	}
	var evt Event
	if err := json.Unmarshal(blob, &evt); err != nil {
		return Event{}, fmt.Errorf("decode journal record %d: %w", seq, err)
	}
	return evt, nil
}

// Len returns the number of appended events.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// emit journals an event. Journal failures are logged and swallowed:
// event history is an observability surface, not part of the accounting
// state, and must not roll back a committed operation.
func (m *MultiVault) emit(eventType EventType, payload any) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(eventType, m.clock(), payload); err != nil {
		m.log.Warn("journal append failed", "type", string(eventType), "err", err)
	}
}
