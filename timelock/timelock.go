// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package timelock implements the two-phase scheduled-operation state
// machine gating security-critical configuration changes: an operation
// is scheduled, becomes ready once the minimum delay has elapsed, and
// is consumed permanently on execution. Readiness is evaluated lazily
// by timestamp comparison; there are no timers.
package timelock

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
)

var (
	ErrNotScheduled     = errors.New("operation not scheduled")
	ErrNotReady         = errors.New("operation delay has not elapsed")
	ErrAlreadyScheduled = errors.New("operation already scheduled")
	ErrAlreadyExecuted  = errors.New("operation already executed")
)

// State is the lifecycle position of one operation hash.
type State uint8

const (
	// Unscheduled covers both never-scheduled and cancelled hashes.
	Unscheduled State = iota
	// Pending means scheduled but still inside the delay window.
	Pending
	// Ready means the delay has elapsed and Execute will succeed.
	Ready
	// Executed is terminal: the hash is permanently consumed.
	Executed
)

type operation struct {
	readyAt  int64
	executed bool
}

// Timelock tracks scheduled operations by hash. The hash is an opaque
// correlation key derived by callers from the operation name, the delay
// in effect at schedule time, and the payload. The ready time is fixed
// at schedule, so a later delay change cannot shorten an operation
// already in flight.
type Timelock struct {
	mu       sync.RWMutex
	minDelay int64
	clock    func() int64
	ops      map[common.Hash]*operation
}

// New returns a timelock with the given minimum delay in seconds.
func New(minDelay int64, clock func() int64) *Timelock {
	return &Timelock{
		minDelay: minDelay,
		clock:    clock,
		ops:      make(map[common.Hash]*operation),
	}
}

// MinDelay returns the delay applied to newly scheduled operations.
func (t *Timelock) MinDelay() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.minDelay
}

// SetMinDelay changes the delay for future schedules. Operations already
// scheduled keep their original ready time and identity.
func (t *Timelock) SetMinDelay(delay int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minDelay = delay
}

// Schedule records an operation and returns its ready time. An executed
// hash can never be rescheduled; a pending one must be cancelled first.
func (t *Timelock) Schedule(hash common.Hash) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op, ok := t.ops[hash]; ok {
		if op.executed {
			return 0, ErrAlreadyExecuted
		}
		return 0, ErrAlreadyScheduled
	}
	readyAt := t.clock() + t.minDelay
	t.ops[hash] = &operation{readyAt: readyAt}
	return readyAt, nil
}

// Cancel removes a pending or ready operation.
func (t *Timelock) Cancel(hash common.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[hash]
	if !ok {
		return ErrNotScheduled
	}
	if op.executed {
		return ErrAlreadyExecuted
	}
	delete(t.ops, hash)
	return nil
}

// Execute consumes a ready operation. The caller applies the actual
// configuration change only after Execute succeeds.
func (t *Timelock) Execute(hash common.Hash) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[hash]
	if !ok {
		return ErrNotScheduled
	}
	if op.executed {
		return ErrAlreadyExecuted
	}
	if t.clock() < op.readyAt {
		return ErrNotReady
	}
	op.executed = true
	return nil
}

// Status reports the lifecycle position of a hash.
func (t *Timelock) Status(hash common.Hash) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	op, ok := t.ops[hash]
	if !ok {
		return Unscheduled
	}
	if op.executed {
		return Executed
	}
	if t.clock() >= op.readyAt {
		return Ready
	}
	return Pending
}

// ReadyAt returns the ready time of a scheduled operation.
func (t *Timelock) ReadyAt(hash common.Hash) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	op, ok := t.ops[hash]
	if !ok {
		return 0, ErrNotScheduled
	}
	return op.readyAt, nil
}
