// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curves

import (
	"sync"
)

// NoCurveID is the reserved id 0: vaults created before curve support
// carry it, and it never resolves to a strategy.
const NoCurveID uint64 = 0

// Registry is the append-only catalogue of bonding curves. Ids are
// assigned sequentially from 1 and a registered curve is never mutated
// or removed: a vault that ever referenced a curve id must be able to
// reproduce its price history forever.
type Registry struct {
	mu     sync.RWMutex
	curves []BondingCurve
	byName map[string]uint64
}

// NewRegistry returns an empty curve registry.
func NewRegistry() *Registry {
	return &Registry{
		curves: make([]BondingCurve, 0),
		byName: make(map[string]uint64),
	}
}

// Register appends a curve and returns its id. Registering the same
// strategy name twice fails: names are stable identities and reusing
// one would alias two ids to indistinguishable strategies.
func (r *Registry) Register(curve BondingCurve) (uint64, error) {
	if curve == nil {
		return NoCurveID, ErrNilCurve
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := curve.Name()
	if _, exists := r.byName[name]; exists {
		return NoCurveID, ErrCurveAlreadyRegistered
	}

	r.curves = append(r.curves, curve)
	id := uint64(len(r.curves))
	r.byName[name] = id
	return id, nil
}

// Resolve returns the curve registered under id.
func (r *Registry) Resolve(id uint64) (BondingCurve, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == NoCurveID || id > uint64(len(r.curves)) {
		return nil, ErrUnknownCurve
	}
	return r.curves[id-1], nil
}

// IDForName returns the id a strategy name was registered under.
func (r *Registry) IDForName(name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	return id, ok
}

// Count returns the number of registered curves.
func (r *Registry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return uint64(len(r.curves))
}
