// Copyright © 2020 AMIS Technologies
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry implements the deterministic, collision-free
// AgentID -> prime mapping described in spec.md §4.4.
package registry

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/getamis/sigha/cryptoctx"
	"github.com/getamis/sigha/logger"
	"github.com/getamis/sigha/numeric"
)

var (
	// ErrInvalidArgument is returned when registering an empty id.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotRegistered is returned when Get is called for an unknown id.
	ErrNotRegistered = errors.New("id not registered")
)

// Entry is one (id, prime) pair, as returned by Iter.
type Entry struct {
	ID    string
	Prime *big.Int
}

// Registry is a thread-safe, deterministic AgentID -> prime cache. Its
// "at-most-one computation per id" concurrency guarantee (spec.md §5) is
// implemented with golang.org/x/sync/singleflight, the same package the
// teacher's dependency graph already pulls in transitively through libp2p.
type Registry struct {
	ctx *cryptoctx.Context

	mu     sync.RWMutex
	primes map[string]*big.Int

	group singleflight.Group
}

// New creates a Registry bound to ctx. ctx supplies the registry prime bit
// length and the Miller-Rabin round count used by hash_to_prime.
func New(ctx *cryptoctx.Context) *Registry {
	return &Registry{
		ctx:    ctx,
		primes: make(map[string]*big.Int),
	}
}

// Register deterministically maps id to an odd prime of ctx.PrimeBits() bits
// and caches the result. Concurrent calls for the same id converge on a
// single computation and the same answer (spec.md §4.4, §5).
func (r *Registry) Register(id string) (*big.Int, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	if p, ok := r.lookup(id); ok {
		return p, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if p, ok := r.lookup(id); ok {
			return p, nil
		}
		logger.Logger().Debug("registry cache miss, computing prime", "id", id)
		p, err := numeric.HashToPrime([]byte(id), r.ctx.PrimeBits(), r.ctx.MillerRabinRounds())
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.primes[id] = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

func (r *Registry) lookup(id string) (*big.Int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.primes[id]
	return p, ok
}

// Get returns the prime already registered for id, or ErrNotRegistered.
func (r *Registry) Get(id string) (*big.Int, error) {
	if p, ok := r.lookup(id); ok {
		return p, nil
	}
	return nil, ErrNotRegistered
}

// Iter returns every (id, prime) pair registered so far, in unspecified
// order (spec.md §4.4: "insertion-order irrelevant; otherwise unspecified").
func (r *Registry) Iter() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.primes))
	for id, p := range r.primes {
		out = append(out, Entry{ID: id, Prime: p})
	}
	return out
}

// Digest hashes the sorted-by-id (id, prime) pairs, giving Iter's otherwise
// unspecified order a canonical, deterministic representation.
func (r *Registry) Digest() [32]byte {
	entries := r.Iter()
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var buf []byte
	for _, e := range entries {
		buf = append(buf, lengthPrefixed([]byte(e.ID))...)
		buf = append(buf, lengthPrefixed([]byte(numeric.CanonicalDecimal(e.Prime)))...)
	}
	return numeric.Sum256(buf)
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	out[0] = byte(len(b))
	out[1] = byte(len(b) >> 8)
	out[2] = byte(len(b) >> 16)
	out[3] = byte(len(b) >> 24)
	copy(out[4:], b)
	return out
}
