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

// Package accumulator implements the evolution rule T <- T^p * G^H(d) (mod M),
// depth tracking, and snapshot folding described in spec.md §4.5.
package accumulator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/getamis/sigha/cryptoctx"
	"github.com/getamis/sigha/logger"
	"github.com/getamis/sigha/numeric"
)

// State is one of the two states an Accumulator can be in.
type State int

const (
	// Active accepts Update and UpdateWithCheck.
	Active State = iota
	// Sealed is read-only; only accessors and Seal-adjacent bookkeeping work.
	Sealed
)

func (s State) String() string {
	if s == Sealed {
		return "SEALED"
	}
	return "ACTIVE"
}

var (
	// ErrInvalidArgument is returned for malformed input, e.g. an empty agent id.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDegenerateState is returned by UpdateWithCheck when the post-update T
	// would fail gcd(T, M) == 1 or land in {0, 1}. The update is not applied.
	ErrDegenerateState = errors.New("degenerate accumulator state")
	// ErrSealed is returned when a mutation is attempted on a SEALED accumulator.
	ErrSealed = errors.New("accumulator is sealed")
	// ErrWeakParameters is returned by SetState when the supplied T fails
	// verify_in_group, or the supplied snapshot history is not a superset
	// extension of the current one (snapshots are append-only).
	ErrWeakParameters = errors.New("state fails context invariants")

	big0 = big.NewInt(0)
	big1 = big.NewInt(1)

	// lambdaBound is the 256-bit reduction width pinned for H_exp, per the
	// spec's recommendation in §4.5 and the Open Question in §9.
	lambdaBound = new(big.Int).Lsh(big1, 256)
)

// Snapshot is one archived (T_folded, depth_at_fold, fold_seed) tuple.
type Snapshot struct {
	T        *big.Int
	Depth    uint32
	FoldSeed [32]byte
}

// Accumulator is the mutable (T, depth, snapshots) tuple bound to a single
// CryptoContext and PrimeRegistry. It is not safe to share across processes,
// but is safe for concurrent callers within one (guarded by an internal mutex).
type Accumulator struct {
	ctx *cryptoctx.Context
	reg Registrar

	mu        sync.Mutex
	t         *big.Int
	depth     uint32
	snapshots []Snapshot
	state     State
}

// Registrar is the subset of *registry.Registry the accumulator depends on.
// Scopes and the accumulator both take this interface so tests can supply a
// fake without importing the concrete registry package.
type Registrar interface {
	Register(id string) (*big.Int, error)
}

// New creates an Accumulator bound to ctx and reg, starting at T0, depth 0,
// with no snapshots, in the Active state.
func New(ctx *cryptoctx.Context, reg Registrar) *Accumulator {
	return &Accumulator{
		ctx:   ctx,
		reg:   reg,
		t:     ctx.T0(),
		depth: 0,
		state: Active,
	}
}

// HExp computes H_exp(d) = SHA-256(context_digest || "depth:" || decimal(d))
// reduced mod a 256-bit bound, as a BigInt.
func HExp(ctx *cryptoctx.Context, d uint32) *big.Int {
	digest := ctx.Digest()
	h := numeric.Sum256(digest[:], []byte("depth:"), []byte(fmt.Sprintf("%d", d)))
	return new(big.Int).Mod(new(big.Int).SetBytes(h[:]), lambdaBound)
}

// EvolveStep is the pure one-step evolution rule T' = (T^p * G^H_exp(depth+1))
// mod M. It has no side effects and is the function both Accumulator.Update
// and the scope operators (spec.md §6 SwarmScope, ParallelScope) build on.
func EvolveStep(ctx *cryptoctx.Context, t *big.Int, depth uint32, prime *big.Int) (*big.Int, error) {
	tp, err := numeric.PowMod(t, prime, ctx.M())
	if err != nil {
		return nil, err
	}
	gh, err := numeric.PowMod(ctx.G(), HExp(ctx, depth+1), ctx.M())
	if err != nil {
		return nil, err
	}
	result := new(big.Int).Mul(tp, gh)
	result.Mod(result, ctx.M())
	return result, nil
}

// FoldSeed computes fold_seed = SHA-256(context_digest || "fold" || T_bytes || depth).
func FoldSeed(ctx *cryptoctx.Context, t *big.Int, depth uint32) [32]byte {
	digest := ctx.Digest()
	return numeric.Sum256(digest[:], []byte("fold"), t.Bytes(), []byte(fmt.Sprintf("%d", depth)))
}

// FoldRestart derives the post-fold starting state T = (T0 * G^(foldSeed mod
// lambdaBound)) mod M, cryptographically chaining the new chain to the
// archived one.
func FoldRestart(ctx *cryptoctx.Context, foldSeed [32]byte) (*big.Int, error) {
	exp := new(big.Int).Mod(new(big.Int).SetBytes(foldSeed[:]), lambdaBound)
	gh, err := numeric.PowMod(ctx.G(), exp, ctx.M())
	if err != nil {
		return nil, err
	}
	result := new(big.Int).Mul(ctx.T0(), gh)
	result.Mod(result, ctx.M())
	return result, nil
}

// Update performs the core evolution step for agentID: registers its prime,
// advances T, increments depth, and folds into a snapshot once depth reaches
// ctx.MaxDepth() (spec.md §4.5).
func (a *Accumulator) Update(agentID string) error {
	return a.update(agentID, false)
}

// UpdateWithCheck behaves like Update but additionally verifies gcd(T', M) ==
// 1 and T' != 1 before committing; on failure it returns ErrDegenerateState
// and leaves (T, depth) unchanged.
func (a *Accumulator) UpdateWithCheck(agentID string) error {
	return a.update(agentID, true)
}

func (a *Accumulator) update(agentID string, check bool) error {
	if agentID == "" {
		return ErrInvalidArgument
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Sealed {
		return ErrSealed
	}

	p, err := a.reg.Register(agentID)
	if err != nil {
		return err
	}
	newT, err := EvolveStep(a.ctx, a.t, a.depth, p)
	if err != nil {
		return err
	}
	if check {
		if numeric.Gcd(newT, a.ctx.M()).Cmp(big1) != 0 || newT.Cmp(big0) == 0 || newT.Cmp(big1) == 0 {
			logger.Logger().Warn("rejected degenerate accumulator update", "agent_id", agentID)
			return ErrDegenerateState
		}
	}

	a.t = newT
	a.depth++
	if a.depth >= uint32(a.ctx.MaxDepth()) {
		if err := a.fold(); err != nil {
			return err
		}
	}
	return nil
}

// fold must be called with a.mu held.
func (a *Accumulator) fold() error {
	seed := FoldSeed(a.ctx, a.t, a.depth)
	a.snapshots = append(a.snapshots, Snapshot{
		T:        new(big.Int).Set(a.t),
		Depth:    a.depth,
		FoldSeed: seed,
	})
	restart, err := FoldRestart(a.ctx, seed)
	if err != nil {
		return err
	}
	logger.Logger().Debug("snapshot fold", "depth", a.depth, "snapshot_count", len(a.snapshots))
	a.t = restart
	a.depth = 0
	return nil
}

// CurrentT returns a copy of the current fingerprint.
func (a *Accumulator) CurrentT() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.t)
}

// Depth returns the current depth since the last fold.
func (a *Accumulator) Depth() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.depth
}

// SnapshotChain returns a copy of the archived snapshot sequence.
func (a *Accumulator) SnapshotChain() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.snapshots))
	for i, s := range a.snapshots {
		out[i] = Snapshot{T: new(big.Int).Set(s.T), Depth: s.Depth, FoldSeed: s.FoldSeed}
	}
	return out
}

// State returns the accumulator's current lifecycle state.
func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetState is the escape hatch used by deserialization, scope installation,
// and testing. It validates verify_in_group(T) and rejects snapshot
// histories that are not an append-only extension of the current one
// (spec.md §9: "this spec treats snapshots as append-only").
func (a *Accumulator) SetState(t *big.Int, depth uint32, snapshots []Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Sealed {
		return ErrSealed
	}
	if !a.ctx.VerifyInGroup(t) {
		return ErrWeakParameters
	}
	if len(snapshots) < len(a.snapshots) {
		return ErrWeakParameters
	}
	for i, existing := range a.snapshots {
		incoming := snapshots[i]
		if incoming.Depth != existing.Depth || incoming.FoldSeed != existing.FoldSeed || incoming.T.Cmp(existing.T) != 0 {
			return ErrWeakParameters
		}
	}

	a.t = new(big.Int).Set(t)
	a.depth = depth
	a.snapshots = make([]Snapshot, len(snapshots))
	for i, s := range snapshots {
		a.snapshots[i] = Snapshot{T: new(big.Int).Set(s.T), Depth: s.Depth, FoldSeed: s.FoldSeed}
	}
	return nil
}

// Seal transitions the accumulator from ACTIVE to SEALED. There is no
// reverse transition. Intended to be called only by the verifier package's
// StateSealer; exported so that package can live outside this one.
func (a *Accumulator) Seal() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Sealed {
		return ErrSealed
	}
	a.state = Sealed
	return nil
}

// Context returns the CryptoContext this accumulator is bound to.
func (a *Accumulator) Context() *cryptoctx.Context {
	return a.ctx
}
