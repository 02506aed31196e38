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

// Package scope implements the two composite update operators described in
// spec.md §4.6: SwarmScope, a sequenced sub-trace, and ParallelScope, a
// commutative fan-out/fan-in merge. Both build on accumulator.EvolveStep so
// their arithmetic can never drift from the accumulator's own evolution rule.
package scope

import (
	"errors"
	"math/big"

	"github.com/getamis/sigha/accumulator"
	"github.com/getamis/sigha/cryptoctx"
)

// ErrInvalidArgument is returned for malformed scope input, e.g. an empty
// agent id passed to Record or AddBranch, or a nil parent accumulator.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrAlreadyMerged is returned by AddBranch once Merge has been called on
// the same ParallelScope; a scope is single-use past that point.
var ErrAlreadyMerged = errors.New("parallel scope already merged")

// SwarmScope is a sub-accumulator bound to a parent (base_T, base_depth). It
// mirrors the full (T, depth, snapshots) state machine of accumulator.Accumulator
// locally and never touches the parent; the caller installs the result with
// the parent's SetState after Commit.
type SwarmScope struct {
	ctx *cryptoctx.Context
	acc *accumulator.Accumulator
}

// Enter clones (parent.CurrentT(), parent.Depth()) into a fresh local
// accumulator and carries the parent's existing snapshot history forward so
// a Commit that folds mid-scope produces an append-only chain when installed
// back into the parent.
func Enter(ctx *cryptoctx.Context, reg accumulator.Registrar, parent *accumulator.Accumulator) (*SwarmScope, error) {
	if parent == nil {
		return nil, ErrInvalidArgument
	}
	local := accumulator.New(ctx, reg)
	if err := local.SetState(parent.CurrentT(), parent.Depth(), parent.SnapshotChain()); err != nil {
		return nil, err
	}
	return &SwarmScope{ctx: ctx, acc: local}, nil
}

// Record applies one ordered, non-commutative update to the scope's private
// state using exactly the accumulator's update rule. Scope updates are not
// interchangeable: recording ids in a different order yields a different
// final T.
func (s *SwarmScope) Record(agentID string) error {
	if agentID == "" {
		return ErrInvalidArgument
	}
	return s.acc.Update(agentID)
}

// Commit returns the scope's final (T, depth, snapshots). The caller MUST
// install it into the parent via the parent accumulator's SetState; Commit
// itself never mutates anything outside the scope.
func (s *SwarmScope) Commit() (finalT *big.Int, depth uint32, snapshots []accumulator.Snapshot) {
	return s.acc.CurrentT(), s.acc.Depth(), s.acc.SnapshotChain()
}
