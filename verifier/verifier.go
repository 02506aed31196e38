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

// Package verifier implements C7: path replay (TraceInspector) and
// payload-anchored sealing (StateSealer), described in spec.md §4.7.
package verifier

import (
	"math/big"

	"github.com/getamis/sigha/accumulator"
	"github.com/getamis/sigha/cryptoctx"
)

// TraceInspector re-executes the update rule for a claimed path and checks it
// against a claimed final fingerprint. It holds no mutable state of its own;
// every call to VerifyPath replays into a disposable accumulator.
type TraceInspector struct {
	ctx *cryptoctx.Context
	reg accumulator.Registrar
}

// NewTraceInspector binds an inspector to ctx and reg. reg supplies the
// agent_id -> prime mapping the replay uses; it must be the same registry
// (or one backed by an identical hash_to_prime) the original trace used.
func NewTraceInspector(ctx *cryptoctx.Context, reg accumulator.Registrar) *TraceInspector {
	return &TraceInspector{ctx: ctx, reg: reg}
}

// VerifyPath replays path from (startingT, startingDepth), folding exactly as
// accumulator.Accumulator does when depth reaches max_depth, and compares the
// resulting T to claimedT. It returns (true, "ok") on equality and never
// returns an error: any replay failure is reported through reason instead, so
// callers get a uniform (bool, reason) result regardless of why a path fails
// to verify (spec.md §4.7).
func (ti *TraceInspector) VerifyPath(claimedT *big.Int, path []string, startingT *big.Int, startingDepth uint32) (bool, string) {
	if claimedT == nil || startingT == nil {
		return false, "invalid argument"
	}

	replay := accumulator.New(ti.ctx, ti.reg)
	if err := replay.SetState(startingT, startingDepth, nil); err != nil {
		return false, "starting state fails context invariants"
	}

	for _, id := range path {
		if id == "" {
			return false, "empty agent id at path position"
		}
		if err := replay.Update(id); err != nil {
			return false, "replay failed: " + err.Error()
		}
	}

	if replay.CurrentT().Cmp(claimedT) != 0 {
		return false, "final fingerprint mismatch"
	}
	return true, "ok"
}
