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

package scope

import (
	"math/big"
	"sync"

	"github.com/getamis/sigha/cryptoctx"
	"github.com/getamis/sigha/logger"
	"github.com/getamis/sigha/numeric"
	"github.com/getamis/sigha/accumulator"
)

// ParallelScope is an in-order fan-out/fan-in over a fixed base state. Each
// branch is a one-step evolution from the identical (baseT, baseDepth); the
// merge step exploits the commutativity of multiplication in Z_M* so branches
// may be added in any order, or computed concurrently, without affecting the
// merged result (spec.md §4.6, property 5: merge commutativity).
type ParallelScope struct {
	ctx     *cryptoctx.Context
	reg     accumulator.Registrar
	baseT   *big.Int
	baseDep uint32

	mu      sync.Mutex
	sumP    *big.Int
	count   int
	merged  bool
}

// NewParallel snapshots (baseT, baseDepth) for a fresh fan-out.
func NewParallel(ctx *cryptoctx.Context, reg accumulator.Registrar, baseT *big.Int, baseDepth uint32) *ParallelScope {
	return &ParallelScope{
		ctx:     ctx,
		reg:     reg,
		baseT:   new(big.Int).Set(baseT),
		baseDep: baseDepth,
		sumP:    big.NewInt(0),
	}
}

// AddBranch registers agentID's prime and folds it into the running branch
// sum. Per spec.md §5, concurrent AddBranch calls from multiple goroutines
// are safe and order-independent: only Σp_i and the branch count matter to
// Merge, and both are accumulated under a lock.
func (p *ParallelScope) AddBranch(agentID string) error {
	if agentID == "" {
		return ErrInvalidArgument
	}
	prime, err := p.reg.Register(agentID)
	if err != nil {
		return err
	}

	// branch_T_i is computed here as a pure function of (baseT, baseDepth,
	// prime) even though Merge never needs its value directly: it is the
	// quantity the spec names, and computing it validates that this branch's
	// one-step evolution is well-formed before folding the prime into sumP.
	if _, err := accumulator.EvolveStep(p.ctx, p.baseT, p.baseDep, prime); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.merged {
		return ErrAlreadyMerged
	}
	p.sumP.Add(p.sumP, prime)
	p.count++
	return nil
}

// Merge computes T_merged = (baseT^(Σp_i - (k-1)) * G^(k*H_exp(baseDepth+1)))
// mod M, the algebraically equivalent, inverse-free form of the product
// formula in spec.md §4.6. new_depth is always baseDepth+1: every branch
// shares one logical depth increment.
func (p *ParallelScope) Merge() (tMerged *big.Int, newDepth uint32, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		return nil, 0, ErrInvalidArgument
	}
	p.merged = true

	exponent := new(big.Int).Sub(p.sumP, big.NewInt(int64(p.count-1)))
	tPow, err := numeric.PowMod(p.baseT, exponent, p.ctx.M())
	if err != nil {
		return nil, 0, err
	}

	kH := new(big.Int).Mul(big.NewInt(int64(p.count)), accumulator.HExp(p.ctx, p.baseDep+1))
	gPow, err := numeric.PowMod(p.ctx.G(), kH, p.ctx.M())
	if err != nil {
		return nil, 0, err
	}

	result := new(big.Int).Mul(tPow, gPow)
	result.Mod(result, p.ctx.M())

	logger.Logger().Debug("parallel scope merged", "branch_count", p.count)
	return result, p.baseDep + 1, nil
}
