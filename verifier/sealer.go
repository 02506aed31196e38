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

package verifier

import (
	"math/big"

	"github.com/getamis/sigha/accumulator"
	"github.com/getamis/sigha/logger"
	"github.com/getamis/sigha/numeric"
)

// Seal is an immutable binding of an accumulator's terminal state to a
// payload digest, anchored to the issuing context (spec.md §4.7).
type Seal struct {
	T             *big.Int
	Depth         uint32
	Snapshots     []accumulator.Snapshot
	PayloadDigest [32]byte
	Anchor        [32]byte
}

// StateSealer produces and checks Seal values. It is stateless; all state it
// touches lives on the Accumulator passed to Seal.
type StateSealer struct{}

// NewStateSealer returns a ready-to-use sealer.
func NewStateSealer() *StateSealer { return &StateSealer{} }

// Seal captures acc's current (T, depth, snapshots), binds them to payload
// via payload_digest and anchor, and transitions acc to SEALED. Once sealed,
// acc rejects further Update/UpdateWithCheck/SetState calls.
func (s *StateSealer) Seal(acc *accumulator.Accumulator, payload []byte) (*Seal, error) {
	t := acc.CurrentT()
	depth := acc.Depth()
	snapshots := acc.SnapshotChain()
	contextDigest := acc.Context().Digest()

	payloadDigest := numeric.Sum256(payload)
	anchor := numeric.Sum256(t.Bytes(), payloadDigest[:], contextDigest[:])

	if err := acc.Seal(); err != nil {
		logger.Logger().Warn("attempted to seal an already-sealed accumulator")
		return nil, err
	}

	logger.Logger().Debug("sealed accumulator state", "depth", depth, "snapshot_count", len(snapshots))
	return &Seal{
		T:             t,
		Depth:         depth,
		Snapshots:     snapshots,
		PayloadDigest: payloadDigest,
		Anchor:        anchor,
	}, nil
}

// Verify recomputes payload_digest and anchor from seal.T and payload and
// checks them against seal's recorded values. A single flipped bit in
// payload, or in seal's T, PayloadDigest or Anchor, breaks the equality;
// seal's Depth and Snapshots are not covered by the anchor and are not checked.
func (s *StateSealer) Verify(seal *Seal, payload []byte, contextDigest [32]byte) bool {
	if seal == nil || seal.T == nil {
		return false
	}
	payloadDigest := numeric.Sum256(payload)
	if payloadDigest != seal.PayloadDigest {
		return false
	}
	anchor := numeric.Sum256(seal.T.Bytes(), payloadDigest[:], contextDigest[:])
	return anchor == seal.Anchor
}
