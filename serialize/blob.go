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

// Package serialize implements the §6 wire format: a single blob binding a
// CryptoContext, an accumulator's (T, depth, snapshots), and a footer of
// integrity digests. It is the only persistence format this module defines;
// everything else (CLI storage, databases) is external to it.
package serialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/getamis/sigha/accumulator"
	"github.com/getamis/sigha/cryptoctx"
	"github.com/getamis/sigha/numeric"
)

var (
	// ErrMalformed is returned when the blob is truncated, has a bad magic or
	// version, or a length prefix runs past the end of the buffer.
	ErrMalformed = errors.New("malformed blob")
	// ErrDigestMismatch is returned when context_digest or state_digest in the
	// footer does not match the recomputed value.
	ErrDigestMismatch = errors.New("digest mismatch")

	magicBytes = []byte(cryptoctx.Magic)
)

// FlagDebugRetainFactors marks a blob as encoding a context generated with
// DebugRetainFactors; the factors themselves are never serialized.
const FlagDebugRetainFactors byte = 1 << 0

// Decoded is everything Decode recovers from a blob: a rebuilt Context and
// the accumulator state to install into it via SetState.
type Decoded struct {
	Context   *cryptoctx.Context
	T         *big.Int
	Depth     uint32
	Snapshots []accumulator.Snapshot
	Flags     byte
}

// Encode renders ctx and (t, depth, snapshots) into the §6 wire format.
func Encode(ctx *cryptoctx.Context, t *big.Int, depth uint32, snapshots []accumulator.Snapshot, flags byte) []byte {
	var buf bytes.Buffer

	buf.Write(magicBytes)
	buf.WriteByte(cryptoctx.Version)
	buf.WriteByte(flags)

	buf.Write(ctx.EncodeSection())

	stateSection := encodeState(t, depth)
	buf.Write(stateSection)

	snapshotSection := encodeSnapshots(snapshots)
	buf.Write(snapshotSection)

	contextDigest := ctx.Digest()
	stateDigest := computeStateDigest(contextDigest, stateSection, snapshotSection)

	buf.Write(contextDigest[:])
	buf.Write(stateDigest[:])

	return buf.Bytes()
}

// Decode parses a §6 blob, verifying magic, version, and both footer
// digests. primeBits and millerRabinRounds are not carried on the wire (the
// format only commits to bit_length, max_depth, M, G, T0) and must be
// supplied by the caller, matching the deployment's registry configuration.
func Decode(blob []byte, primeBits, millerRabinRounds int) (*Decoded, error) {
	r := &reader{buf: blob}

	magic, err := r.take(len(magicBytes))
	if err != nil || !bytes.Equal(magic, magicBytes) {
		return nil, ErrMalformed
	}
	version, err := r.byte_()
	if err != nil || version != cryptoctx.Version {
		return nil, ErrMalformed
	}
	flags, err := r.byte_()
	if err != nil {
		return nil, ErrMalformed
	}

	bitLength, err := r.uint32LE()
	if err != nil {
		return nil, ErrMalformed
	}
	maxDepth, err := r.uint32LE()
	if err != nil {
		return nil, ErrMalformed
	}
	m, err := r.decimal()
	if err != nil {
		return nil, ErrMalformed
	}
	g, err := r.decimal()
	if err != nil {
		return nil, ErrMalformed
	}
	t0, err := r.decimal()
	if err != nil {
		return nil, ErrMalformed
	}

	stateStart := r.pos
	t, err := r.decimal()
	if err != nil {
		return nil, ErrMalformed
	}
	depth, err := r.uint32LE()
	if err != nil {
		return nil, ErrMalformed
	}
	stateSection := blob[stateStart:r.pos]

	snapshotStart := r.pos
	count, err := r.uint32LE()
	if err != nil {
		return nil, ErrMalformed
	}
	// Each snapshot entry takes at least 40 bytes (two u32 fields and a
	// 32-byte seed), so a count the remaining bytes cannot hold is malformed.
	if uint64(count)*40 > uint64(len(blob)-r.pos) {
		return nil, ErrMalformed
	}
	snapshots := make([]accumulator.Snapshot, 0, count)
	for i := uint32(0); i < count; i++ {
		snapT, err := r.decimal()
		if err != nil {
			return nil, ErrMalformed
		}
		snapDepth, err := r.uint32LE()
		if err != nil {
			return nil, ErrMalformed
		}
		seedBytes, err := r.take(32)
		if err != nil {
			return nil, ErrMalformed
		}
		var seed [32]byte
		copy(seed[:], seedBytes)
		snapshots = append(snapshots, accumulator.Snapshot{T: snapT, Depth: snapDepth, FoldSeed: seed})
	}
	snapshotSection := blob[snapshotStart:r.pos]

	contextDigest, err := r.take(32)
	if err != nil {
		return nil, ErrMalformed
	}
	stateDigest, err := r.take(32)
	if err != nil {
		return nil, ErrMalformed
	}
	if r.pos != len(blob) {
		return nil, ErrMalformed
	}

	ctx, err := cryptoctx.Import(int(bitLength), int(maxDepth), primeBits, millerRabinRounds, m, g, t0)
	if err != nil {
		return nil, err
	}

	gotContextDigest := ctx.Digest()
	if !bytes.Equal(gotContextDigest[:], contextDigest) {
		return nil, ErrDigestMismatch
	}
	gotStateDigest := computeStateDigest(gotContextDigest, stateSection, snapshotSection)
	if !bytes.Equal(gotStateDigest[:], stateDigest) {
		return nil, ErrDigestMismatch
	}

	return &Decoded{
		Context:   ctx,
		T:         t,
		Depth:     depth,
		Snapshots: snapshots,
		Flags:     flags,
	}, nil
}

func computeStateDigest(contextDigest [32]byte, stateSection, snapshotSection []byte) [32]byte {
	return numeric.Sum256(contextDigest[:], stateSection, snapshotSection)
}

func encodeState(t *big.Int, depth uint32) []byte {
	var buf bytes.Buffer
	writeDecimal(&buf, t)
	writeUint32LE(&buf, depth)
	return buf.Bytes()
}

func encodeSnapshots(snapshots []accumulator.Snapshot) []byte {
	var buf bytes.Buffer
	writeUint32LE(&buf, uint32(len(snapshots)))
	for _, s := range snapshots {
		writeDecimal(&buf, s.T)
		writeUint32LE(&buf, s.Depth)
		buf.Write(s.FoldSeed[:])
	}
	return buf.Bytes()
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeDecimal(buf *bytes.Buffer, x *big.Int) {
	s := numeric.CanonicalDecimal(x)
	writeUint32LE(buf, uint32(len(s)))
	buf.WriteString(s)
}

// reader is a small cursor over a blob, returning ErrMalformed-friendly
// errors for every bounds check instead of panicking on crafted input.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrMalformed
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) byte_() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint32LE() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) decimal() (*big.Int, error) {
	length, err := r.uint32LE()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(length))
	if err != nil {
		return nil, err
	}
	x, err := numeric.ParseBigInt(string(b))
	if err != nil {
		return nil, ErrMalformed
	}
	return x, nil
}
