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

// Package cryptoctx builds and validates the modulus/generator/seed triple
// every accumulator, registry, and scope in this module is bound to.
package cryptoctx

import (
	"encoding/binary"
	"errors"
	"math/big"
	"time"

	"github.com/getamis/sigha/logger"
	"github.com/getamis/sigha/numeric"
)

const (
	// Magic identifies the wire encoding family (spec.md §6).
	Magic = "SIGHA1"
	// Version is the current blob/digest encoding version.
	Version uint8 = 1

	// MinBitLength is the smallest modulus size this package will generate or import.
	MinBitLength = 256
	// DefaultBitLength matches the "2048-bit composite by default" in spec.md §3.
	DefaultBitLength = 2048
	// DefaultMaxDepth matches spec.md §3's default.
	DefaultMaxDepth = 10
	// DefaultPrimeBits is the registry prime size used unless overridden.
	DefaultPrimeBits = 128

	// maxPrimeRetry bounds how many times context generation will resample
	// the (p, q) pair before giving up with WeakParameters (spec.md §7: "bounded
	// by a retry cap of 1024 attempts per prime").
	maxPrimeRetry = 1024

	flagDebugRetainFactors = 1 << 0
)

var (
	// ErrWeakParameters is returned when requested parameters are too small,
	// generation exhausts its retry budget, or imported (M, G, T0) fail the
	// group-membership invariants.
	ErrWeakParameters = errors.New("weak or invalid cryptographic parameters")
	// ErrInvalidArgument is returned for malformed constructor input.
	ErrInvalidArgument = errors.New("invalid argument")

	big0 = big.NewInt(0)
	big1 = big.NewInt(1)
)

// Params configures Context generation. Zero-value fields fall back to the
// package defaults.
type Params struct {
	BitLength          int
	MaxDepth           int
	PrimeBits          int
	SafePrimes         bool
	MillerRabinRounds  int
	DebugRetainFactors bool
}

func (p Params) withDefaults() Params {
	if p.BitLength == 0 {
		p.BitLength = DefaultBitLength
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.PrimeBits == 0 {
		p.PrimeBits = DefaultPrimeBits
	}
	if p.MillerRabinRounds == 0 {
		p.MillerRabinRounds = numeric.DefaultMillerRabinRounds
	}
	return p
}

// Context is the immutable (M, G, T0) triple shared, read-only, by any number
// of accumulators and scopes (spec.md §9: "no singletons, no hidden global").
type Context struct {
	bitLength         int
	maxDepth          int
	primeBits         int
	millerRabinRounds int
	safePrimes        bool

	m  *big.Int
	g  *big.Int
	t0 *big.Int

	debugRetainFactors bool
	factorP, factorQ   *big.Int // only populated when DebugRetainFactors is set
}

// New generates a fresh Context: samples the modulus factors, derives G and
// T0 as squares of random units, and scrubs the factorization unless
// DebugRetainFactors is set (spec.md §4.3).
func New(params Params) (*Context, error) {
	params = params.withDefaults()
	if params.BitLength < MinBitLength || params.BitLength%2 != 0 {
		return nil, ErrWeakParameters
	}

	factorBits := params.BitLength / 2
	var p, q *big.Int
	var err error
	for attempt := 0; attempt < maxPrimeRetry; attempt++ {
		if params.SafePrimes {
			p, _, err = numeric.GenerateSafePrime(factorBits, params.MillerRabinRounds)
			if err != nil {
				continue
			}
			q, _, err = numeric.GenerateSafePrime(factorBits, params.MillerRabinRounds)
			if err != nil {
				continue
			}
		} else {
			p, err = numeric.GeneratePrime(factorBits, params.MillerRabinRounds)
			if err != nil {
				continue
			}
			q, err = numeric.GeneratePrime(factorBits, params.MillerRabinRounds)
			if err != nil {
				continue
			}
		}
		if p.Cmp(q) == 0 {
			logger.Logger().Warn("context generation resampled a degenerate p == q pair")
			continue
		}
		break
	}
	if err != nil || p == nil || q == nil {
		return nil, ErrWeakParameters
	}

	m := new(big.Int).Mul(p, q)

	g, _, err := numeric.GenerateQuadraticResidue(m)
	if err != nil {
		logger.Logger().Warn("context generation failed to derive a generator", "err", err)
		return nil, ErrWeakParameters
	}
	t0, _, err := numeric.GenerateQuadraticResidue(m)
	if err != nil {
		logger.Logger().Warn("context generation failed to derive a seed", "err", err)
		return nil, ErrWeakParameters
	}

	ctx := &Context{
		bitLength:          params.BitLength,
		maxDepth:           params.MaxDepth,
		primeBits:          params.PrimeBits,
		millerRabinRounds:  params.MillerRabinRounds,
		safePrimes:         params.SafePrimes,
		m:                  m,
		g:                  g,
		t0:                 t0,
		debugRetainFactors: params.DebugRetainFactors,
	}
	if params.DebugRetainFactors {
		ctx.factorP, ctx.factorQ = p, q
	}
	return ctx, nil
}

// Import reconstructs a Context from an already-derived (M, G, T0) triple,
// e.g. after deserializing the §6 blob. It validates every invariant that
// does not require knowledge of the factorization: verify_in_group(G),
// verify_in_group(T0), and evenness/size of bitLength. Full QR membership for
// an imported T0 cannot be checked without the factors (spec.md §9, Open
// Questions), so Import trusts the caller on that point.
func Import(bitLength, maxDepth, primeBits, millerRabinRounds int, m, g, t0 *big.Int) (*Context, error) {
	if bitLength < MinBitLength || bitLength%2 != 0 || maxDepth <= 0 || primeBits <= 0 {
		return nil, ErrInvalidArgument
	}
	if millerRabinRounds <= 0 {
		millerRabinRounds = numeric.DefaultMillerRabinRounds
	}
	ctx := &Context{
		bitLength:         bitLength,
		maxDepth:          maxDepth,
		primeBits:         primeBits,
		millerRabinRounds: millerRabinRounds,
		m:                 new(big.Int).Set(m),
		g:                 new(big.Int).Set(g),
		t0:                new(big.Int).Set(t0),
	}
	if !ctx.VerifyInGroup(ctx.g) || !ctx.VerifyInGroup(ctx.t0) {
		return nil, ErrWeakParameters
	}
	return ctx, nil
}

// VerifyInGroup checks 1 < x < M and gcd(x, M) == 1, rejecting crafted
// inputs on import (spec.md §4.3).
func (c *Context) VerifyInGroup(x *big.Int) bool {
	if x == nil {
		return false
	}
	if x.Cmp(big1) <= 0 || x.Cmp(c.m) >= 0 {
		return false
	}
	return numeric.IsRelativePrime(x, c.m)
}

// Digest returns the 32-byte canonical hash over the CONTEXT section
// (bit_length, max_depth, M, G, T0; see EncodeSection) plus a trailing flag byte encoding debugRetainFactors, used as context_digest
// throughout the module. Folding the flag in keeps spec.md §4.3's
// requirement that debug_retain_factors's state be visible in digest: a
// toxic-factor-retaining context can never hash identically to an otherwise
// equal production context.
func (c *Context) Digest() [32]byte {
	var flags byte
	if c.debugRetainFactors {
		flags |= flagDebugRetainFactors
	}
	return numeric.Sum256(c.EncodeSection(), []byte{flags})
}

// EncodeSection renders the CONTEXT section of the §6 wire format: bit_length
// and max_depth as little-endian u32, followed by each of M, G, T0 as a
// length-prefixed canonical decimal string. Both Digest and the serialize
// package build on this so the digest is always computed over exactly the
// bytes that round-trip through the blob.
func (c *Context) EncodeSection() []byte {
	buf := make([]byte, 0, 64)
	buf = appendUint32LE(buf, uint32(c.bitLength))
	buf = appendUint32LE(buf, uint32(c.maxDepth))
	buf = appendLengthPrefixedDecimal(buf, c.m)
	buf = appendLengthPrefixedDecimal(buf, c.g)
	buf = appendLengthPrefixedDecimal(buf, c.t0)
	return buf
}

func appendUint32LE(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendLengthPrefixedDecimal(buf []byte, x *big.Int) []byte {
	s := numeric.CanonicalDecimal(x)
	buf = appendUint32LE(buf, uint32(len(s)))
	return append(buf, s...)
}

// M returns the modulus.
func (c *Context) M() *big.Int { return new(big.Int).Set(c.m) }

// G returns the generator.
func (c *Context) G() *big.Int { return new(big.Int).Set(c.g) }

// T0 returns the initial seed.
func (c *Context) T0() *big.Int { return new(big.Int).Set(c.t0) }

// BitLength returns the modulus bit length.
func (c *Context) BitLength() int { return c.bitLength }

// MaxDepth returns the fold threshold.
func (c *Context) MaxDepth() int { return c.maxDepth }

// PrimeBits returns the registry prime bit length.
func (c *Context) PrimeBits() int { return c.primeBits }

// MillerRabinRounds returns the configured composite-witness round count.
func (c *Context) MillerRabinRounds() int { return c.millerRabinRounds }

// SafePrimes reports whether this context was generated in safe-prime mode.
// Imported contexts always report false: safe-primality of an already-formed
// M cannot be recovered without its factorization.
func (c *Context) SafePrimes() bool { return c.safePrimes }

// Factors returns the toxic (p, q) factorization and true, but only when the
// context was generated with DebugRetainFactors; otherwise (nil, nil, false).
// Production contexts scrub p and q immediately after deriving M, G, T0.
func (c *Context) Factors() (p, q *big.Int, ok bool) {
	if c.factorP == nil || c.factorQ == nil {
		return nil, nil, false
	}
	return new(big.Int).Set(c.factorP), new(big.Int).Set(c.factorQ), true
}

// DebugRetainFactors reports whether this context retains its factorization.
// Its state is folded into Digest (see Digest's doc comment), not just
// exposed through this accessor.
func (c *Context) DebugRetainFactors() bool { return c.debugRetainFactors }

// Meta builds the HolographicMeta value attached to snapshots and seals.
func (c *Context) Meta(sessionID string, createdAt time.Time) HolographicMeta {
	return HolographicMeta{
		SessionID:     sessionID,
		CreatedAt:     createdAt,
		BitLength:     c.bitLength,
		ContextDigest: c.Digest(),
	}
}

// HolographicMeta is attached to emitted snapshots and seals (spec.md §3).
type HolographicMeta struct {
	SessionID     string
	CreatedAt     time.Time
	BitLength     int
	ContextDigest [32]byte
}
