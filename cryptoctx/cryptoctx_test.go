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

package cryptoctx

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/sigha/numeric"
)

func TestCryptoctx(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cryptoctx Suite")
}

var _ = Describe("New()", func() {
	It("generates a usable context with the requested parameters", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 3, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.BitLength()).Should(Equal(256))
		Expect(ctx.MaxDepth()).Should(Equal(3))
		Expect(ctx.VerifyInGroup(ctx.G())).Should(BeTrue())
		Expect(ctx.VerifyInGroup(ctx.T0())).Should(BeTrue())
		Expect(ctx.SafePrimes()).Should(BeFalse())
	})

	It("generates a safe-prime context when requested", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 3, PrimeBits: 64, SafePrimes: true})
		Expect(err).Should(BeNil())
		Expect(ctx.SafePrimes()).Should(BeTrue())
		Expect(ctx.VerifyInGroup(ctx.G())).Should(BeTrue())
		Expect(ctx.VerifyInGroup(ctx.T0())).Should(BeTrue())
	})

	It("rejects a bit length below MinBitLength", func() {
		_, err := New(Params{BitLength: MinBitLength - 2, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(Equal(ErrWeakParameters))
	})

	It("rejects an odd bit length", func() {
		_, err := New(Params{BitLength: 257, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(Equal(ErrWeakParameters))
	})

	It("scrubs the factorization by default", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 3, PrimeBits: 64})
		Expect(err).Should(BeNil())
		_, _, ok := ctx.Factors()
		Expect(ok).Should(BeFalse())
		Expect(ctx.DebugRetainFactors()).Should(BeFalse())
	})

	It("retains the factorization when DebugRetainFactors is set", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 3, PrimeBits: 64, DebugRetainFactors: true})
		Expect(err).Should(BeNil())
		p, q, ok := ctx.Factors()
		Expect(ok).Should(BeTrue())
		Expect(p).ShouldNot(BeNil())
		Expect(q).ShouldNot(BeNil())
		Expect(ctx.DebugRetainFactors()).Should(BeTrue())
	})
})

var _ = Describe("Import()", func() {
	It("round-trips an already-generated context's parameters", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 5, PrimeBits: 64})
		Expect(err).Should(BeNil())

		imported, err := Import(orig.BitLength(), orig.MaxDepth(), orig.PrimeBits(), orig.MillerRabinRounds(), orig.M(), orig.G(), orig.T0())
		Expect(err).Should(BeNil())
		Expect(imported.M().Cmp(orig.M())).Should(BeZero())
		Expect(imported.G().Cmp(orig.G())).Should(BeZero())
		Expect(imported.T0().Cmp(orig.T0())).Should(BeZero())
		Expect(imported.SafePrimes()).Should(BeFalse())
	})

	It("rejects a G outside the group", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 5, PrimeBits: 64})
		Expect(err).Should(BeNil())

		_, err = Import(orig.BitLength(), orig.MaxDepth(), orig.PrimeBits(), orig.MillerRabinRounds(), orig.M(), big.NewInt(1), orig.T0())
		Expect(err).Should(Equal(ErrWeakParameters))
	})

	It("rejects a T0 outside the group", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 5, PrimeBits: 64})
		Expect(err).Should(BeNil())

		_, err = Import(orig.BitLength(), orig.MaxDepth(), orig.PrimeBits(), orig.MillerRabinRounds(), orig.M(), orig.G(), orig.M())
		Expect(err).Should(Equal(ErrWeakParameters))
	})

	It("rejects a bit length below MinBitLength", func() {
		_, err := Import(MinBitLength-2, 5, 64, 40, big.NewInt(15), big.NewInt(2), big.NewInt(4))
		Expect(err).Should(Equal(ErrInvalidArgument))
	})

	It("rejects an odd bit length", func() {
		_, err := Import(257, 5, 64, 40, big.NewInt(15), big.NewInt(2), big.NewInt(4))
		Expect(err).Should(Equal(ErrInvalidArgument))
	})

	It("rejects a non-positive maxDepth", func() {
		_, err := Import(256, 0, 64, 40, big.NewInt(15), big.NewInt(2), big.NewInt(4))
		Expect(err).Should(Equal(ErrInvalidArgument))
	})

	It("rejects a non-positive primeBits", func() {
		_, err := Import(256, 5, 0, 40, big.NewInt(15), big.NewInt(2), big.NewInt(4))
		Expect(err).Should(Equal(ErrInvalidArgument))
	})

	It("defaults millerRabinRounds when given a non-positive value", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 5, PrimeBits: 64})
		Expect(err).Should(BeNil())

		imported, err := Import(orig.BitLength(), orig.MaxDepth(), orig.PrimeBits(), 0, orig.M(), orig.G(), orig.T0())
		Expect(err).Should(BeNil())
		Expect(imported.MillerRabinRounds()).Should(Equal(numeric.DefaultMillerRabinRounds))
	})

	It("always reports SafePrimes false, regardless of the source factors' shape", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 5, PrimeBits: 64, SafePrimes: true})
		Expect(err).Should(BeNil())

		imported, err := Import(orig.BitLength(), orig.MaxDepth(), orig.PrimeBits(), orig.MillerRabinRounds(), orig.M(), orig.G(), orig.T0())
		Expect(err).Should(BeNil())
		Expect(imported.SafePrimes()).Should(BeFalse())
	})
})

var _ = Describe("VerifyInGroup()", func() {
	It("rejects nil", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.VerifyInGroup(nil)).Should(BeFalse())
	})

	It("rejects values <= 1", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.VerifyInGroup(big.NewInt(0))).Should(BeFalse())
		Expect(ctx.VerifyInGroup(big.NewInt(1))).Should(BeFalse())
	})

	It("rejects values >= M", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.VerifyInGroup(ctx.M())).Should(BeFalse())
	})

	It("rejects values not coprime to M", func() {
		orig, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64, DebugRetainFactors: true})
		Expect(err).Should(BeNil())
		p, _, ok := orig.Factors()
		Expect(ok).Should(BeTrue())
		Expect(orig.VerifyInGroup(p)).Should(BeFalse())
	})

	It("accepts a value coprime to M strictly between 1 and M", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.VerifyInGroup(ctx.G())).Should(BeTrue())
	})
})

var _ = Describe("Digest()", func() {
	It("is deterministic for the same context", func() {
		ctx, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx.Digest()).Should(Equal(ctx.Digest()))
	})

	It("differs between contexts with different M/G/T0", func() {
		ctx1, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		ctx2, err := New(Params{BitLength: 256, MaxDepth: 1, PrimeBits: 64})
		Expect(err).Should(BeNil())
		Expect(ctx1.Digest()).ShouldNot(Equal(ctx2.Digest()))
	})

	It("differs solely due to debug_retain_factors, even with identical EncodeSection bytes", func() {
		generated, err := New(Params{BitLength: 256, MaxDepth: 4, PrimeBits: 64, DebugRetainFactors: true})
		Expect(err).Should(BeNil())

		imported, err := Import(generated.BitLength(), generated.MaxDepth(), generated.PrimeBits(), generated.MillerRabinRounds(), generated.M(), generated.G(), generated.T0())
		Expect(err).Should(BeNil())

		Expect(generated.DebugRetainFactors()).Should(BeTrue())
		Expect(imported.DebugRetainFactors()).Should(BeFalse())

		Expect(generated.EncodeSection()).Should(Equal(imported.EncodeSection()))
		Expect(generated.Digest()).ShouldNot(Equal(imported.Digest()))
	})
})
