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

package numeric

import (
	"math/big"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Prime", func() {
	DescribeTable("GeneratePrime()", func(bits int) {
		p, err := GeneratePrime(bits, DefaultMillerRabinRounds)
		Expect(err).Should(BeNil())
		Expect(p.BitLen()).Should(Equal(bits))
		Expect(p.Bit(0)).Should(Equal(uint(1)))
		Expect(ProbablyPrime(p, DefaultMillerRabinRounds)).Should(BeTrue())
	},
		Entry("64 bits", 64),
		Entry("128 bits", 128),
	)

	It("GeneratePrime() rejects tiny bit lengths", func() {
		p, err := GeneratePrime(1, DefaultMillerRabinRounds)
		Expect(p).Should(BeNil())
		Expect(err).Should(Equal(ErrSmallBitLength))
	})

	DescribeTable("GenerateSafePrime()", func(bits int) {
		p, q, err := GenerateSafePrime(bits, DefaultMillerRabinRounds)
		Expect(err).Should(BeNil())
		Expect(p.BitLen()).Should(Equal(bits))
		Expect(ProbablyPrime(p, DefaultMillerRabinRounds)).Should(BeTrue())
		Expect(ProbablyPrime(q, DefaultMillerRabinRounds)).Should(BeTrue())

		reconstructedP := new(big.Int).Lsh(q, 1)
		reconstructedP.Add(reconstructedP, big1)
		Expect(reconstructedP.Cmp(p)).Should(BeZero())
	},
		Entry("size = 16", 16),
		Entry("size = 32", 32),
	)

	It("GenerateSafePrime() rejects tiny bit lengths", func() {
		p, q, err := GenerateSafePrime(2, DefaultMillerRabinRounds)
		Expect(p).Should(BeNil())
		Expect(q).Should(BeNil())
		Expect(err).Should(Equal(ErrSmallBitLength))
	})

	Context("HashToPrime()", func() {
		It("is deterministic", func() {
			p1, err := HashToPrime([]byte("agent-alice"), 128, DefaultMillerRabinRounds)
			Expect(err).Should(BeNil())
			p2, err := HashToPrime([]byte("agent-alice"), 128, DefaultMillerRabinRounds)
			Expect(err).Should(BeNil())
			Expect(p1.Cmp(p2)).Should(BeZero())
			Expect(p1.BitLen()).Should(Equal(128))
			Expect(ProbablyPrime(p1, DefaultMillerRabinRounds)).Should(BeTrue())
		})

		It("differs across distinct ids", func() {
			p1, err := HashToPrime([]byte("agent-alice"), 128, DefaultMillerRabinRounds)
			Expect(err).Should(BeNil())
			p2, err := HashToPrime([]byte("agent-bob"), 128, DefaultMillerRabinRounds)
			Expect(err).Should(BeNil())
			Expect(p1.Cmp(p2)).ShouldNot(BeZero())
		})

		It("rejects an empty id", func() {
			p, err := HashToPrime(nil, 128, DefaultMillerRabinRounds)
			Expect(p).Should(BeNil())
			Expect(err).Should(Equal(ErrInvalidInput))
		})
	})
})
