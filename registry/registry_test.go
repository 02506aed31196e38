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

package registry

import (
	"math/big"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/sigha/cryptoctx"
)

func TestRegistry(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Registry Suite")
}

func newTestContext() *cryptoctx.Context {
	ctx, err := cryptoctx.New(cryptoctx.Params{
		BitLength: 256,
		MaxDepth:  3,
		PrimeBits: 64,
	})
	Expect(err).Should(BeNil())
	return ctx
}

var _ = Describe("Register()", func() {
	It("returns the same prime on repeated calls for the same id", func() {
		reg := New(newTestContext())
		p1, err := reg.Register("agent-alice")
		Expect(err).Should(BeNil())
		p2, err := reg.Register("agent-alice")
		Expect(err).Should(BeNil())
		Expect(p1.Cmp(p2)).Should(BeZero())
	})

	It("returns different primes for different ids", func() {
		reg := New(newTestContext())
		p1, err := reg.Register("agent-alice")
		Expect(err).Should(BeNil())
		p2, err := reg.Register("agent-bob")
		Expect(err).Should(BeNil())
		Expect(p1.Cmp(p2)).ShouldNot(BeZero())
	})

	It("rejects an empty id", func() {
		reg := New(newTestContext())
		_, err := reg.Register("")
		Expect(err).Should(Equal(ErrInvalidArgument))
	})

	It("converges on one answer under concurrent registration of the same id", func() {
		reg := New(newTestContext())

		const callers = 16
		results := make(chan *big.Int, callers)
		for i := 0; i < callers; i++ {
			go func() {
				p, err := reg.Register("agent-alice")
				Expect(err).Should(BeNil())
				results <- p
			}()
		}

		first := <-results
		for i := 1; i < callers; i++ {
			Expect((<-results).Cmp(first)).Should(BeZero())
		}
		Expect(reg.Iter()).Should(HaveLen(1))
	})
})

var _ = Describe("Get()", func() {
	It("returns ErrNotRegistered for an id that was never registered", func() {
		reg := New(newTestContext())
		_, err := reg.Get("agent-alice")
		Expect(err).Should(Equal(ErrNotRegistered))
	})

	It("returns the same prime Register produced", func() {
		reg := New(newTestContext())
		registered, err := reg.Register("agent-alice")
		Expect(err).Should(BeNil())

		got, err := reg.Get("agent-alice")
		Expect(err).Should(BeNil())
		Expect(got.Cmp(registered)).Should(BeZero())
	})
})

var _ = Describe("Iter()", func() {
	It("returns every registered id exactly once", func() {
		reg := New(newTestContext())
		Expect(reg.Iter()).Should(BeEmpty())

		_, err := reg.Register("agent-alice")
		Expect(err).Should(BeNil())
		_, err = reg.Register("agent-bob")
		Expect(err).Should(BeNil())

		entries := reg.Iter()
		Expect(entries).Should(HaveLen(2))
		seen := map[string]bool{}
		for _, e := range entries {
			seen[e.ID] = true
		}
		Expect(seen).Should(HaveKey("agent-alice"))
		Expect(seen).Should(HaveKey("agent-bob"))
	})
})

var _ = Describe("Digest()", func() {
	It("is independent of registration order", func() {
		ctx := newTestContext()

		regAB := New(ctx)
		Expect(mustRegister(regAB, "agent-alice")).Should(Succeed())
		Expect(mustRegister(regAB, "agent-bob")).Should(Succeed())

		regBA := New(ctx)
		Expect(mustRegister(regBA, "agent-bob")).Should(Succeed())
		Expect(mustRegister(regBA, "agent-alice")).Should(Succeed())

		Expect(regAB.Digest()).Should(Equal(regBA.Digest()))
	})

	It("differs when the registered id set differs", func() {
		ctx := newTestContext()

		reg1 := New(ctx)
		Expect(mustRegister(reg1, "agent-alice")).Should(Succeed())

		reg2 := New(ctx)
		Expect(mustRegister(reg2, "agent-bob")).Should(Succeed())

		Expect(reg1.Digest()).ShouldNot(Equal(reg2.Digest()))
	})

	It("is the fixed empty-set digest for a fresh registry", func() {
		reg1 := New(newTestContext())
		reg2 := New(newTestContext())
		Expect(reg1.Digest()).Should(Equal(reg2.Digest()))
	})
})

func mustRegister(reg *Registry, id string) error {
	_, err := reg.Register(id)
	return err
}
