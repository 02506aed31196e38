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

// Package numeric is the arbitrary-precision integer backend shared by the
// rest of the module: modular exponentiation, gcd, fair random sampling, and
// the decimal/hex wire encoding used at every serialization boundary.
package numeric

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

const (
	// maxGenPrimeInt defines the max retries to generate a coprime int by reject sampling.
	maxGenPrimeInt = 100
)

var (
	// ErrInvalidInput is returned if the input is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLessOrEqualBig2 is returned if a modulus candidate is <= 2.
	ErrLessOrEqualBig2 = errors.New("less than or equal to 2")
	// ErrExceedMaxRetry is returned if we retried over times.
	ErrExceedMaxRetry = errors.New("exceed max retries")
	// ErrNotInRange is returned if the value is not in the given range.
	ErrNotInRange = errors.New("not in range")
	// ErrLargerFloor is returned if the floor is larger than ceil.
	ErrLargerFloor = errors.New("larger floor")
	// ErrEmptySlice is returned if the length of a requested byte slice is zero.
	ErrEmptySlice = errors.New("empty slice")
	// ErrZeroOrNegativeModulus is returned if pow_mod is asked to work mod 0 or a negative number.
	ErrZeroOrNegativeModulus = errors.New("zero or negative modulus")
	// ErrMalformedDecimal is returned if a string is not a canonical decimal big integer.
	ErrMalformedDecimal = errors.New("malformed decimal integer")

	big0 = big.NewInt(0)
	big1 = big.NewInt(1)
	big2 = big.NewInt(2)
)

// RandomInt generates a random number in [0, n).
func RandomInt(n *big.Int) (*big.Int, error) {
	if n.Sign() <= 0 {
		return nil, ErrInvalidInput
	}
	return rand.Int(rand.Reader, n)
}

// RandomPositiveInt generates a random number in [1, n).
func RandomPositiveInt(n *big.Int) (*big.Int, error) {
	x, err := RandomInt(new(big.Int).Sub(n, big1))
	if err != nil {
		return nil, err
	}
	return x.Add(x, big1), nil
}

// RandomCoprimeInt generates a random integer in [2, n) that is coprime to n.
func RandomCoprimeInt(n *big.Int) (*big.Int, error) {
	if n.Cmp(big2) <= 0 {
		return nil, ErrLessOrEqualBig2
	}
	for i := 0; i < maxGenPrimeInt; i++ {
		r, err := RandomInt(n)
		if err != nil {
			return nil, err
		}
		// Try again if r == 0 or 1.
		if r.Cmp(big1) <= 0 {
			continue
		}
		if IsRelativePrime(r, n) {
			return r, nil
		}
	}
	return nil, ErrExceedMaxRetry
}

// IsRelativePrime reports whether a and b are coprime.
func IsRelativePrime(a, b *big.Int) bool {
	return Gcd(a, b).Cmp(big1) == 0
}

// Gcd computes the greatest common divisor of a and b.
func Gcd(a, b *big.Int) *big.Int {
	return new(big.Int).GCD(nil, nil, a, b)
}

// PowMod computes base^exp mod m. It fails deterministically on a
// non-positive modulus rather than letting math/big panic.
func PowMod(base, exp, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, ErrZeroOrNegativeModulus
	}
	return new(big.Int).Exp(base, exp, m), nil
}

// InRange checks that floor <= checkValue < ceil.
func InRange(checkValue, floor, ceil *big.Int) error {
	if ceil.Cmp(floor) < 1 {
		return ErrLargerFloor
	}
	if checkValue.Cmp(floor) < 0 {
		return ErrNotInRange
	}
	if checkValue.Cmp(ceil) > -1 {
		return ErrNotInRange
	}
	return nil
}

// GenRandomBytes generates a random byte slice of the given size.
func GenRandomBytes(size int) ([]byte, error) {
	if size < 1 {
		return nil, ErrEmptySlice
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateQuadraticResidue samples a random g in [2, m) coprime to m and
// returns (g^2 mod m, g). It rejects the trivial results 0, 1 and m-1,
// retrying up to maxGenPrimeInt times.
func GenerateQuadraticResidue(m *big.Int) (residue *big.Int, root *big.Int, err error) {
	mMinus1 := new(big.Int).Sub(m, big1)
	for i := 0; i < maxGenPrimeInt; i++ {
		g, err := RandomCoprimeInt(m)
		if err != nil {
			return nil, nil, err
		}
		sq := new(big.Int).Exp(g, big2, m)
		if sq.Cmp(big0) == 0 || sq.Cmp(big1) == 0 || sq.Cmp(mMinus1) == 0 {
			continue
		}
		return sq, g, nil
	}
	return nil, nil, ErrExceedMaxRetry
}

// ParseBigInt parses a canonical decimal string, or a "0x"-prefixed hex
// string, into a BigInt. Decimal strings with a leading zero (other than the
// literal "0") are rejected as non-canonical, matching the wire discipline of
// §6: big integers travel as decimal strings with no leading zeros.
func ParseBigInt(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, ErrMalformedDecimal
		}
		return v, nil
	}
	if s == "" {
		return nil, ErrMalformedDecimal
	}
	if s != "0" && (s[0] == '0' || s[0] == '-') {
		return nil, ErrMalformedDecimal
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, ErrMalformedDecimal
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrMalformedDecimal
	}
	return v, nil
}

// CanonicalDecimal renders x as a canonical decimal string (no sign, no
// leading zeros except the literal "0").
func CanonicalDecimal(x *big.Int) string {
	return x.String()
}

// Sum256 is the module-wide hash primitive. Every digest in the spec (context
// digest, per-depth exponent, fold seed, payload digest, seal anchor) is
// defined in terms of SHA-256, so this wraps crypto/sha256 rather than the
// blake2b construction the rest of the dependency graph favors elsewhere.
func Sum256(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
