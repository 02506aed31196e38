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

// Package config loads the YAML file a deployment uses to parameterize
// cryptoctx.New, overlaying the two environment variables spec.md §6 calls
// out (SIGHA_MR_ROUNDS, SIGHA_SAFE_PRIMES) on top of it.
package config

import (
	"io/ioutil"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/getamis/sigha/cryptoctx"
)

// Config mirrors cryptoctx.Params in YAML form, so a deployment file maps
// one-to-one onto the context it produces.
type Config struct {
	BitLength          int  `yaml:"bit_length"`
	MaxDepth           int  `yaml:"max_depth"`
	PrimeBits          int  `yaml:"prime_bits"`
	SafePrimes         bool `yaml:"safe_primes"`
	MillerRabinRounds  int  `yaml:"miller_rabin_rounds"`
	DebugRetainFactors bool `yaml:"debug_retain_factors"`
}

// ReadConfigFile parses a YAML config from filePath.
func ReadConfigFile(filePath string) (*Config, error) {
	c := &Config{}
	yamlFile, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(yamlFile, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overlays SIGHA_MR_ROUNDS and SIGHA_SAFE_PRIMES on top of c, per
// spec.md §6. Malformed SIGHA_MR_ROUNDS values are ignored rather than
// treated as fatal, since the zero value simply falls back to
// cryptoctx's own default.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SIGHA_MR_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 16 {
			c.MillerRabinRounds = n
		}
	}
	if os.Getenv("SIGHA_SAFE_PRIMES") == "1" {
		c.SafePrimes = true
	}
}

// Params converts c into cryptoctx.Params, ready for cryptoctx.New.
func (c *Config) Params() cryptoctx.Params {
	return cryptoctx.Params{
		BitLength:          c.BitLength,
		MaxDepth:           c.MaxDepth,
		PrimeBits:          c.PrimeBits,
		SafePrimes:         c.SafePrimes,
		MillerRabinRounds:  c.MillerRabinRounds,
		DebugRetainFactors: c.DebugRetainFactors,
	}
}

// WriteYamlFile marshals yamlData to filePath, mirroring the teacher's
// example-tooling helper for writing out derived artifacts (e.g. a generated
// context's public parameters).
func WriteYamlFile(yamlData interface{}, filePath string) error {
	data, err := yaml.Marshal(yamlData)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filePath, data, 0644)
}
