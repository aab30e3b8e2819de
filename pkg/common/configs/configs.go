/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package configs

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAllocationInterval = time.Second
	DefaultFilterDuration     = 5 * time.Second
	DefaultBindAddress        = "0.0.0.0:9080"
	DefaultWhitelistInterval  = 5 * time.Second
)

// AllocatorConfig is the file-backed configuration of the allocator daemon.
type AllocatorConfig struct {
	// interval between periodic allocation cycles
	AllocationInterval time.Duration `yaml:"allocationInterval"`
	// filter duration used when a framework declines without a timeout
	DefaultFilterDuration time.Duration `yaml:"defaultFilterDuration"`
	// address the web service binds to
	BindAddress string `yaml:"bindAddress"`
	// optional hosts file restricting which agents receive offers,
	// empty means no whitelist
	WhitelistFile string `yaml:"whitelistFile"`
	// how often the whitelist file is re-read
	WhitelistInterval time.Duration `yaml:"whitelistInterval"`
	// allocation cycle runs triggered by events are coalesced when true
	CoalesceAllocations bool `yaml:"coalesceAllocations"`
}

func DefaultConfig() *AllocatorConfig {
	return &AllocatorConfig{
		AllocationInterval:    DefaultAllocationInterval,
		DefaultFilterDuration: DefaultFilterDuration,
		BindAddress:           DefaultBindAddress,
		WhitelistInterval:     DefaultWhitelistInterval,
		CoalesceAllocations:   true,
	}
}

// LoadConfig reads a yaml configuration file, filling any field the file
// leaves out with its default.
func LoadConfig(path string) (*AllocatorConfig, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if err = ParseConfig(content, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// rawConfig mirrors AllocatorConfig with durations as strings, the form
// they take in the yaml file ("250ms", "5s").
type rawConfig struct {
	AllocationInterval    string `yaml:"allocationInterval"`
	DefaultFilterDuration string `yaml:"defaultFilterDuration"`
	BindAddress           string `yaml:"bindAddress"`
	WhitelistFile         string `yaml:"whitelistFile"`
	WhitelistInterval     string `yaml:"whitelistInterval"`
	CoalesceAllocations   *bool  `yaml:"coalesceAllocations"`
}

// ParseConfig unmarshals yaml content over conf and validates the result.
// Fields absent from the content are left untouched.
func ParseConfig(content []byte, conf *AllocatorConfig) error {
	var raw rawConfig
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := setDuration(&conf.AllocationInterval, raw.AllocationInterval, "allocationInterval"); err != nil {
		return err
	}
	if err := setDuration(&conf.DefaultFilterDuration, raw.DefaultFilterDuration, "defaultFilterDuration"); err != nil {
		return err
	}
	if err := setDuration(&conf.WhitelistInterval, raw.WhitelistInterval, "whitelistInterval"); err != nil {
		return err
	}
	if raw.BindAddress != "" {
		conf.BindAddress = raw.BindAddress
	}
	if raw.WhitelistFile != "" {
		conf.WhitelistFile = raw.WhitelistFile
	}
	if raw.CoalesceAllocations != nil {
		conf.CoalesceAllocations = *raw.CoalesceAllocations
	}
	return conf.Validate()
}

func setDuration(target *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", name, err)
	}
	*target = parsed
	return nil
}

func (c *AllocatorConfig) Validate() error {
	if c.AllocationInterval <= 0 {
		return fmt.Errorf("allocationInterval must be positive, got %v", c.AllocationInterval)
	}
	if c.DefaultFilterDuration < 0 {
		return fmt.Errorf("defaultFilterDuration cannot be negative, got %v", c.DefaultFilterDuration)
	}
	if c.BindAddress == "" {
		return fmt.Errorf("bindAddress cannot be empty")
	}
	if c.WhitelistFile != "" && c.WhitelistInterval <= 0 {
		return fmt.Errorf("whitelistInterval must be positive when a whitelist file is set, got %v", c.WhitelistInterval)
	}
	return nil
}
