package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NetworkProfile describes one chain: display name, explorer, and optional
// fee defaults that replace the environment's when the chain matches.
type NetworkProfile struct {
	ChainID         int64   `yaml:"chain_id" json:"chain_id"`
	Name            string  `yaml:"name" json:"name"`
	ExplorerURL     string  `yaml:"explorer_url,omitempty" json:"explorer_url,omitempty"`
	Local           bool    `yaml:"local,omitempty" json:"local,omitempty"`
	MaxFeeGwei      float64 `yaml:"max_fee_gwei,omitempty" json:"max_fee_gwei,omitempty"`
	PriorityFeeGwei float64 `yaml:"priority_fee_gwei,omitempty" json:"priority_fee_gwei,omitempty"`
	Confirmations   uint64  `yaml:"confirmations,omitempty" json:"confirmations,omitempty"`
	LogBlockSpan    uint64  `yaml:"log_block_span,omitempty" json:"log_block_span,omitempty"`
}

type profileFile struct {
	Networks []NetworkProfile `yaml:"networks"`
}

// LoadNetworkProfiles reads a YAML file of the form
//
//	networks:
//	  - chain_id: 80002
//	    name: Polygon Amoy
//	    explorer_url: https://amoy.polygonscan.com
//	    max_fee_gwei: 40
//
// keyed by chain ID. An empty path yields no profiles.
func LoadNetworkProfiles(path string) (map[int64]NetworkProfile, error) {
	if path == "" {
		return map[int64]NetworkProfile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load network profiles: %w", err)
	}
	return ParseNetworkProfiles(data)
}

func ParseNetworkProfiles(data []byte) (map[int64]NetworkProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse network profiles: %w", err)
	}
	out := make(map[int64]NetworkProfile, len(f.Networks))
	for i, n := range f.Networks {
		if n.ChainID <= 0 {
			return nil, fmt.Errorf("network profile %d: chain_id must be positive", i)
		}
		if _, dup := out[n.ChainID]; dup {
			return nil, fmt.Errorf("network profile %d: duplicate chain_id %d", i, n.ChainID)
		}
		if n.Name == "" {
			n.Name = fmt.Sprintf("chain-%d", n.ChainID)
		}
		out[n.ChainID] = n
	}
	return out, nil
}

// Apply overlays the profile's non-zero settings onto c.
func (p NetworkProfile) Apply(c *Config) {
	if p.MaxFeeGwei > 0 {
		c.MaxFeeGwei = p.MaxFeeGwei
		c.GasPriceGwei = 0
	}
	if p.PriorityFeeGwei > 0 {
		c.PriorityFeeGwei = p.PriorityFeeGwei
	}
	if p.Confirmations > 0 {
		c.Confirmations = p.Confirmations
	}
	if p.LogBlockSpan > 0 {
		c.LogBlockSpan = p.LogBlockSpan
	}
}
