package config

import (
	"errors"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.BlockSize != 4*1024 {
		t.Errorf("default block size: expected 4096, got %d", cfg.BlockSize)
	}
	if cfg.RestartInterval != 16 {
		t.Errorf("default restart interval: expected 16, got %d", cfg.RestartInterval)
	}
	if cfg.CacheMaxBytes != 64*1024*1024 {
		t.Errorf("default cache budget: expected 64MiB, got %d", cfg.CacheMaxBytes)
	}
}

func TestValidateRejectsBadKnobs(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.BlockSize = 0 },
		func(c *Config) { c.RestartInterval = -1 },
		func(c *Config) { c.CompressionLevel = 0 },
		func(c *Config) { c.BloomBits = 0 },
		func(c *Config) { c.BloomHashes = 0 },
		func(c *Config) { c.CacheMaxBytes = 0 },
		func(c *Config) { c.CacheSegments = -1 },
		func(c *Config) { c.NumShards = 0 },
	}

	for i, mutate := range mutations {
		cfg := NewDefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("mutation %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
