// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"code.hybscloud.com/xdptx"
	"code.hybscloud.com/xdptx/internal/umem"
)

// Config holds bench parameters.
type Config struct {
	Packets       int
	QueueCapacity int
	RingSize      int
	MaxBatch      int
	FrameSize     int
	MaxIterations int
	MaxDelay      time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Packets:       1 << 20,
		QueueCapacity: 1024,
		RingSize:      2048,
		MaxBatch:      64,
		FrameSize:     umem.MinFrameSize,
		MaxIterations: xdptx.DefaultMaxIterations,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch {
	case c.Packets < 1:
		return errors.New("packets must be positive")
	case c.QueueCapacity < 2:
		return errors.New("queue-capacity must be at least 2")
	case c.RingSize < 2 || c.RingSize&(c.RingSize-1) != 0:
		return fmt.Errorf("ring-size %d must be a power of 2 >= 2", c.RingSize)
	case c.MaxBatch < 1:
		return errors.New("max-batch must be positive")
	case c.FrameSize < umem.MinFrameSize || c.FrameSize&(c.FrameSize-1) != 0:
		return fmt.Errorf("frame-size %d must be a power of 2 >= %d", c.FrameSize, umem.MinFrameSize)
	case c.MaxIterations < 1:
		return errors.New("max-iterations must be positive")
	case c.MaxDelay < 0:
		return errors.New("max-delay must not be negative")
	}
	return nil
}

// FileConfig mirrors Config but uses a string for the delay to make TOML friendly.
type FileConfig struct {
	Packets       int    `toml:"packets"`
	QueueCapacity int    `toml:"queue_capacity"`
	RingSize      int    `toml:"ring_size"`
	MaxBatch      int    `toml:"max_batch"`
	FrameSize     int    `toml:"frame_size"`
	MaxIterations int    `toml:"max_iterations"`
	MaxDelay      string `toml:"max_delay"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig applies file values to cfg.
// Zero values and flags present in changed are left alone.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	setInt := func(flag string, v int, dst *int) {
		if v != 0 && !changed[flag] {
			*dst = v
		}
	}
	setInt("packets", fc.Packets, &cfg.Packets)
	setInt("queue-capacity", fc.QueueCapacity, &cfg.QueueCapacity)
	setInt("ring-size", fc.RingSize, &cfg.RingSize)
	setInt("max-batch", fc.MaxBatch, &cfg.MaxBatch)
	setInt("frame-size", fc.FrameSize, &cfg.FrameSize)
	setInt("max-iterations", fc.MaxIterations, &cfg.MaxIterations)

	if fc.MaxDelay != "" && !changed["max-delay"] {
		d, err := time.ParseDuration(fc.MaxDelay)
		if err != nil {
			return fmt.Errorf("max_delay: %w", err)
		}
		cfg.MaxDelay = d
	}
	return nil
}
