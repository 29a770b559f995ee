package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	defaultMaxIterations = 10
	defaultToolTimeout   = 30 * time.Second
	defaultSandbox       = 5 * time.Second
	defaultAgentDepth    = 5
	defaultStreamBuffer  = 16
)

// Config stores the coarse grained runtime settings for an Engine
// instance. Durations are JSON numbers in nanoseconds, matching
// time.Duration encoding.
type Config struct {
	MaxIterations  int               `json:"max_iterations"`
	ToolTimeout    time.Duration     `json:"tool_timeout"`
	SandboxTimeout time.Duration     `json:"sandbox_timeout"`
	MaxAgentDepth  int               `json:"max_agent_depth"`
	StreamBuffer   int               `json:"stream_buffer"`
	Env            map[string]string `json:"env,omitempty"`
}

// LoadConfig loads and validates configuration from disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return DecodeConfig(data)
}

// DecodeConfig parses a raw JSON payload into a Config instance.
func DecodeConfig(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("config payload is empty")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalized := cfg.Normalize()
	return &normalized, nil
}

// Validate enforces minimal structural guarantees.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative: %d", c.MaxIterations)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout cannot be negative: %d", c.ToolTimeout)
	}
	if c.SandboxTimeout < 0 {
		return fmt.Errorf("sandbox_timeout cannot be negative: %d", c.SandboxTimeout)
	}
	if c.MaxAgentDepth < 0 {
		return fmt.Errorf("max_agent_depth cannot be negative: %d", c.MaxAgentDepth)
	}
	if c.StreamBuffer < 0 {
		return fmt.Errorf("stream_buffer cannot be negative: %d", c.StreamBuffer)
	}
	return nil
}

// Normalize enforces sane defaults for unset fields.
func (c Config) Normalize() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	if c.SandboxTimeout <= 0 {
		c.SandboxTimeout = defaultSandbox
	}
	if c.MaxAgentDepth <= 0 {
		c.MaxAgentDepth = defaultAgentDepth
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = defaultStreamBuffer
	}
	return c
}
