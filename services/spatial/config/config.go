// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds runtime configuration for the spatial engine.
//
// Configuration merges three layers with increasing priority:
//
//	defaults < config file (YAML or JSON) < environment (SPATIAL_*)
//
// The package also provides Globals, a sealed key/value map that walker
// abilities read through Context.Global. Storage backend sections are
// plain structs here; the runtime facade translates them into the
// backend packages' own config types so this package stays free of
// driver imports.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure reported by Validate.
var ErrInvalid = errors.New("invalid spatial config")

// validate is the shared struct validator for config types.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the top-level spatial runtime configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// the runtime is constructed from it.
type Config struct {
	// Engine contains traversal engine settings.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Graph contains graph store settings.
	Graph GraphConfig `json:"graph" yaml:"graph"`

	// Storage contains persistence settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EngineConfig contains walker engine settings.
type EngineConfig struct {
	// MaxSteps bounds the elements one walker may visit. Zero means
	// unlimited.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"gte=0"`

	// WorkerPoolSize bounds concurrent background tasks per ability
	// invocation. Zero means unlimited.
	WorkerPoolSize int `json:"worker_pool_size" yaml:"worker_pool_size" validate:"gte=0"`

	// FilterCacheSize caps the compiled filter expression cache.
	FilterCacheSize int `json:"filter_cache_size" yaml:"filter_cache_size" validate:"gte=1"`
}

// GraphConfig contains graph store settings.
type GraphConfig struct {
	// StripeCount sets the store's lock stripe count.
	StripeCount int `json:"stripe_count" yaml:"stripe_count" validate:"gte=1"`

	// MaxNodes caps live nodes across all roots. Zero keeps the store
	// default.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`

	// MaxEdges caps live edges across all roots. Zero keeps the store
	// default.
	MaxEdges int `json:"max_edges" yaml:"max_edges" validate:"gte=0"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend names the persistence tier.
	Backend string `json:"backend" yaml:"backend" validate:"oneof=memory badger redis weaviate"`

	// Badger contains embedded-store settings (Backend "badger").
	Badger BadgerConfig `json:"badger" yaml:"badger"`

	// Redis contains cache-tier settings (Backend "redis").
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Weaviate contains object-store settings (Backend "weaviate").
	Weaviate WeaviateConfig `json:"weaviate" yaml:"weaviate"`
}

// BadgerConfig contains embedded badger store settings.
type BadgerConfig struct {
	// Path is the on-disk database directory. Ignored when InMemory.
	Path string `json:"path" yaml:"path"`

	// InMemory keeps the database off disk, for tests.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites fsyncs each commit.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval spaces value-log garbage collection runs. Zero
	// disables the collector.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`
}

// RedisConfig contains redis cache-tier settings.
type RedisConfig struct {
	// URL is a redis connection URL, e.g. "redis://localhost:6379/0".
	URL string `json:"url" yaml:"url"`

	// TTL expires persisted records. Zero means no expiry.
	TTL time.Duration `json:"ttl" yaml:"ttl" validate:"gte=0"`
}

// WeaviateConfig contains weaviate object-store settings.
type WeaviateConfig struct {
	// Host is the weaviate host:port.
	Host string `json:"host" yaml:"host"`

	// Scheme is "http" or "https".
	Scheme string `json:"scheme" yaml:"scheme" validate:"omitempty,oneof=http https"`

	// APIKey authenticates requests. Empty for anonymous access.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Class is the weaviate class holding spatial records.
	Class string `json:"class" yaml:"class"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// JSON switches stderr output to JSON format.
	JSON bool `json:"json" yaml:"json"`

	// Dir enables file logging to the given directory.
	Dir string `json:"dir" yaml:"dir"`
}

// DefaultConfig returns the default configuration.
//
// Outputs:
//   - Config: In-memory storage, info logging, modest engine bounds.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			MaxSteps:        0,
			WorkerPoolSize:  8,
			FilterCacheSize: 256,
		},
		Graph: GraphConfig{
			StripeCount: 64,
			MaxNodes:    0,
			MaxEdges:    0,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Badger: BadgerConfig{
				Path:       "",
				InMemory:   false,
				SyncWrites: false,
				GCInterval: 5 * time.Minute,
			},
			Redis: RedisConfig{
				URL: "redis://localhost:6379/0",
				TTL: 0,
			},
			Weaviate: WeaviateConfig{
				Host:   "localhost:8080",
				Scheme: "http",
				Class:  "SpatialElement",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to a YAML/JSON config file. Optional; a missing
//     file falls through to defaults.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or the merged
//     result fails validation.
func Load(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// LoadEnv loads optional .env files into the process environment so a
// following Load picks their SPATIAL_* values up. Missing files are
// ignored; malformed files are not.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadConfigFromEnv(config *Config) {
	// Engine
	if v := os.Getenv("SPATIAL_MAX_STEPS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxSteps = i
		}
	}
	if v := os.Getenv("SPATIAL_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Engine.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("SPATIAL_FILTER_CACHE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Engine.FilterCacheSize = i
		}
	}

	// Graph
	if v := os.Getenv("SPATIAL_STRIPE_COUNT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Graph.StripeCount = i
		}
	}
	if v := os.Getenv("SPATIAL_MAX_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Graph.MaxNodes = i
		}
	}
	if v := os.Getenv("SPATIAL_MAX_EDGES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Graph.MaxEdges = i
		}
	}

	// Storage
	if v := os.Getenv("SPATIAL_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("SPATIAL_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("SPATIAL_BADGER_IN_MEMORY"); v != "" {
		config.Storage.Badger.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("SPATIAL_BADGER_SYNC_WRITES"); v != "" {
		config.Storage.Badger.SyncWrites = v == "true" || v == "1"
	}
	if v := os.Getenv("SPATIAL_BADGER_GC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Storage.Badger.GCInterval = d
		}
	}
	if v := os.Getenv("SPATIAL_REDIS_URL"); v != "" {
		config.Storage.Redis.URL = v
	}
	if v := os.Getenv("SPATIAL_REDIS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Storage.Redis.TTL = d
		}
	}
	if v := os.Getenv("SPATIAL_WEAVIATE_HOST"); v != "" {
		config.Storage.Weaviate.Host = v
	}
	if v := os.Getenv("SPATIAL_WEAVIATE_SCHEME"); v != "" {
		config.Storage.Weaviate.Scheme = v
	}
	if v := os.Getenv("SPATIAL_WEAVIATE_API_KEY"); v != "" {
		config.Storage.Weaviate.APIKey = v
	}
	if v := os.Getenv("SPATIAL_WEAVIATE_CLASS"); v != "" {
		config.Storage.Weaviate.Class = v
	}

	// Logging
	if v := os.Getenv("SPATIAL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SPATIAL_LOG_JSON"); v != "" {
		config.Logging.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("SPATIAL_LOG_DIR"); v != "" {
		config.Logging.Dir = v
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil (wrapping ErrInvalid) if any field is out of
//     range or a backend selection is incomplete.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Storage.Backend {
	case "badger":
		if !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
			return fmt.Errorf("%w: storage.badger.path required unless in_memory", ErrInvalid)
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("%w: storage.redis.url required", ErrInvalid)
		}
	case "weaviate":
		if c.Storage.Weaviate.Host == "" {
			return fmt.Errorf("%w: storage.weaviate.host required", ErrInvalid)
		}
	}
	return nil
}
