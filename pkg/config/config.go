// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config owns toolgate's typed Config and the environment/flag
// bindings of spec §6, mirroring the teacher's cmd/*/app pattern: cobra
// flags bound into viper, viper reading a TOOLGATE_-prefixed
// environment table, then an optional toolgate.yaml in the base
// directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/toolgate/pkg/discovery"
	"github.com/stacklok/toolgate/pkg/embedding"
	"github.com/stacklok/toolgate/pkg/finder"
	"github.com/stacklok/toolgate/pkg/pool"
	"github.com/stacklok/toolgate/pkg/router"
)

// DefaultBaseDir is where state lives when base_dir_override isn't set.
const DefaultBaseDir = "~/.toolgate"

// Config is the typed form of spec §6's environment table plus the
// upstream listener settings needed to actually bind a server.
type Config struct {
	BaseDir     string
	ProfileName string

	MaxOpenConnections       int
	MaxReusePerConnection    int
	IdleEvictionSeconds      int
	RunDeadlineSeconds       int
	DiscoveryDeadlineSeconds int
	MinConfidence            float64
	DebugLogging             bool

	EmbeddingServiceURL string
	EmbeddingModel      string
	EmbeddingDimension  int

	Host string
	Port int
}

// Defaults returns a Config populated with every package's own default
// constant, so there is exactly one place (this function) where spec
// §6's defaults are assembled, and each component still owns its own
// default value.
func Defaults() Config {
	return Config{
		BaseDir:                  DefaultBaseDir,
		ProfileName:              "default",
		MaxOpenConnections:       pool.DefaultMaxOpen,
		MaxReusePerConnection:    pool.DefaultMaxReuse,
		IdleEvictionSeconds:      int(pool.DefaultIdleEvict / time.Second),
		RunDeadlineSeconds:       int(router.DefaultDeadline / time.Second),
		DiscoveryDeadlineSeconds: int(discovery.DefaultDeadline / time.Second),
		MinConfidence:            finder.DefaultMinConfidence,
		DebugLogging:             false,
		EmbeddingModel:           embedding.DefaultModel,
		EmbeddingDimension:       384,
		Host:                     "127.0.0.1",
		Port:                     8077,
	}
}

// envKeys maps each spec §6 environment variable to its bind path in
// viper; BindEnv registers the TOOLGATE_ prefix once per key here
// rather than relying on AutomaticEnv's key-transform guesswork.
var envKeys = []string{
	"base_dir_override",
	"profile_name",
	"max_open_connections",
	"max_reuse_per_connection",
	"idle_eviction_seconds",
	"run_deadline_seconds",
	"discovery_deadline_seconds",
	"min_confidence",
	"debug_logging",
	"embedding_model",
}

// Bind registers spec §6's environment table on v with the TOOLGATE_
// prefix and seeds v with Defaults(), so Load can be called with no
// config file present and still get a usable Config.
func Bind(v *viper.Viper) error {
	v.SetEnvPrefix("TOOLGATE")
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	d := Defaults()
	v.SetDefault("base_dir_override", d.BaseDir)
	v.SetDefault("profile_name", d.ProfileName)
	v.SetDefault("max_open_connections", d.MaxOpenConnections)
	v.SetDefault("max_reuse_per_connection", d.MaxReusePerConnection)
	v.SetDefault("idle_eviction_seconds", d.IdleEvictionSeconds)
	v.SetDefault("run_deadline_seconds", d.RunDeadlineSeconds)
	v.SetDefault("discovery_deadline_seconds", d.DiscoveryDeadlineSeconds)
	v.SetDefault("min_confidence", d.MinConfidence)
	v.SetDefault("debug_logging", d.DebugLogging)
	v.SetDefault("embedding_service_url", "")
	v.SetDefault("embedding_model", d.EmbeddingModel)
	v.SetDefault("embedding_dimension", d.EmbeddingDimension)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	return nil
}

// Load reads an already-bound viper instance (see Bind) plus an
// optional toolgate.yaml from the resolved base directory into a
// Config.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseDir:                  v.GetString("base_dir_override"),
		ProfileName:              v.GetString("profile_name"),
		MaxOpenConnections:       v.GetInt("max_open_connections"),
		MaxReusePerConnection:    v.GetInt("max_reuse_per_connection"),
		IdleEvictionSeconds:      v.GetInt("idle_eviction_seconds"),
		RunDeadlineSeconds:       v.GetInt("run_deadline_seconds"),
		DiscoveryDeadlineSeconds: v.GetInt("discovery_deadline_seconds"),
		MinConfidence:            v.GetFloat64("min_confidence"),
		DebugLogging:             v.GetBool("debug_logging"),
		EmbeddingServiceURL:      v.GetString("embedding_service_url"),
		EmbeddingModel:           v.GetString("embedding_model"),
		EmbeddingDimension:       v.GetInt("embedding_dimension"),
		Host:                     v.GetString("host"),
		Port:                     v.GetInt("port"),
	}

	expanded, err := expandHome(cfg.BaseDir)
	if err != nil {
		return Config{}, err
	}
	cfg.BaseDir = expanded

	v.SetConfigName("toolgate")
	v.SetConfigType("yaml")
	v.AddConfigPath(cfg.BaseDir)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	return cfg, nil
}

// expandHome resolves a leading "~" to the user's home directory, the
// way the teacher's optimizer commands resolve their default DB path
// (cmd/thv/app/optimizer.go's os.UserHomeDir calls).
func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory for %q: %w", dir, err)
	}
	if dir == "~" {
		return home, nil
	}
	return filepath.Join(home, dir[2:]), nil
}

// ProfilePath returns the Profile Store document path for profile
// under c.BaseDir (spec §6 persisted state layout).
func (c Config) ProfilePath() string {
	return filepath.Join(c.BaseDir, "profiles", c.ProfileName+".json")
}

// MetadataCachePath returns the L1 envelope path.
func (c Config) MetadataCachePath() string {
	return filepath.Join(c.BaseDir, "cache", "tool-metadata.json")
}

// VectorCachePath returns the L2 envelope path.
func (c Config) VectorCachePath() string {
	return filepath.Join(c.BaseDir, "cache", "embeddings.json")
}

// HealthPath returns the HealthState snapshot path.
func (c Config) HealthPath() string {
	return filepath.Join(c.BaseDir, "health", "health.json")
}

// LogPath returns the per-backend stderr capture path for backend.
func (c Config) LogPath(backend string) string {
	return filepath.Join(c.BaseDir, "logs", backend+".log")
}

// CredentialsPath returns the opaque credential blob path for backend.
func (c Config) CredentialsPath(backend string) string {
	return filepath.Join(c.BaseDir, "credentials", backend+".json")
}

// RunDeadline returns RunDeadlineSeconds as a time.Duration.
func (c Config) RunDeadline() time.Duration {
	return time.Duration(c.RunDeadlineSeconds) * time.Second
}

// DiscoveryDeadline returns DiscoveryDeadlineSeconds as a time.Duration.
func (c Config) DiscoveryDeadline() time.Duration {
	return time.Duration(c.DiscoveryDeadlineSeconds) * time.Second
}

// IdleEviction returns IdleEvictionSeconds as a time.Duration.
func (c Config) IdleEviction() time.Duration {
	return time.Duration(c.IdleEvictionSeconds) * time.Second
}

// EmbeddingConfig projects the embedding-service fields into
// embedding.Config.
func (c Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		ServiceURL: c.EmbeddingServiceURL,
		Model:      c.EmbeddingModel,
		Dimension:  c.EmbeddingDimension,
		Timeout:    30 * time.Second,
	}
}
