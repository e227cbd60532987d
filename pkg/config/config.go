package config

// Package config provides a reusable loader for ledgerchain configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ledgerchain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a ledgerchain process.
// It mirrors the structure of the YAML files under config/.
type Config struct {
	Chain struct {
		Name          string `mapstructure:"name" json:"name"`
		RedoLogDir    string `mapstructure:"redo_log_dir" json:"redo_log_dir"`
		HashRoutine   string `mapstructure:"hash_routine" json:"hash_routine"`
		Format        string `mapstructure:"format" json:"format"`
		Integrity     string `mapstructure:"integrity" json:"integrity"`
		WriterQueue   int    `mapstructure:"writer_queue" json:"writer_queue"`
		FlushScope    string `mapstructure:"flush_scope" json:"flush_scope"`
		SymmetricBits int    `mapstructure:"symmetric_bits" json:"symmetric_bits"`
		SignScheme    string `mapstructure:"sign_scheme" json:"sign_scheme"`
		KemScheme     string `mapstructure:"kem_scheme" json:"kem_scheme"`
	} `mapstructure:"chain" json:"chain"`

	Compaction struct {
		Enabled         bool `mapstructure:"enabled" json:"enabled"`
		Tombstones      bool `mapstructure:"tombstones" json:"tombstones"`
		Deduplicate     bool `mapstructure:"deduplicate" json:"deduplicate"`
	} `mapstructure:"compaction" json:"compaction"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, utils.Wrap(err, "load .env")
		}
	}

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LEDGERCHAIN_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGERCHAIN_ENV", ""))
}

// Defaults returns a Config populated with sane defaults for a standalone
// chain, for callers that don't need file-backed configuration.
func Defaults() Config {
	var c Config
	c.Chain.Name = "default"
	c.Chain.RedoLogDir = "./data"
	c.Chain.HashRoutine = "blake3"
	c.Chain.Format = "msgpack"
	c.Chain.Integrity = "distributed"
	c.Chain.WriterQueue = 64
	c.Chain.FlushScope = "local"
	c.Chain.SymmetricBits = 256
	c.Chain.SignScheme = "Falcon-512"
	c.Chain.KemScheme = "ML-KEM-768"
	c.Compaction.Enabled = true
	c.Compaction.Tombstones = true
	c.Compaction.Deduplicate = true
	c.Logging.Level = "info"
	return c
}
