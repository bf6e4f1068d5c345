// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"

	"inscriber/bitcoin"
)

// Config holds service configuration loaded from INSCRIBER_ environment
// variables.
type Config struct {
	Datadir        string `mapstructure:"DATADIR" envDefault:"inscriber" envInfo:"Data directory for inscription state"`
	DbType         string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	Network        string `mapstructure:"NETWORK" envDefault:"mainnet" envInfo:"Bitcoin network: mainnet | testnet | signet | regtest"`
	EsploraURL     string `mapstructure:"ESPLORA_URL" envDefault:"https://blockstream.info/api" envInfo:"Esplora base URL"`
	LogLevel       uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	MaxContentSize int    `mapstructure:"MAX_CONTENT_SIZE" envDefault:"390000" envInfo:"Inscription body size limit in bytes"`
	Postage        int64  `mapstructure:"POSTAGE" envDefault:"10000" envInfo:"Amount delivered with the inscription, in Satoshi"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("INSCRIBER")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if _, err := bitcoin.NetworkParams(config.Network); err != nil {
		return nil, err
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	return &config, nil
}

func (c *Config) initDatadir() error {
	if c.DbType != "badger" {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == "inscriber" {
		c.Datadir = btcutil.AppDataDir("inscriber", false)
	}

	return makeDirectoryIfNotExists(c.Datadir)
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
