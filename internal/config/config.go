package config

import (
	"time"

	"github.com/spf13/viper"
)

// PaylinkConfig drives payment link generation and verification.
type PaylinkConfig struct {
	Secret  string
	BaseURL string
	MaxAge  time.Duration
}

// StorageConfig selects the persistence backend. Driver is "postgres" or
// "json"; SnapshotPath only applies to the json driver.
type StorageConfig struct {
	Driver       string
	SnapshotPath string
}

// AccountConfig holds account provisioning settings.
type AccountConfig struct {
	OpeningBalance int64
}

func LoadPaylinkConfig() *PaylinkConfig {
	viper.SetDefault("paylink.base_url", "http://localhost:8080")
	viper.SetDefault("paylink.max_age", 15*time.Minute)

	return &PaylinkConfig{
		Secret:  viper.GetString("paylink.secret"),
		BaseURL: viper.GetString("paylink.base_url"),
		MaxAge:  viper.GetDuration("paylink.max_age"),
	}
}

func LoadStorageConfig() *StorageConfig {
	viper.SetDefault("storage.driver", "postgres")
	viper.SetDefault("storage.snapshot_path", "lumenbank.json")

	return &StorageConfig{
		Driver:       viper.GetString("storage.driver"),
		SnapshotPath: viper.GetString("storage.snapshot_path"),
	}
}

func LoadAccountConfig() *AccountConfig {
	viper.SetDefault("account.opening_balance", 100000)

	return &AccountConfig{
		OpeningBalance: viper.GetInt64("account.opening_balance"),
	}
}
