package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the tunables of the billing pipeline.
type BillingConfig struct {
	ChunkSize         int     `mapstructure:"chunkSize"`
	DisputeWindowDays int     `mapstructure:"disputeWindowDays"`
	MarkerTTLHours    int     `mapstructure:"markerTTLHours"`
	JobTimeoutMinutes int     `mapstructure:"jobTimeoutMinutes"`
	CycleBatchSize    int     `mapstructure:"cycleBatchSize"`
	DisputeSweepBatch int     `mapstructure:"disputeSweepBatch"`
	VolumetricDivisor float64 `mapstructure:"volumetricDivisor"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		ChunkSize:         50,
		DisputeWindowDays: 7,
		MarkerTTLHours:    72,
		JobTimeoutMinutes: 30,
		CycleBatchSize:    25,
		DisputeSweepBatch: 100,
		VolumetricDivisor: 5000,
	}
}

func (c BillingConfig) DisputeWindow() time.Duration {
	return time.Duration(c.DisputeWindowDays) * 24 * time.Hour
}

func (c BillingConfig) MarkerTTL() time.Duration {
	return time.Duration(c.MarkerTTLHours) * time.Hour
}

func (c BillingConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMinutes) * time.Minute
}

// BillingConfigHolder exposes the current billing config and hot-reloads it
// when the backing file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/shipledger/config")
	v.AddConfigPath("/etc/shipledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHIPLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.chunkSize", defaults.ChunkSize)
	v.SetDefault("billing.disputeWindowDays", defaults.DisputeWindowDays)
	v.SetDefault("billing.markerTTLHours", defaults.MarkerTTLHours)
	v.SetDefault("billing.jobTimeoutMinutes", defaults.JobTimeoutMinutes)
	v.SetDefault("billing.cycleBatchSize", defaults.CycleBatchSize)
	v.SetDefault("billing.disputeSweepBatch", defaults.DisputeSweepBatch)
	v.SetDefault("billing.volumetricDivisor", defaults.VolumetricDivisor)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.ChunkSize <= 0 {
		return errors.New("billing.chunkSize must be positive")
	}
	if cfg.DisputeWindowDays <= 0 {
		return errors.New("billing.disputeWindowDays must be positive")
	}
	if cfg.VolumetricDivisor <= 0 {
		return errors.New("billing.volumetricDivisor must be positive")
	}
	return nil
}
