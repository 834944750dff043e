package scheduler

import (
	"strings"
	"time"

	"github.com/parcelcraft/shipledger/internal/config"
)

// Job names.
const (
	JobBillingCycles  = "run_billing_cycles"
	JobDisputeSweep   = "dispute_sweep"
	JobTopupReconcile = "topup_reconcile"
)

// Config controls the periodic job runner.
type Config struct {
	RunInterval         time.Duration
	LockTTL             time.Duration
	JobTimeout          time.Duration
	TopupReconcileBatch int
	EnabledJobs         []string
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 4 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = config.DefaultBillingConfig().JobTimeout()
	}
	if c.TopupReconcileBatch <= 0 {
		c.TopupReconcileBatch = 50
	}
	if len(c.EnabledJobs) == 0 {
		c.EnabledJobs = []string{JobBillingCycles, JobDisputeSweep, JobTopupReconcile}
	}
	return c
}

func (c Config) enabled(job string) bool {
	for _, name := range c.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(name), job) {
			return true
		}
	}
	return false
}
