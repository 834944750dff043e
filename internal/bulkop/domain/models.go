package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindBillingBatch Kind = "BILLING_BATCH"
	KindCycleRun     Kind = "CYCLE_RUN"
	KindDisputeSweep Kind = "DISPUTE_SWEEP"
)

type Status string

const (
	StatusPending             Status = "PENDING"
	StatusProcessing          Status = "PROCESSING"
	StatusCompleted           Status = "COMPLETED"
	StatusCompletedWithErrors Status = "COMPLETED_WITH_ERRORS"
	StatusFailed              Status = "FAILED"
)

// BulkOperation tracks one long-running batch job end to end. Progress
// counters are persisted per chunk so an interrupted job resumes with an
// accurate trail instead of starting from zero.
type BulkOperation struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	Kind         Kind              `gorm:"size:32;index"`
	Status       Status            `gorm:"size:32;index"`
	TotalCount   int               `gorm:"not null;default:0"`
	Processed    int               `gorm:"not null;default:0"`
	Success      int               `gorm:"not null;default:0"`
	Failed       int               `gorm:"not null;default:0"`
	ErrorMessage string            `gorm:"size:1024"`
	Metadata     datatypes.JSONMap `gorm:"type:json"`
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BulkOperation) TableName() string { return "bulk_operations" }

// Terminal reports whether the operation has reached a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed:
		return true
	}
	return false
}
