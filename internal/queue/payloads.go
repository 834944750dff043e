package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
)

// Task type names. The prefix routes a task to its queue.
const (
	TypeBillingBatch = "billing:batch"
	TypeCycleRun     = "billing:cycle_run"
	TypeDisputeSweep = "dispute:sweep"
)

// BillingBatchPayload carries an uploaded billing file into the worker. The
// bulk operation is created before enqueue so the upload is visible even
// while the task waits in the queue.
type BillingBatchPayload struct {
	BulkOpID snowflake.ID        `json:"bulk_op_id"`
	Rows     []billingdomain.Row `json:"rows"`
}

func (p BillingBatchPayload) Validate() error {
	if p.BulkOpID == 0 {
		return errors.New("billing batch payload: missing bulk operation id")
	}
	if len(p.Rows) == 0 {
		return errors.New("billing batch payload: no rows")
	}
	for i, row := range p.Rows {
		if row.AWB == "" {
			return fmt.Errorf("billing batch payload: row %d has empty awb", i)
		}
		if row.Weight <= 0 {
			return fmt.Errorf("billing batch payload: row %d (%s) has non-positive weight", i, row.AWB)
		}
	}
	return nil
}

// CycleRunPayload triggers a pass over due billing cycles.
type CycleRunPayload struct {
	// RequestedAt anchors the due check so a delayed task does not pull in
	// cycles that became due after it was scheduled.
	RequestedAt int64 `json:"requested_at"` // unix seconds
}

func (p CycleRunPayload) Validate() error {
	if p.RequestedAt <= 0 {
		return errors.New("cycle run payload: missing requested_at")
	}
	return nil
}

// DisputeSweepPayload triggers auto-resolution of expired disputes.
type DisputeSweepPayload struct {
	RequestedAt int64 `json:"requested_at"` // unix seconds
}

func (p DisputeSweepPayload) Validate() error {
	if p.RequestedAt <= 0 {
		return errors.New("dispute sweep payload: missing requested_at")
	}
	return nil
}

func marshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}
