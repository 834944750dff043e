package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Row is one line of a billing upload: the AWB and the courier-observed
// weight in kg.
type Row struct {
	AWB    string  `json:"awb"`
	Weight float64 `json:"weight"`
}

// Outcome classifies a processed row. Skips are rows already billed for the
// month; they count as successes so replays report clean totals.
type Outcome string

const (
	OutcomeBilled  Outcome = "billed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// RowResult reports how one row fared.
type RowResult struct {
	AWB     string
	Outcome Outcome
	Reason  string
	Billing *Billing
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Processed int
	Success   int
	Failed    int
}

// Engine rates shipments and applies the resulting charges. Batch uploads,
// cycle runs and manual invocations all funnel through the same per-row
// path, so the exactly-once guarantees hold regardless of entry point.
type Engine interface {
	// ProcessBatch works through rows in configured chunks, persisting
	// progress on the bulk operation after each chunk. Row-level problems
	// are counted and reported; only infrastructure errors abort the batch.
	ProcessBatch(ctx context.Context, bulkOpID snowflake.ID, rows []Row) (BatchResult, error)

	// ProcessRow bills a single AWB at the given weight for the month
	// containing now.
	ProcessRow(ctx context.Context, row Row, now time.Time) (RowResult, error)

	// RetryUnpaid re-attempts the wallet debit for NOT_PAID billings of a
	// merchant, oldest first. Used after wallet top-ups.
	RetryUnpaid(ctx context.Context, merchantID snowflake.ID, limit int) (int, error)
}

// MonthOf formats the billing month key.
func MonthOf(t time.Time) string { return t.UTC().Format("2006-01") }
