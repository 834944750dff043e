package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service owns the lifecycle of bulk operations: PENDING on creation,
// PROCESSING once a worker picks the job up, then one of the terminal
// statuses depending on how the rows fared.
type Service interface {
	Create(ctx context.Context, kind Kind, total int, metadata map[string]any) (*BulkOperation, error)
	Get(ctx context.Context, id snowflake.ID) (*BulkOperation, error)
	Start(ctx context.Context, id snowflake.ID) error
	// AddProgress increments the persisted counters after each chunk.
	AddProgress(ctx context.Context, id snowflake.ID, processed, success, failed int) error
	// Finish derives the terminal status from the counters.
	Finish(ctx context.Context, id snowflake.ID) error
	// Fail marks the operation FAILED with the infrastructure error that
	// aborted it. Row-level failures never land here.
	Fail(ctx context.Context, id snowflake.ID, reason string) error
}
