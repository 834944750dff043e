package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrDisputeNotFound        = errors.New("weight dispute not found")
	ErrDisputeAlreadyResolved = errors.New("weight dispute already resolved")
	ErrActorNotAllowed        = errors.New("actor not allowed to perform this transition")
)

// SweepReport summarizes one auto-resolution pass.
type SweepReport struct {
	Due      int
	Resolved int
	Failed   int
}

// Service owns dispute transitions. Accept refunds the contested excess to
// the merchant wallet; Reject and the deadline sweep let the charge stand.
type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*WeightDispute, error)
	// Accept upholds the merchant declaration. Merchant or admin.
	Accept(ctx context.Context, id snowflake.ID, actor Actor, note string) error
	// Reject upholds the courier-observed weight. Admin only.
	Reject(ctx context.Context, id snowflake.ID, actor Actor, note string) error
	// AutoResolveDue closes every dispute whose deadline has passed,
	// upholding the observed weight. Failures are counted per dispute so
	// one bad row never stalls the sweep.
	AutoResolveDue(ctx context.Context, now time.Time) (SweepReport, error)
}
