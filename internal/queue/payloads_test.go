package queue

import (
	"encoding/json"
	"testing"

	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingBatchPayload_Validate(t *testing.T) {
	valid := BillingBatchPayload{
		BulkOpID: 42,
		Rows: []billingdomain.Row{
			{AWB: "AWB001", Weight: 0.5},
			{AWB: "AWB002", Weight: 1.2},
		},
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, BillingBatchPayload{Rows: valid.Rows}.Validate(), "missing bulk op id")
	assert.Error(t, BillingBatchPayload{BulkOpID: 42}.Validate(), "empty rows")
	assert.Error(t, BillingBatchPayload{
		BulkOpID: 42,
		Rows:     []billingdomain.Row{{AWB: "", Weight: 0.5}},
	}.Validate(), "empty awb")
	assert.Error(t, BillingBatchPayload{
		BulkOpID: 42,
		Rows:     []billingdomain.Row{{AWB: "AWB001", Weight: 0}},
	}.Validate(), "non-positive weight")
}

func TestBillingBatchPayload_RoundTrip(t *testing.T) {
	payload := BillingBatchPayload{
		BulkOpID: 7,
		Rows:     []billingdomain.Row{{AWB: "AWB001", Weight: 1.5}},
	}
	body, err := marshalPayload(payload)
	require.NoError(t, err)

	var decoded BillingBatchPayload
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestTimestampedPayloads_Validate(t *testing.T) {
	assert.Error(t, CycleRunPayload{}.Validate())
	assert.NoError(t, CycleRunPayload{RequestedAt: 1706745600}.Validate())

	assert.Error(t, DisputeSweepPayload{}.Validate())
	assert.NoError(t, DisputeSweepPayload{RequestedAt: 1706745600}.Validate())
}
