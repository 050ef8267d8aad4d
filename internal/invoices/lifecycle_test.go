package invoices

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{StatusDraft, StatusDC, StatusTransport, StatusFinalized}

func TestAdvanceNeverRegresses(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := from.Advance(to)
			assert.GreaterOrEqual(t, got.Rank(), from.Rank(), "%s -> %s", from, to)
			assert.GreaterOrEqual(t, got.Rank(), to.Rank(), "%s -> %s", from, to)
		}
	}
}

func TestStageTransitions(t *testing.T) {
	assert.Equal(t, StatusDC, AfterChallanSaved(StatusDraft))
	assert.Equal(t, StatusTransport, AfterChallanSaved(StatusTransport))
	assert.Equal(t, StatusFinalized, AfterChallanSaved(StatusFinalized))

	assert.Equal(t, StatusTransport, AfterTransportSaved(StatusDraft))
	assert.Equal(t, StatusTransport, AfterTransportSaved(StatusDC))
	assert.Equal(t, StatusFinalized, AfterTransportSaved(StatusFinalized))

	for _, s := range allStatuses {
		assert.Equal(t, StatusFinalized, AfterBundleWritten(s))
	}
}

func TestStatusValidity(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.IsValid())
	}
	assert.False(t, Status("DRF").IsValid())
	assert.Equal(t, StatusDraft, Status("bogus").Advance(StatusDraft))
}

func TestGateTransport(t *testing.T) {
	err := Gate(StageTransport, StatusDraft)
	var unreachable *StageUnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, StageChallan, unreachable.Fallback)
	assert.Equal(t, "You must complete the Delivery Challan first.", unreachable.Message)

	for _, s := range []Status{StatusDC, StatusTransport, StatusFinalized} {
		assert.NoError(t, Gate(StageTransport, s))
	}
}

func TestGateConfirmation(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusDC} {
		err := Gate(StageConfirmation, s)
		var unreachable *StageUnreachableError
		require.True(t, errors.As(err, &unreachable), s)
		assert.Equal(t, StageTransport, unreachable.Fallback)
	}
	assert.NoError(t, Gate(StageConfirmation, StatusTransport))
	assert.NoError(t, Gate(StageConfirmation, StatusFinalized))
	assert.NoError(t, Gate(StageChallan, StatusDraft))
}
