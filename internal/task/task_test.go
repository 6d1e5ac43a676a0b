package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{" DONE ", StatusDone, false},
		{"in_progress", StatusInProgress, false},
		{"failed", StatusFailed, false},
		{"needs-follow-up", StatusNeedsFollowUp, false},
		{"needs_follow_up", StatusNeedsFollowUp, false},
		{"", "", true},
		{"complete", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.False(t, StatusNeedsFollowUp.Terminal())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusPending.CanTransitionTo(StatusDone))

	for _, next := range []Status{StatusDone, StatusFailed, StatusNeedsFollowUp} {
		assert.True(t, StatusInProgress.CanTransitionTo(next), next)
	}
	assert.False(t, StatusInProgress.CanTransitionTo(StatusPending))

	for _, from := range []Status{StatusDone, StatusFailed, StatusNeedsFollowUp} {
		for _, to := range AllStatuses() {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, PhasePlanning, ParsePhase("planning"))
	assert.Equal(t, PhaseDeployment, ParsePhase(" Deployment"))
	assert.Equal(t, DefaultPhase, ParsePhase(""))
	assert.Equal(t, DefaultPhase, ParsePhase("research"))
}

func TestSummaryHelpers(t *testing.T) {
	s := Summary{Total: 4, Done: 2, Failed: 1, NeedsFollowUp: 1}
	assert.Equal(t, 1, s.Outstanding())
	assert.False(t, s.FullySucceeded())

	assert.True(t, Summary{Total: 2, Done: 2}.FullySucceeded())
	assert.True(t, Summary{}.FullySucceeded())
}
