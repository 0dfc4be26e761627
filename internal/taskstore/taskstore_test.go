package taskstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusFailed, StatusCancelled, StatusAccountHolderDeleted}
	for _, s := range terminal {
		require.True(t, s.Terminal(), string(s))
	}

	live := []Status{StatusPending, StatusInProgress, StatusRetrying}
	for _, s := range live {
		require.False(t, s.Terminal(), string(s))
	}
}

func TestTaskParam(t *testing.T) {
	task := Task{Params: map[string]string{"campaign_slug": "campaign-a"}}

	v, err := task.Param("campaign_slug")
	require.NoError(t, err)
	require.Equal(t, "campaign-a", v)

	_, err = task.Param("retailer_slug")
	require.ErrorIs(t, err, ErrMissingParam)
}
