package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduler_IncreaseDoublesAndCaps(t *testing.T) {
	s := New(time.Second, 10*time.Second)

	require.Equal(t, 2*time.Second, s.Increase())
	require.Equal(t, 4*time.Second, s.Increase())
	require.Equal(t, 8*time.Second, s.Increase())
	require.Equal(t, 10*time.Second, s.Increase())
	require.Equal(t, 10*time.Second, s.Increase())
}

func TestScheduler_DecreaseResetsToFloor(t *testing.T) {
	s := New(time.Second, 10*time.Second)

	s.Increase()
	s.Increase()
	require.Equal(t, time.Second, s.Decrease())
	require.Equal(t, time.Second, s.Current())
}
