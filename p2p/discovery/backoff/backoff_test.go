package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	f := NewExponentialBackoff(time.Second, 10*time.Second, 2.0, NoJitter)
	b := f()

	require.Equal(t, time.Second, b.Delay())
	require.Equal(t, 2*time.Second, b.Delay())
	require.Equal(t, 4*time.Second, b.Delay())
	require.Equal(t, 8*time.Second, b.Delay())
	// would be 16s uncapped; max caps it at 10s.
	require.Equal(t, 10*time.Second, b.Delay())
}

func TestExponentialBackoffInstancesAreIndependent(t *testing.T) {
	f := NewExponentialBackoff(time.Second, 0, 2.0, NoJitter)
	a := f()
	b := f()

	require.Equal(t, time.Second, a.Delay())
	require.Equal(t, 2*time.Second, a.Delay())
	// b hasn't been called yet; its attempt counter must not have advanced.
	require.Equal(t, time.Second, b.Delay())
}

func TestFullJitterStaysWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := FullJitter(5*time.Second, 0)
		require.True(t, d >= 0 && d <= 5*time.Second)
	}
}

func TestFullJitterRespectsMax(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := FullJitter(20*time.Second, 5*time.Second)
		require.True(t, d >= 0 && d <= 5*time.Second)
	}
}

func TestFixedBackoffNeverChanges(t *testing.T) {
	f := NewFixedBackoff(3 * time.Second)
	b := f()
	require.Equal(t, 3*time.Second, b.Delay())
	require.Equal(t, 3*time.Second, b.Delay())
}
