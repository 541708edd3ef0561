package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendRecvRoundTrip(t *testing.T) {
	a, err := Bind(0)
	require.NoError(t, err)
	defer a.Close()

	b, err := Bind(0)
	require.NoError(t, err)
	defer b.Close()

	payload := []byte("hello voxel")
	require.NoError(t, b.SendTo(a.LocalAddr(), payload))

	var got Datagram
	require.Eventually(t, func() bool {
		dg, ok, err := a.Recv()
		if err != nil || !ok {
			return false
		}
		got = dg
		return true
	}, time.Second, time.Millisecond)

	require.Equal(t, payload, got.Payload)
}

func TestRecvWithNothingQueuedReturnsFalse(t *testing.T) {
	s, err := Bind(0)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Recv()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDrainUpToStopsAtCap(t *testing.T) {
	a, err := Bind(0)
	require.NoError(t, err)
	defer a.Close()
	b, err := Bind(0)
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.SendTo(a.LocalAddr(), []byte{byte(i)}))
	}
	time.Sleep(50 * time.Millisecond)

	count := 0
	require.NoError(t, a.DrainUpTo(2, func(Datagram) { count++ }))
	require.LessOrEqual(t, count, 2)
}
