package socket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_EphemeralPortsSendAndReceive(t *testing.T) {
	rx, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: 0})
	require.NoError(t, err)
	defer rx.Close()

	rxPort := rx.conn.LocalAddr().(*net.UDPAddr).Port

	tx, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: rxPort})
	require.NoError(t, err)
	defer tx.Close()

	n, err := tx.Send([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, MaxDatagramSize)
	var got int
	require.Eventually(t, func() bool {
		n, err := rx.Read(buf)
		require.NoError(t, err)
		got = n
		return n > 0
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, "hello", string(buf[:got]))
}

func TestSend_ZeroLengthIsNoop(t *testing.T) {
	tx, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: 9})
	require.NoError(t, err)
	defer tx.Close()

	n, err := tx.Send(nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRead_NoPendingDataReturnsZeroImmediately(t *testing.T) {
	rx, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: 0})
	require.NoError(t, err)
	defer rx.Close()

	buf := make([]byte, MaxDatagramSize)
	start := time.Now()
	n, err := rx.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Less(t, time.Since(start), 500*time.Millisecond, "Read must not block the tick")
}

func TestOpen_RejectsTCP(t *testing.T) {
	_, err := Open(Config{Address: "127.0.0.1", Type: TCP, InputPort: 0, OutputPort: 0})
	require.Error(t, err)
}

func TestDisabled_SendAndReadAreNoops(t *testing.T) {
	s, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: 0, Disabled: true})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Disabled())
	n, err := s.Send([]byte("x"))
	require.NoError(t, err)
	require.Zero(t, n)

	buf := make([]byte, 16)
	n, err = s.Read(buf)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestClose_Idempotent(t *testing.T) {
	s, err := Open(Config{Address: "127.0.0.1", Type: UDP, InputPort: 0, OutputPort: 0})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
