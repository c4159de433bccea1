package engine

import (
	"testing"

	"github.com/fieldlink/dscore/internal/events"
	"github.com/fieldlink/dscore/internal/netconsole"
	"github.com/fieldlink/dscore/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestEngine() (*Engine, *store.Store, *events.Queue) {
	q := events.NewQueue(0)
	s := store.New(q)
	e := New(Config{Store: s, Queue: q, NetConsole: netconsole.New(0, 0, q)})
	return e, s, q
}

func TestScenario_ColdStartNoProtocol(t *testing.T) {
	e, s, q := newTestEngine()
	e.Start()
	for {
		if _, ok := q.Poll(); !ok {
			break
		}
	}

	e.Tick(1000)

	require.False(t, s.Comms().FMS)
	require.False(t, s.Comms().Radio)
	require.False(t, s.Comms().Robot)
	_, ok := q.Poll()
	require.False(t, ok, "no events beyond initial state")
}

func TestScenario_InstallProtocol_FirstTickSendsOnlyRobot(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Start()

	p := newFakeProtocol(500, 200, 20)
	require.NoError(t, e.SetProtocol(p))

	e.Tick(20)

	require.Len(t, p.robotSock.outbox, 1)
	require.Empty(t, p.fmsSock.outbox)
	require.Empty(t, p.radioSock.outbox)
}

func TestScenario_RobotAliveThenLost(t *testing.T) {
	e, s, q := newTestEngine()
	e.Start()

	p := newFakeProtocol(500, 200, 20)
	require.NoError(t, e.SetProtocol(p))
	e.Tick(0) // reconcile only

	for i := 0; i < 10; i++ {
		p.robotSock.enqueue([]byte("x"))
		e.Tick(20)
	}
	require.True(t, s.Comms().Robot)

	for {
		if _, ok := q.Poll(); !ok {
			break
		}
	}

	starved := int64(0)
	tripped := false
	for starved < 50*20+20 {
		e.Tick(20)
		starved += 20
		if !s.Comms().Robot {
			tripped = true
			break
		}
	}
	require.True(t, tripped, "robot comms must go false once the watchdog expires")
	require.LessOrEqual(t, starved, int64(50*20+20))

	require.False(t, s.Enabled())
	require.False(t, s.RobotCode())
	require.Zero(t, s.Voltage())
}

func TestScenario_ProtocolHotSwap(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Start()

	a := newFakeProtocol(500, 200, 20)
	require.NoError(t, e.SetProtocol(a))
	e.Tick(0)

	b := newFakeProtocol(500, 200, 40)
	require.NoError(t, e.SetProtocol(b))

	e.Tick(20)
	require.Empty(t, b.robotSock.outbox, "robot send must not fire before 40ms have elapsed on protocol B")
	require.Empty(t, a.robotSock.outbox, "protocol A must no longer receive sends")

	e.Tick(20)
	require.Len(t, b.robotSock.outbox, 1)
}

func TestSetProtocol_RejectsMissingSocket(t *testing.T) {
	e, _, _ := newTestEngine()
	p := newFakeProtocol(100, 100, 100)
	p.robotSock = nil

	err := e.SetProtocol(p)
	require.Error(t, err)
	require.Nil(t, e.CurrentProtocol())
}

func TestSetProtocol_RejectsNonPositiveInterval(t *testing.T) {
	e, _, _ := newTestEngine()
	p := newFakeProtocol(0, 100, 100)

	err := e.SetProtocol(p)
	require.Error(t, err)
}

func TestSetProtocol_Nil_StopsTrafficWithoutStoppingEngine(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Start()

	p := newFakeProtocol(10, 10, 10)
	require.NoError(t, e.SetProtocol(p))
	e.Tick(10)
	require.NotEmpty(t, p.robotSock.outbox)

	require.NoError(t, e.SetProtocol(nil))
	e.Tick(10)

	require.True(t, e.Running())
	require.Nil(t, e.CurrentProtocol())
}

func TestInvariant_SendTimerResetsOnlyWhenSendPerformed(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Start()
	p := newFakeProtocol(1000, 1000, 1000)
	require.NoError(t, e.SetProtocol(p))
	e.Tick(0)

	e.Tick(10)
	require.Empty(t, p.robotSock.outbox)
	require.EqualValues(t, 990, e.sendRobot.RemainingMS())
}

func TestReceive_EmptyBufferOnNoIncomingData(t *testing.T) {
	e, s, _ := newTestEngine()
	e.Start()
	p := newFakeProtocol(1000, 1000, 1000)
	require.NoError(t, e.SetProtocol(p))
	e.Tick(0)

	e.Tick(10)
	require.False(t, s.Comms().Robot, "no data arrived; comms must stay down")
}

func TestStop_SkipsSendAndReceiveButKeepsReconciling(t *testing.T) {
	e, _, _ := newTestEngine()
	e.Start()
	p := newFakeProtocol(10, 10, 10)
	require.NoError(t, e.SetProtocol(p))
	e.Tick(0)

	e.Stop()
	p.robotSock.enqueue([]byte("x"))
	e.Tick(10)

	require.Empty(t, p.robotSock.outbox, "stopped engine must not send")

	q2 := newFakeProtocol(20, 20, 20)
	require.NoError(t, e.SetProtocol(q2))
	e.Tick(1)
	require.EqualValues(t, 20, e.sendRobot.IntervalMS(), "reconciliation still applies while stopped")
}
