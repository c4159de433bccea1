// Package engine implements the Event Engine: the single periodic tick
// that drives send timers, reads sockets, invokes protocol callbacks,
// feeds watchdogs, and reacts to watchdog expiry. The engine is
// single-threaded and cooperative — Tick must be called by one driver at a
// cadence finer than the smallest protocol interval.
package engine

import (
	"log/slog"

	"github.com/fieldlink/dscore/internal/events"
	"github.com/fieldlink/dscore/internal/metrics"
	"github.com/fieldlink/dscore/internal/netconsole"
	"github.com/fieldlink/dscore/internal/protocol"
	"github.com/fieldlink/dscore/internal/socket"
	"github.com/fieldlink/dscore/internal/store"
	"github.com/fieldlink/dscore/internal/timer"
)

// watchdogMultiplier is how many send intervals a peer may go silent
// before its receive watchdog trips, per spec §4.6 rationale: ~50 missed
// cycles of slack balances fast fault detection against transient loss.
const watchdogMultiplier = 50

// Config groups the Engine's dependencies.
type Config struct {
	Logger     *slog.Logger
	Store      *store.Store
	Queue      *events.Queue
	NetConsole *netconsole.Buffer
	Metrics    *metrics.Metrics // optional; nil disables metrics
}

// Engine is the periodic send/receive loop described in spec §4.6.
type Engine struct {
	log     *slog.Logger
	store   *store.Store
	queue   *events.Queue
	console *netconsole.Buffer
	metrics *metrics.Metrics

	running bool

	proto  protocol.Protocol // currently installed handle (may be nil)
	cached protocol.Protocol // last value observed by reconciliation

	sendFMS, sendRadio, sendRobot *timer.Timer
	rxFMS, rxRadio, rxRobot       *timer.Timer

	parsedFMS, parsedRadio, parsedRobot bool

	rxBuf []byte
}

// New constructs a stopped Engine with six disabled timers. Call Start to
// begin ticking.
func New(cfg Config) *Engine {
	e := &Engine{
		log:     cfg.Logger,
		store:   cfg.Store,
		queue:   cfg.Queue,
		console: cfg.NetConsole,
		metrics: cfg.Metrics,

		sendFMS:   timer.New(0),
		sendRadio: timer.New(0),
		sendRobot: timer.New(0),
		rxFMS:     timer.New(0),
		rxRadio:   timer.New(0),
		rxRobot:   timer.New(0),

		rxBuf: make([]byte, socket.MaxDatagramSize),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Start marks the engine running and fires an immediate reconciling tick.
// Idempotent while already running.
func (e *Engine) Start() {
	if e.running {
		return
	}
	e.running = true
	e.log.Info("engine starting")
	e.Tick(0)
}

// Stop clears the running flag. Subsequent ticks skip send/receive but
// still reconcile protocol swaps; sockets are not closed here — they
// remain owned by whatever protocol is installed until it is replaced.
func (e *Engine) Stop() {
	if !e.running {
		return
	}
	e.running = false
	e.log.Info("engine stopping")
}

// Running reports whether the engine is currently ticking traffic.
func (e *Engine) Running() bool {
	return e.running
}

// CurrentProtocol returns the installed protocol handle, or nil.
func (e *Engine) CurrentProtocol() protocol.Protocol {
	return e.proto
}

// SetProtocol installs p as the active protocol. p may be nil to stop
// traffic without stopping the engine. A non-nil p that fails the
// capability contract (missing callbacks or sockets, non-positive
// intervals) is a programmer error: SetProtocol returns the violation
// instead of installing it.
func (e *Engine) SetProtocol(p protocol.Protocol) error {
	if err := protocol.Validate(p); err != nil {
		return err
	}
	e.proto = p
	return nil
}

// Tick runs one pass through the five phases described in spec §4.6:
// protocol reconciliation, send, receive, watchdog maintenance, and event
// delivery (the last is a no-op here; consumers poll the queue on their
// own cadence).
func (e *Engine) Tick(elapsedMS int64) {
	e.reconcileProtocol()

	if e.running && e.proto != nil {
		e.doSend(elapsedMS)
	}
	e.drainNetConsole()

	if e.running && e.proto != nil {
		e.doReceive()
	}

	e.doWatchdogMaintenance(elapsedMS)
}

// reconcileProtocol implements phase 1. It runs whether or not the engine
// is running: a protocol swap is cached and all six timers are rewritten
// from the new protocol's intervals (or disabled, if nil) the moment it is
// observed, not only while traffic is flowing.
func (e *Engine) reconcileProtocol() {
	if e.proto == e.cached {
		return
	}
	e.cached = e.proto

	var fms, radio, robot int64
	if e.proto != nil {
		fms, radio, robot = e.proto.FMSIntervalMS(), e.proto.RadioIntervalMS(), e.proto.RobotIntervalMS()
	}

	e.sendFMS.Init(fms)
	e.sendRadio.Init(radio)
	e.sendRobot.Init(robot)
	e.rxFMS.Init(fms * watchdogMultiplier)
	e.rxRadio.Init(radio * watchdogMultiplier)
	e.rxRobot.Init(robot * watchdogMultiplier)

	e.log.Info("protocol reconciled",
		"installed", e.proto != nil,
		"fms_interval_ms", fms, "radio_interval_ms", radio, "robot_interval_ms", robot)
}

// doSend implements phase 2's send-timer half.
func (e *Engine) doSend(elapsedMS int64) {
	e.sendFMS.Update(elapsedMS)
	if e.sendFMS.Expired() {
		e.transmit(events.PeerFMS, e.proto.BuildFMS(), e.proto.FMSSocket())
		e.sendFMS.Reset()
	}

	e.sendRadio.Update(elapsedMS)
	if e.sendRadio.Expired() {
		e.transmit(events.PeerRadio, e.proto.BuildRadio(), e.proto.RadioSocket())
		e.sendRadio.Reset()
	}

	e.sendRobot.Update(elapsedMS)
	if e.sendRobot.Expired() {
		e.transmit(events.PeerRobot, e.proto.BuildRobot(), e.proto.RobotSocket())
		e.sendRobot.Reset()
	}
}

func (e *Engine) transmit(peer events.Peer, buf []byte, s protocol.Socket) {
	if _, err := s.Send(buf); err != nil {
		e.log.Warn("send failed", "peer", peer, "error", err)
		return
	}
	e.metrics.ObserveSend(string(peer))
}

// drainNetConsole implements phase 2's netconsole drain: one batch every
// tick, independent of the send timers, but only while the engine is running
// with a protocol and a NetConsole buffer installed.
func (e *Engine) drainNetConsole() {
	if !e.running || e.proto == nil || e.console == nil {
		return
	}
	batch := e.console.Drain()
	if len(batch) == 0 {
		return
	}
	s := e.proto.NetConsoleSocket()
	for _, line := range batch {
		if _, err := s.Send([]byte(line)); err != nil {
			e.log.Warn("netconsole send failed", "error", err)
		}
	}
}

// doReceive implements phase 3: a non-blocking read per peer socket,
// handed to the matching parser.
func (e *Engine) doReceive() {
	e.parsedFMS = e.readAndParse(e.proto.FMSSocket(), e.proto.ParseFMS)
	e.parsedRadio = e.readAndParse(e.proto.RadioSocket(), e.proto.ParseRadio)
	e.parsedRobot = e.readAndParse(e.proto.RobotSocket(), e.proto.ParseRobot)
}

func (e *Engine) readAndParse(s protocol.Socket, parse func([]byte) bool) bool {
	n, err := s.Read(e.rxBuf)
	if err != nil {
		e.log.Warn("read failed", "error", err)
		n = 0
	}
	return parse(e.rxBuf[:n])
}

// doWatchdogMaintenance implements phase 4. Successful parses reset their
// receive timer and flip comms up; all three receive timers then advance
// by elapsedMS; a timer that has just transitioned to expired fires its
// watchdog hook exactly once.
func (e *Engine) doWatchdogMaintenance(elapsedMS int64) {
	e.applyParseResult(events.PeerFMS, e.parsedFMS, e.rxFMS)
	e.applyParseResult(events.PeerRadio, e.parsedRadio, e.rxRadio)
	e.applyParseResult(events.PeerRobot, e.parsedRobot, e.rxRobot)

	wasFMSExpired := e.rxFMS.Expired()
	wasRadioExpired := e.rxRadio.Expired()
	wasRobotExpired := e.rxRobot.Expired()

	e.rxFMS.Update(elapsedMS)
	e.rxRadio.Update(elapsedMS)
	e.rxRobot.Update(elapsedMS)

	if !wasFMSExpired && e.rxFMS.Expired() {
		e.tripWatchdog(events.PeerFMS, e.store.OnFMSWatchdogExpired)
	}
	if !wasRadioExpired && e.rxRadio.Expired() {
		e.tripWatchdog(events.PeerRadio, e.store.OnRadioWatchdogExpired)
	}
	if !wasRobotExpired && e.rxRobot.Expired() {
		e.tripWatchdog(events.PeerRobot, e.store.OnRobotWatchdogExpired)
	}

	e.parsedFMS, e.parsedRadio, e.parsedRobot = false, false, false
	e.metrics.SetEventQueueDepth(e.queue.Len())
}

func (e *Engine) applyParseResult(peer events.Peer, parsed bool, rx *timer.Timer) {
	if !parsed {
		return
	}
	rx.Reset()
	e.store.SetComms(peer, true)
	e.metrics.ObserveReceive(string(peer))
	e.metrics.SetCommsUp(string(peer), true)
}

func (e *Engine) tripWatchdog(peer events.Peer, hook func()) {
	e.log.Warn("receive watchdog expired", "peer", peer)
	hook()
	e.metrics.ObserveWatchdogTrip(string(peer))
	e.metrics.SetCommsUp(string(peer), false)
}
