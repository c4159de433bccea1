// Package store implements the Configuration Store: the single piece of
// process-wide mutable state shared between the Event Engine and upstream
// consumers. Every setter enforces the cross-field invariants in one place
// and emits an Event Record when, and only when, a value actually changes;
// the one exception is SetTeamNumber, which has no event kind and emits
// nothing.
package store

import (
	"fmt"
	"sync"

	"github.com/fieldlink/dscore/internal/events"
)

// ControlMode is the robot's commanded operating mode.
type ControlMode string

const (
	ModeTeleop     ControlMode = "teleop"
	ModeAutonomous ControlMode = "autonomous"
	ModeTest       ControlMode = "test"
)

// Alliance is the match alliance color.
type Alliance string

const (
	AllianceRed  Alliance = "red"
	AllianceBlue Alliance = "blue"
)

// Comms tracks the liveness flag for each of the three peers.
type Comms struct {
	FMS   bool
	Radio bool
	Robot bool
}

// Store holds the Configuration Snapshot described in the spec: team
// number, control mode, alliance, position, enable/e-stop state, robot
// code presence, voltage, resource usage, and per-peer comms flags. All
// access goes through getter/setter methods guarded by mu; setters publish
// onto an events.Queue.
type Store struct {
	mu sync.RWMutex

	queue *events.Queue

	teamNumber int
	mode       ControlMode
	alliance   Alliance
	position   int

	enabled   bool
	estopped  bool
	robotCode bool

	voltage float64
	cpu     float64
	ram     float64
	disk    float64

	comms Comms
}

// New returns a Store that publishes change notifications onto queue.
// queue must not be nil.
func New(queue *events.Queue) *Store {
	return &Store{
		queue:    queue,
		mode:     ModeTeleop,
		alliance: AllianceRed,
		position: 1,
	}
}

func (s *Store) emit(ev events.Event) {
	s.queue.Push(ev)
}

// clampPercent restricts a usage percentage to [0, 100].
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// --- team number -----------------------------------------------------------

func (s *Store) TeamNumber() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.teamNumber
}

func (s *Store) SetTeamNumber(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teamNumber = n
}

// --- control mode ------------------------------------------------------------

func (s *Store) Mode() ControlMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Store) SetMode(m ControlMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == m {
		return
	}
	s.mode = m
	s.emit(events.Event{Kind: events.ModeChanged, Mode: string(m)})
}

// --- alliance & position -----------------------------------------------------

func (s *Store) Alliance() Alliance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alliance
}

func (s *Store) SetAlliance(a Alliance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alliance == a {
		return
	}
	s.alliance = a
	s.emit(events.Event{Kind: events.AllianceChanged, Alliance: string(a)})
}

func (s *Store) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *Store) SetPosition(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == p {
		return
	}
	s.position = p
	s.emit(events.Event{Kind: events.PositionChanged, Position: p})
}

// --- enabled / e-stop / robot code -------------------------------------------

func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled requests the given enable state. It is clamped false whenever
// e-stopped or robot comms are down (invariants 1 and 2 in the spec).
func (s *Store) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setEnabledLocked(v)
}

func (s *Store) setEnabledLocked(v bool) {
	if v && (s.estopped || !s.comms.Robot) {
		v = false
	}
	if s.enabled == v {
		return
	}
	s.enabled = v
	s.emit(events.Event{Kind: events.EnabledChanged, Bool: v})
}

func (s *Store) EStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estopped
}

// SetEStop sets the emergency-stop flag. Setting it true forces enabled
// false in the same call, per invariant 1.
func (s *Store) SetEStop(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.estopped != v {
		s.estopped = v
		s.emit(events.Event{Kind: events.EStopChanged, Bool: v})
	}
	if v {
		s.setEnabledLocked(false)
	}
}

func (s *Store) RobotCode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.robotCode
}

// SetRobotCode reports whether robot user code is running. It is clamped
// false whenever robot comms are down, per invariant 2.
func (s *Store) SetRobotCode(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRobotCodeLocked(v)
}

func (s *Store) setRobotCodeLocked(v bool) {
	if v && !s.comms.Robot {
		v = false
	}
	if s.robotCode == v {
		return
	}
	s.robotCode = v
	s.emit(events.Event{Kind: events.CodeChanged, Bool: v})
}

// --- voltage & usage ----------------------------------------------------------

func (s *Store) Voltage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voltage
}

// SetVoltage clamps negative readings to zero.
func (s *Store) SetVoltage(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if s.voltage == v {
		return
	}
	s.voltage = v
	s.emit(events.Event{Kind: events.VoltageChanged, Voltage: v})
}

// Usage returns the current CPU/RAM/disk percentages.
func (s *Store) Usage() (cpu, ram, disk float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpu, s.ram, s.disk
}

// SetUsage clamps each percentage to [0, 100] and emits one event if any
// of the three changed.
func (s *Store) SetUsage(cpu, ram, disk float64) {
	cpu, ram, disk = clampPercent(cpu), clampPercent(ram), clampPercent(disk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpu == cpu && s.ram == ram && s.disk == disk {
		return
	}
	s.cpu, s.ram, s.disk = cpu, ram, disk
	s.emit(events.Event{Kind: events.UsageChanged, CPU: cpu, RAM: ram, Disk: disk})
}

// --- comms --------------------------------------------------------------------

// Comms returns the current per-peer liveness flags.
func (s *Store) Comms() Comms {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.comms
}

// SetComms updates the liveness flag for peer. The Event Engine calls it on
// every successful parse (true); watchdog expiry clears the flag through the
// On*WatchdogExpired hooks below instead.
func (s *Store) SetComms(peer events.Peer, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCommsLocked(peer, up)
}

func (s *Store) setCommsLocked(peer events.Peer, up bool) {
	cur := s.commsField(peer)
	if *cur == up {
		return
	}
	*cur = up
	s.emit(events.Event{Kind: events.CommsChanged, Peer: peer, Bool: up})
}

func (s *Store) commsField(peer events.Peer) *bool {
	switch peer {
	case events.PeerFMS:
		return &s.comms.FMS
	case events.PeerRadio:
		return &s.comms.Radio
	case events.PeerRobot:
		return &s.comms.Robot
	default:
		panic(fmt.Sprintf("store: unknown peer %q", peer))
	}
}

// --- watchdog-expiry hooks ------------------------------------------------------

// OnFMSWatchdogExpired drives the store into the FMS-lost safe state.
// Idempotent: calling it repeatedly with comms.fms already false emits
// nothing further.
func (s *Store) OnFMSWatchdogExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCommsLocked(events.PeerFMS, false)
}

// OnRadioWatchdogExpired drives the store into the radio-lost safe state.
func (s *Store) OnRadioWatchdogExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCommsLocked(events.PeerRadio, false)
}

// OnRobotWatchdogExpired drives the store into the robot-lost safe state:
// comms.robot, robot_code, voltage, and usage all go to their zero/false
// values, and enabled is forced false. This is the only path that forces
// this combination, per spec invariant 2.
func (s *Store) OnRobotWatchdogExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setCommsLocked(events.PeerRobot, false)
	s.setRobotCodeLocked(false)

	if s.voltage != 0 {
		s.voltage = 0
		s.emit(events.Event{Kind: events.VoltageChanged, Voltage: 0})
	}
	if s.cpu != 0 || s.ram != 0 || s.disk != 0 {
		s.cpu, s.ram, s.disk = 0, 0, 0
		s.emit(events.Event{Kind: events.UsageChanged})
	}
	s.setEnabledLocked(false)
}

// StatusString summarizes mode, enable, e-stop, and comms for display.
func (s *Store) StatusString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "disabled"
	if s.enabled {
		state = "enabled"
	}
	if s.estopped {
		state = "E-STOPPED"
	}

	return fmt.Sprintf(
		"mode=%s state=%s team=%d alliance=%s pos=%d fms=%t radio=%t robot=%t code=%t voltage=%.2f",
		s.mode, state, s.teamNumber, s.alliance, s.position,
		s.comms.FMS, s.comms.Radio, s.comms.Robot, s.robotCode, s.voltage,
	)
}
