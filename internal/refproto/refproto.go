// Package refproto is a minimal, concrete protocol.Protocol used by the
// demo binary. It implements only enough
// framing to exercise the Protocol contract end to end; it is not a
// season-specific FMS/radio/robot wire format, which spec.md scopes out of
// this core.
package refproto

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fieldlink/dscore/internal/protocol"
	"github.com/fieldlink/dscore/internal/socket"
)

// Wire format: [1-byte tag][4-byte big-endian sequence][payload is empty].
// Self-framing enough to let Parse* reject garbage and zero-length input
// without caring about application content, which is all the engine's
// contract requires of a parser.
const (
	tagStatus byte = 0x53 // 'S'
	frameLen       = 1 + 4
)

// EndpointConfig describes where one peer's socket binds and sends.
type EndpointConfig struct {
	Address    string
	InputPort  int
	OutputPort int
}

// Config groups the four endpoints this protocol owns.
type Config struct {
	Logger      *slog.Logger
	FMS         EndpointConfig
	Radio       EndpointConfig
	Robot       EndpointConfig
	NetConsole  EndpointConfig
	FMSInterval int64
	RadioInterval int64
	RobotInterval int64
}

// Protocol is a concrete protocol.Protocol backed by real UDP sockets.
type Protocol struct {
	log *slog.Logger
	cfg Config

	fmsSock, radioSock, robotSock, ncSock *socket.Socket

	seq atomic.Uint32
}

// New opens the four sockets and returns a ready-to-install Protocol.
func New(cfg Config) (*Protocol, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FMSInterval <= 0 || cfg.RadioInterval <= 0 || cfg.RobotInterval <= 0 {
		return nil, fmt.Errorf("refproto: all intervals must be positive")
	}

	p := &Protocol{log: cfg.Logger, cfg: cfg}

	var err error
	p.fmsSock, err = open(cfg.FMS)
	if err != nil {
		return nil, fmt.Errorf("refproto: fms socket: %w", err)
	}
	p.radioSock, err = open(cfg.Radio)
	if err != nil {
		p.fmsSock.Close()
		return nil, fmt.Errorf("refproto: radio socket: %w", err)
	}
	p.robotSock, err = open(cfg.Robot)
	if err != nil {
		p.fmsSock.Close()
		p.radioSock.Close()
		return nil, fmt.Errorf("refproto: robot socket: %w", err)
	}
	p.ncSock, err = open(cfg.NetConsole)
	if err != nil {
		p.fmsSock.Close()
		p.radioSock.Close()
		p.robotSock.Close()
		return nil, fmt.Errorf("refproto: netconsole socket: %w", err)
	}

	return p, nil
}

func open(ec EndpointConfig) (*socket.Socket, error) {
	return socket.Open(socket.Config{
		Address:    ec.Address,
		Type:       socket.UDP,
		InputPort:  ec.InputPort,
		OutputPort: ec.OutputPort,
	})
}

// Close releases all four sockets. Not part of protocol.Protocol; callers
// invoke it directly when tearing down (e.g. the host binary on shutdown).
func (p *Protocol) Close() {
	p.fmsSock.Close()
	p.radioSock.Close()
	p.robotSock.Close()
	p.ncSock.Close()
}

func (p *Protocol) build() []byte {
	buf := make([]byte, frameLen)
	buf[0] = tagStatus
	binary.BigEndian.PutUint32(buf[1:], p.seq.Add(1))
	return buf
}

func (p *Protocol) BuildFMS() []byte   { return p.build() }
func (p *Protocol) BuildRadio() []byte { return p.build() }
func (p *Protocol) BuildRobot() []byte { return p.build() }

func parse(data []byte) bool {
	if len(data) != frameLen {
		return false
	}
	return data[0] == tagStatus
}

func (p *Protocol) ParseFMS(data []byte) bool   { return parse(data) }
func (p *Protocol) ParseRadio(data []byte) bool { return parse(data) }
func (p *Protocol) ParseRobot(data []byte) bool { return parse(data) }

func (p *Protocol) FMSIntervalMS() int64   { return p.cfg.FMSInterval }
func (p *Protocol) RadioIntervalMS() int64 { return p.cfg.RadioInterval }
func (p *Protocol) RobotIntervalMS() int64 { return p.cfg.RobotInterval }

func (p *Protocol) FMSSocket() protocol.Socket        { return p.fmsSock }
func (p *Protocol) RadioSocket() protocol.Socket      { return p.radioSock }
func (p *Protocol) RobotSocket() protocol.Socket      { return p.robotSock }
func (p *Protocol) NetConsoleSocket() protocol.Socket { return p.ncSock }
