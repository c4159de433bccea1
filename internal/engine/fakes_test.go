package engine

import "github.com/fieldlink/dscore/internal/protocol"

// fakeSocket is an in-memory protocol.Socket used by engine tests so the
// five tick phases can be exercised without opening real UDP ports.
type fakeSocket struct {
	outbox [][]byte
	inbox  [][]byte
}

func (s *fakeSocket) Send(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	s.outbox = append(s.outbox, cp)
	return len(data), nil
}

func (s *fakeSocket) Read(buf []byte) (int, error) {
	if len(s.inbox) == 0 {
		return 0, nil
	}
	next := s.inbox[0]
	s.inbox = s.inbox[1:]
	return copy(buf, next), nil
}

func (s *fakeSocket) Close() error { return nil }

// enqueue makes the next Read return data.
func (s *fakeSocket) enqueue(data []byte) { s.inbox = append(s.inbox, data) }

// fakeProtocol is a minimal protocol.Protocol whose parsers treat any
// non-empty payload as successfully recognized traffic, which is all the
// engine's phase logic cares about.
type fakeProtocol struct {
	fmsIntervalMS, radioIntervalMS, robotIntervalMS int64

	fmsSock, radioSock, robotSock, ncSock *fakeSocket
}

func newFakeProtocol(fmsMS, radioMS, robotMS int64) *fakeProtocol {
	return &fakeProtocol{
		fmsIntervalMS:   fmsMS,
		radioIntervalMS: radioMS,
		robotIntervalMS: robotMS,
		fmsSock:         &fakeSocket{},
		radioSock:       &fakeSocket{},
		robotSock:       &fakeSocket{},
		ncSock:          &fakeSocket{},
	}
}

func (p *fakeProtocol) BuildFMS() []byte   { return []byte("F") }
func (p *fakeProtocol) BuildRadio() []byte { return []byte("R") }
func (p *fakeProtocol) BuildRobot() []byte { return []byte("B") }

func (p *fakeProtocol) ParseFMS(data []byte) bool   { return len(data) > 0 }
func (p *fakeProtocol) ParseRadio(data []byte) bool { return len(data) > 0 }
func (p *fakeProtocol) ParseRobot(data []byte) bool { return len(data) > 0 }

func (p *fakeProtocol) FMSIntervalMS() int64   { return p.fmsIntervalMS }
func (p *fakeProtocol) RadioIntervalMS() int64 { return p.radioIntervalMS }
func (p *fakeProtocol) RobotIntervalMS() int64 { return p.robotIntervalMS }

func (p *fakeProtocol) FMSSocket() protocol.Socket        { return p.fmsSock }
func (p *fakeProtocol) RadioSocket() protocol.Socket      { return p.radioSock }
func (p *fakeProtocol) RobotSocket() protocol.Socket      { return p.robotSock }
func (p *fakeProtocol) NetConsoleSocket() protocol.Socket { return p.ncSock }
