// Package pipe provides an in-memory synchronous connection pair.
//
// It exists for tests: both ends implement [transport.Conn], deadlines are
// driven by an injected clock, and Nagle toggles are recorded so callers can
// assert on them.
package pipe

import (
	"sync"
	"time"

	"github.com/FanDjango/gnutls-stream/transport"
	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (a Addr) Identifier() any { return a.Name }
func (a Addr) String() string  { return a.Name }

var _ transport.Addr = Addr{}

type Pipe struct {
	stream chan []byte // stream that this pipe reads from.
	nc     chan int    // counterpart's response will be sent here.

	writeMu sync.Mutex

	closed chan struct{}
	once   sync.Once // making sure not to close closed channel.

	rdeadLine *chanDeadLine
	wdeadLine *chanDeadLine

	noDelayMu  sync.Mutex
	noDelayLog []bool

	// the opposite pipe.
	counterpart *Pipe

	addr Addr
}

var _ transport.Conn = (*Pipe)(nil)

// New creates a pair of connected pipes. Both are synchronous and unbuffered.
func New(name1, name2 string, clock clock.Clock) (c1, c2 *Pipe) {
	c1 = &Pipe{
		stream:    make(chan []byte),
		nc:        make(chan int),
		closed:    make(chan struct{}),
		rdeadLine: newChanDeadLine(clock),
		wdeadLine: newChanDeadLine(clock),
		addr:      Addr{Name: name1},
	}
	c2 = &Pipe{
		stream:    make(chan []byte),
		nc:        make(chan int),
		closed:    make(chan struct{}),
		rdeadLine: newChanDeadLine(clock),
		wdeadLine: newChanDeadLine(clock),
		addr:      Addr{Name: name2},
	}
	c1.counterpart, c2.counterpart = c2, c1
	return
}

func (p *Pipe) LocalAddr() transport.Addr  { return p.addr }
func (p *Pipe) RemoteAddr() transport.Addr { return p.counterpart.addr }

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *Pipe) SetNoDelay(noDelay bool) error {
	p.noDelayMu.Lock()
	defer p.noDelayMu.Unlock()
	p.noDelayLog = append(p.noDelayLog, noDelay)
	return nil
}

// NoDelayLog returns every value passed to SetNoDelay, in call order.
func (p *Pipe) NoDelayLog() []bool {
	p.noDelayMu.Lock()
	defer p.noDelayMu.Unlock()
	out := make([]bool, len(p.noDelayLog))
	copy(out, p.noDelayLog)
	return out
}

func (p *Pipe) Read(b []byte) (n int, err error) {
	if err := p.checkReadOK(); err != nil {
		return 0, err
	}

	select {
	case received := <-p.stream:
		n := copy(b, received)
		p.counterpart.nc <- n
		return n, nil
	case <-p.closed:
		return 0, transport.ErrConnClosed
	case <-p.counterpart.closed:
		return 0, transport.ErrConnClosed
	case <-p.rdeadLine.wait():
		return 0, transport.ErrDeadLineExceeded
	}
}

func (p *Pipe) Write(b []byte) (n int, err error) {
	if err := p.checkWriteOK(); err != nil {
		return 0, err
	}

	if len(b) == 0 {
		return 0, nil
	}

	// Serialize write operations to prevent interleaving writes.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	// Ensure all the bytes are sent.
	nn := 0
	for once := true; once || len(b) > 0; once = false {
		select {
		case p.counterpart.stream <- b:
			n := <-p.nc
			b = b[n:]
			nn += n
		case <-p.closed:
			return nn, transport.ErrConnClosed
		case <-p.counterpart.closed:
			return nn, transport.ErrConnClosed
		case <-p.wdeadLine.wait():
			return nn, transport.ErrDeadLineExceeded
		}
	}

	return nn, nil
}

func (p *Pipe) checkReadOK() error  { return p.checkOK(p.rdeadLine) }
func (p *Pipe) checkWriteOK() error { return p.checkOK(p.wdeadLine) }

func (p *Pipe) checkOK(d *chanDeadLine) error {
	switch {
	case isClosed(p.closed):
		return transport.ErrConnClosed
	case isClosed(p.counterpart.closed):
		return transport.ErrConnClosed
	case isClosed(d.wait()):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

func (p *Pipe) SetReadDeadLine(t time.Time)  { p.rdeadLine.set(t) }
func (p *Pipe) SetWriteDeadLine(t time.Time) { p.wdeadLine.set(t) }

type chanDeadLine struct {
	clock clock.Clock

	t *clock.Timer
	m sync.Mutex

	closed chan struct{}
}

func newChanDeadLine(clock clock.Clock) *chanDeadLine {
	return &chanDeadLine{
		clock:  clock,
		closed: make(chan struct{}),
	}
}

func (d *chanDeadLine) set(t time.Time) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t != nil {
		// Stop existing timer.
		d.t.Stop()
	}
	d.t = nil

	if isClosed(d.closed) {
		d.closed = make(chan struct{})
	}

	if t.IsZero() {
		// zero value means no limit.
		return
	}

	d.t = d.clock.AfterFunc(d.clock.Until(t), func() {
		close(d.closed)
	})
}

func (d *chanDeadLine) wait() <-chan struct{} {
	d.m.Lock()
	defer d.m.Unlock()
	return d.closed
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c: // c will only fire at closed state.
		return true
	default:
		return false
	}
}
