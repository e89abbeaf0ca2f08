package proxy

import (
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// BufferSize is the capacity of each pump's copy buffer.
const BufferSize = 8192

// Conn is the part of a connection a Pump operates on.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Pump copies bytes from src to dst until either side ends, then closes
// both. A pair runs two pumps in opposite directions over the same
// connections; they share nothing but the connections themselves.
type Pump struct {
	src, dst    Conn
	buf         []byte
	idleTimeout time.Duration
	act         *activity
}

// NewPump returns a pump from src to dst with its own BufferSize buffer.
func NewPump(src, dst Conn) *Pump {
	return &Pump{src: src, dst: dst, buf: make([]byte, BufferSize)}
}

// WithIdleTimeout ends the pump once no data has moved for d. Zero disables
// the deadline.
func (p *Pump) WithIdleTimeout(d time.Duration) *Pump {
	p.idleTimeout = d
	return p
}

// sharing makes p count traffic in act, so that a pair is idle only when
// both directions are.
func (p *Pump) sharing(act *activity) *Pump {
	p.act = act
	return p
}

// activity is the time data last moved in either direction of a pair.
type activity struct {
	last atomic.Int64
}

func newActivity() *activity {
	a := &activity{}
	a.touch()
	return a
}

func (a *activity) touch() {
	a.last.Store(time.Now().UnixNano())
}

// deadline is when the pair becomes idle if nothing moves before then.
func (a *activity) deadline(idle time.Duration) time.Time {
	return time.Unix(0, a.last.Load()).Add(idle)
}

// Run relays until EOF or an error and returns the number of bytes written
// to dst. A nil error means src ended cleanly or the pair was already torn
// down by the sibling pump.
func (p *Pump) Run() (int64, error) {
	defer p.closePair()
	if p.act == nil {
		p.act = newActivity()
	}

	var written int64
	for {
		if err := p.armDeadline(); err != nil {
			return written, err
		}
		n, rerr := p.src.Read(p.buf)
		if n > 0 {
			p.act.touch()
			w, werr := writeFull(p.dst, p.buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			p.act.touch()
		}
		if rerr != nil {
			if isClosed(rerr) {
				return written, nil
			}
			// The other direction may have kept the pair busy.
			if p.stillActive(rerr) {
				continue
			}
			return written, rerr
		}
		// An empty read with no error is an orderly close.
		if n == 0 {
			return written, nil
		}
	}
}

func (p *Pump) armDeadline() error {
	if p.idleTimeout <= 0 {
		return nil
	}
	d, ok := p.src.(readDeadliner)
	if !ok {
		return nil
	}
	return d.SetReadDeadline(p.act.deadline(p.idleTimeout))
}

func (p *Pump) stillActive(err error) bool {
	if p.idleTimeout <= 0 || !errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	return time.Now().Before(p.act.deadline(p.idleTimeout))
}

// closePair closes dst then src. Either may already be closed by the
// sibling pump, so errors are dropped.
func (p *Pump) closePair() {
	_ = p.dst.Close()
	_ = p.src.Close()
}

// writeFull writes all of b, continuing after short writes.
func writeFull(w io.Writer, b []byte) (int, error) {
	var written int
	for written < len(b) {
		n, err := w.Write(b[written:])
		if n > 0 {
			written += n
		}
		if err != nil {
			return written, err
		}
		if n <= 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// isClosed reports whether err is a normal end of a relay leg.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
