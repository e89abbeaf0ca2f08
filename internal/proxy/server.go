// Package proxy 负责本地端口监听、连接配对与双向字节转发
// 这是核心转发模块
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Versifine/portfwd/internal/event"
)

// Options tunes a Server. Zero values mean DefaultBacklog, no dial
// timeout and no idle timeout.
type Options struct {
	Backlog     int
	DialTimeout time.Duration
	IdleTimeout time.Duration
}

// Server forwards connections accepted on local to target.
type Server struct {
	local  Endpoint
	target Endpoint
	opts   Options
	bus    *event.Bus
	nextID atomic.Uint64
}

// NewServer returns a Server with its own event bus. Nothing is bound until
// Start.
func NewServer(local, target Endpoint, opts Options) *Server {
	return &Server{local: local, target: target, opts: opts, bus: event.NewBus()}
}

// Bus carries pair lifecycle events; see package event.
func (s *Server) Bus() *event.Bus {
	return s.bus
}

// Forward binds local and relays every accepted connection to target. It
// returns only when the listener fails or ctx is cancelled.
func Forward(ctx context.Context, local, target Endpoint) error {
	return NewServer(local, target, Options{}).Start(ctx)
}

// Start binds the local endpoint and runs Serve on it. A bind failure is
// returned as a *BindError.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("Starting forwarder", "listen", s.local, "target", s.target)
	ln, err := Listen(s.local, s.opts.Backlog)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln, which it takes ownership of.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		slog.Info("Shutting down forwarder")
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Forwarder stopped")
				return nil
			}
			slog.Error("Error accepting connection", "error", err)
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		go s.pair(ctx, conn)
	}
}

// pair dials the target for inbound and starts both pumps. It does not wait
// for them.
func (s *Server) pair(ctx context.Context, inbound net.Conn) {
	client := inbound.RemoteAddr().String()

	outbound, err := s.dial(ctx)
	if err != nil {
		_ = inbound.Close()
		s.bus.Publish(event.EventDialFail, &event.DialFailEvent{
			Client: client,
			Target: s.target.String(),
			Err:    err,
		})
		return
	}

	// Disable Nagle's algorithm on both legs for lower latency
	setNoDelay(inbound)
	setNoDelay(outbound)

	id := s.nextID.Add(1)
	s.bus.Publish(event.EventPairOpen, &event.PairOpenEvent{
		ID:     id,
		Client: client,
		Target: s.target.String(),
	})

	start := time.Now()
	act := newActivity()
	up := NewPump(inbound, outbound).WithIdleTimeout(s.opts.IdleTimeout).sharing(act)
	down := NewPump(outbound, inbound).WithIdleTimeout(s.opts.IdleTimeout).sharing(act)

	var (
		wg             sync.WaitGroup
		sent, received int64
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sent = runPump(id, "C->S", up)
	}()
	go func() {
		defer wg.Done()
		received = runPump(id, "S->C", down)
	}()
	go func() {
		wg.Wait()
		s.bus.Publish(event.EventPairClose, &event.PairCloseEvent{
			ID:       id,
			Client:   client,
			Sent:     sent,
			Received: received,
			Duration: time.Since(start),
		})
	}()
}

func (s *Server) dial(ctx context.Context) (net.Conn, error) {
	if s.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.DialTimeout)
		defer cancel()
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp4", s.target.String())
}

func runPump(id uint64, tag string, p *Pump) int64 {
	n, err := p.Run()
	if err != nil {
		slog.Debug("Relay ended with error", "pair", id, "direction", tag, "bytes", n, "error", err)
	}
	return n
}

func setNoDelay(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
}
