package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// ListenerKind selects the worker type spawned for connections
// accepted on a listener.
type ListenerKind int

const (
	// ListenProxy serves HTTP proxy clients.
	ListenProxy ListenerKind = iota

	// ListenSOCKS serves SOCKS5 clients.
	ListenSOCKS

	// ListenTunnel serves fixed local->remote tunnels.
	ListenTunnel
)

func (k ListenerKind) String() string {
	switch k {
	case ListenProxy:
		return "proxy"
	case ListenSOCKS:
		return "socks5"
	default:
		return "tunnel"
	}
}

// Listener is one bound socket plus, for tunnels, its fixed target.
type Listener struct {
	Listener net.Listener
	Kind     ListenerKind

	// Target is the "host:port" a tunnel listener forwards to; empty
	// for the other kinds.
	Target string
}

// Dispatcher owns the listener set: it accepts clients, spawns one
// worker goroutine per connection, and on shutdown stops accepting and
// waits for in-flight workers behind a barrier.
type Dispatcher struct {
	fwd       *Forwarder
	listeners []Listener
	log       *slog.Logger

	// serial runs workers inline on the accept goroutine. Debug only.
	serial bool

	workers sync.WaitGroup
}

// NewDispatcher builds a dispatcher over the bound listener set.
func NewDispatcher(fwd *Forwarder, listeners []Listener, log *slog.Logger, serial bool) *Dispatcher {
	return &Dispatcher{fwd: fwd, listeners: listeners, log: log, serial: serial}
}

// Run accepts until ctx is cancelled, then closes the listeners and
// waits for every spawned worker to finish. Forced shutdown is the
// caller's second-signal path (process exit); Run itself always drains.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.listeners) == 0 {
		return errors.New("proxy: no listeners configured")
	}

	var accepts sync.WaitGroup
	for _, ln := range d.listeners {
		d.log.Info("listening", "kind", ln.Kind.String(), "addr", ln.Listener.Addr().String(), "target", ln.Target)
		accepts.Add(1)
		go func(ln Listener) {
			defer accepts.Done()
			d.acceptLoop(ctx, ln)
		}(ln)
	}

	<-ctx.Done()
	for _, ln := range d.listeners {
		ln.Listener.Close()
	}
	accepts.Wait()

	d.log.Info("draining workers")
	d.workers.Wait()
	d.fwd.Pool().Close()
	return nil
}

func (d *Dispatcher) acceptLoop(ctx context.Context, ln Listener) {
	for {
		conn, err := ln.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn("accept failed", "addr", ln.Listener.Addr().String(), "error", err)
			continue
		}

		if d.serial {
			d.serve(ctx, ln, conn)
			continue
		}
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			d.serve(ctx, ln, conn)
		}()
	}
}

// serve runs the worker of the listener's kind with a per-connection
// trace id on its logger.
func (d *Dispatcher) serve(ctx context.Context, ln Listener, conn net.Conn) {
	connID := uuid.NewString()
	log := d.log.With("conn", connID, "peer", conn.RemoteAddr().String())
	log.Debug("accepted", "kind", ln.Kind.String())
	defer log.Debug("closed")

	fwd := d.fwd.withLogger(log)
	switch ln.Kind {
	case ListenProxy:
		fwd.HandleProxyConn(ctx, conn)
	case ListenSOCKS:
		fwd.HandleSOCKSConn(ctx, conn)
	case ListenTunnel:
		fwd.HandleTunnelConn(ctx, conn, ln.Target)
	}
}
