// Package connectivity reports whether the room server is reachable at the
// network level, independently of the realtime channel's state.
package connectivity

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
)

// DefaultInterval is how often Prober checks reachability.
const DefaultInterval = 5 * time.Second

const dialTimeout = 3 * time.Second

// Monitor reports online/offline transitions.
type Monitor interface {
	Online() bool
	Subscribe(buf int) (<-chan bool, func())
}

// Change is the bus payload for KindNetworkChanged.
type Change struct {
	Online bool
}

// notifier holds the online flag and publishes only on change.
type notifier struct {
	bus *bus.Bus

	mu     sync.RWMutex
	online bool
}

func (n *notifier) Online() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.online
}

func (n *notifier) set(online bool) bool {
	n.mu.Lock()
	changed := n.online != online
	n.online = online
	n.mu.Unlock()
	if changed {
		n.bus.Emit(bus.KindNetworkChanged, Change{Online: online})
	}
	return changed
}

func (n *notifier) Subscribe(buf int) (<-chan bool, func()) {
	src, unsub := n.bus.Subscribe(bus.KindNetworkChanged, buf)
	out := make(chan bool, buf)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case evt := <-src:
				c, ok := evt.Payload.(Change)
				if !ok {
					continue
				}
				select {
				case out <- c.Online:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

// Static is a Monitor whose state is set by hand. It backs tests and the
// daemon's assume-online mode.
type Static struct {
	notifier
}

// NewStatic creates a Static monitor starting at online.
func NewStatic(b *bus.Bus, online bool) *Static {
	return &Static{notifier{bus: b, online: online}}
}

// Set changes the state, publishing if it differs.
func (s *Static) Set(online bool) {
	s.set(online)
}

// Prober checks reachability by opening a TCP connection to the server's
// host on a fixed interval.
type Prober struct {
	notifier
	addr     string
	interval time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	logger   *zap.Logger
}

// NewProber creates a prober for serverURL. It starts offline until the first
// probe succeeds.
func NewProber(serverURL string, interval time.Duration, b *bus.Bus, logger *zap.Logger) (*Prober, error) {
	addr, err := hostPort(serverURL)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &net.Dialer{Timeout: dialTimeout}
	return &Prober{
		notifier: notifier{bus: b},
		addr:     addr,
		interval: interval,
		dial:     d.DialContext,
		logger:   logger.Named("connectivity"),
	}, nil
}

// Run probes until ctx is cancelled. The first probe runs immediately.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		p.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Probe performs a single reachability check and returns the result.
func (p *Prober) Probe(ctx context.Context) bool {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := p.dial(dctx, "tcp", p.addr)
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}
	if p.set(online) {
		p.logger.Info("connectivity changed", zap.Bool("online", online), zap.String("addr", p.addr))
	}
	return online
}

func hostPort(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	if u.Hostname() == "" {
		return "", &net.AddrError{Err: "missing host", Addr: serverURL}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
