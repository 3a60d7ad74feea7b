package netmon

import (
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is how often Poller re-reads the interface table.
const DefaultPollInterval = time.Second

// Interface name prefixes used by cellular modems across platforms.
var cellularPrefixes = []string{"pdp_ip", "rmnet", "ccmni", "wwan"}

// IsCellularInterface reports whether name looks like a cellular modem
// interface.
func IsCellularInterface(name string) bool {
	for _, prefix := range cellularPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Monitor reports connectivity.
type Monitor interface {
	Start()
	Stop()
	// Connected reports whether any usable network path exists.
	Connected() bool
	// CellularEnabled reports whether a cellular data path exists.
	CellularEnabled() bool
}

// Poller is a Monitor that polls the host interface table.
type Poller struct {
	interval   time.Duration
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)

	mu        sync.Mutex
	connected bool
	cellular  bool
	stop      chan struct{}
	done      chan struct{}
}

var _ Monitor = (*Poller)(nil)

// NewPoller creates a Poller. A non-positive interval uses
// DefaultPollInterval.
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval:   interval,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

// Start takes a first sample synchronously and then polls in the
// background. Calling Start on a running Poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	p.stop = stop
	p.done = done
	p.mu.Unlock()

	p.sample()
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.sample()
			}
		}
	}()
}

// Stop halts polling. The last sample stays readable.
func (p *Poller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Connected implements Monitor.
func (p *Poller) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// CellularEnabled implements Monitor.
func (p *Poller) CellularEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cellular
}

func (p *Poller) sample() {
	connected, cellular := false, false
	ifaces, err := p.interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			if !p.hasRoutableAddr(iface) {
				continue
			}
			connected = true
			if IsCellularInterface(iface.Name) {
				cellular = true
			}
		}
	}

	p.mu.Lock()
	p.connected = connected
	p.cellular = cellular
	p.mu.Unlock()
}

func (p *Poller) hasRoutableAddr(iface net.Interface) bool {
	addrs, err := p.addrs(iface)
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() || ipNet.IP.IsUnspecified() {
			continue
		}
		return true
	}
	return false
}

// Static is a Monitor whose state is set by the host.
type Static struct {
	mu        sync.Mutex
	connected bool
	cellular  bool
}

var _ Monitor = (*Static)(nil)

// NewStatic returns a Static monitor with the given state.
func NewStatic(connected, cellular bool) *Static {
	return &Static{connected: connected, cellular: cellular}
}

// Set replaces the reported state.
func (s *Static) Set(connected, cellular bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	s.cellular = cellular
}

// Start implements Monitor.
func (s *Static) Start() {}

// Stop implements Monitor.
func (s *Static) Stop() {}

// Connected implements Monitor.
func (s *Static) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// CellularEnabled implements Monitor.
func (s *Static) CellularEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cellular
}
