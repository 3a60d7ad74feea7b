package netmon

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeAddr(ip string) net.Addr {
	parsed := net.ParseIP(ip)
	bits := 32
	if parsed.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: parsed, Mask: net.CIDRMask(8, bits)}
}

func TestPollerSample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ifaces    []net.Interface
		addrs     map[string][]net.Addr
		connected bool
		cellular  bool
	}{
		{
			name:   "loopback only",
			ifaces: []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}},
			addrs:  map[string][]net.Addr{"lo": {fakeAddr("127.0.0.1")}},
		},
		{
			name:      "wifi",
			ifaces:    []net.Interface{{Name: "wlan0", Flags: net.FlagUp}},
			addrs:     map[string][]net.Addr{"wlan0": {fakeAddr("192.168.1.5")}},
			connected: true,
		},
		{
			name:      "cellular",
			ifaces:    []net.Interface{{Name: "pdp_ip0", Flags: net.FlagUp}},
			addrs:     map[string][]net.Addr{"pdp_ip0": {fakeAddr("10.20.30.40")}},
			connected: true,
			cellular:  true,
		},
		{
			name:   "down or link local",
			ifaces: []net.Interface{{Name: "rmnet0"}, {Name: "en0", Flags: net.FlagUp}},
			addrs: map[string][]net.Addr{
				"rmnet0": {fakeAddr("10.0.0.1")},
				"en0":    {fakeAddr("fe80::1")},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewPoller(time.Hour)
			p.interfaces = func() ([]net.Interface, error) { return tt.ifaces, nil }
			p.addrs = func(i net.Interface) ([]net.Addr, error) { return tt.addrs[i.Name], nil }
			p.Start()
			defer p.Stop()

			require.Equal(t, tt.connected, p.Connected())
			require.Equal(t, tt.cellular, p.CellularEnabled())
		})
	}
}

func TestPollerPollsAndStops(t *testing.T) {
	t.Parallel()

	var up atomic.Bool
	p := NewPoller(5 * time.Millisecond)
	p.interfaces = func() ([]net.Interface, error) {
		if !up.Load() {
			return nil, nil
		}
		return []net.Interface{{Name: "eth0", Flags: net.FlagUp}}, nil
	}
	p.addrs = func(net.Interface) ([]net.Addr, error) { return []net.Addr{fakeAddr("172.16.0.2")}, nil }

	p.Start()
	p.Start()
	require.False(t, p.Connected())

	up.Store(true)
	require.Eventually(t, p.Connected, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	require.True(t, p.Connected(), "last sample survives Stop")
}

func TestStaticMonitor(t *testing.T) {
	t.Parallel()

	s := NewStatic(false, false)
	s.Start()
	require.False(t, s.Connected())
	s.Set(true, true)
	require.True(t, s.Connected())
	require.True(t, s.CellularEnabled())
	s.Stop()
}

func TestIsCellularInterface(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"pdp_ip0", "rmnet_data1", "ccmni0", "wwan0"} {
		require.True(t, IsCellularInterface(name), name)
	}
	for _, name := range []string{"en0", "wlan0", "lo", "eth0"} {
		require.False(t, IsCellularInterface(name), name)
	}
}
