package repository

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/otpless/loginpage/internal/netmon"
	"github.com/otpless/loginpage/pkg/logger"
)

var (
	errInvalidSNAURL  = errors.New("url must be absolute http(s)")
	errNoCellularLink = errors.New("no cellular interface")
)

const (
	snaTimeout      = 20 * time.Second
	snaMaxRedirects = 10
	snaMaxBody      = 1 << 20
)

// CellularPath issues requests with the socket bound to a cellular
// interface address, so traffic leaves over the mobile radio rather than
// Wi-Fi.
type CellularPath struct {
	interfaceName string
	timeout       time.Duration
	interfaces    func() ([]net.Interface, error)
	addrs         func(net.Interface) ([]net.Addr, error)
	dialer        func(local net.Addr) *net.Dialer
}

// NewCellularPath returns a CellularPath. interfaceName pins a specific
// interface; empty selects the first interface matching a cellular prefix.
func NewCellularPath(interfaceName string) *CellularPath {
	return &CellularPath{
		interfaceName: interfaceName,
		timeout:       snaTimeout,
		interfaces:    net.Interfaces,
		addrs:         func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		dialer: func(local net.Addr) *net.Dialer {
			return &net.Dialer{LocalAddr: local, Timeout: 10 * time.Second}
		},
	}
}

// Supported reports whether a cellular interface is currently available.
func (p *CellularPath) Supported() bool {
	_, err := p.localAddr()
	return err == nil
}

// Perform implements SNAPerformer. The result is either
// {"status", "response"} or {"error", "error_description"}.
func (p *CellularPath) Perform(ctx context.Context, target *url.URL) map[string]any {
	local, err := p.localAddr()
	if err != nil {
		logger.Debugf("sna: %v", err)
		return UnsupportedError()
	}

	dialer := p.dialer(local)
	client := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			Proxy:           nil,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= snaMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", snaMaxRedirects)
			}
			logger.Tracef("sna redirect -> %s", req.URL.Redacted())
			return nil
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return connectionError(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return connectionError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, snaMaxBody))
	if err != nil {
		return connectionError(err)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		decoded = string(body)
	}
	return map[string]any{
		"status":   resp.StatusCode,
		"response": decoded,
	}
}

func (p *CellularPath) localAddr() (net.Addr, error) {
	ifaces, err := p.interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if !p.matches(iface) {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := p.addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsUnspecified() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			return &net.TCPAddr{IP: ipNet.IP}, nil
		}
	}
	return nil, errNoCellularLink
}

func (p *CellularPath) matches(iface net.Interface) bool {
	if p.interfaceName != "" {
		return iface.Name == p.interfaceName
	}
	return netmon.IsCellularInterface(iface.Name)
}

// UnsupportedError is returned when the device cannot route over cellular.
func UnsupportedError() map[string]any {
	return map[string]any{
		"error":             "silent_network_authentication not supported",
		"error_description": "Silent Network Authentication requires an active cellular data interface.",
	}
}

func connectionError(err error) map[string]any {
	return map[string]any{
		"error":             "sdk_connection_error",
		"error_description": err.Error(),
	}
}
