package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// probeTimeout bounds the SOCKS5 greeting sent by Probe.
const probeTimeout = 2 * time.Second

const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// Proxy routes fetch connections through a SOCKS5 proxy such as a Tor
// daemon's SOCKS port.
type Proxy struct {
	address string
	dialer  proxy.Dialer
}

// NewProxy creates a Proxy for address in "host:port" form. It does not
// contact the proxy; call Probe for that.
func NewProxy(address string) (*Proxy, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	// Tor's SOCKS port does not ask for credentials.
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Proxy{address: address, dialer: dialer}, nil
}

// isValidProxyAddress reports whether address is host:port with a port in
// 1-65535. Bracketed IPv6 hosts are accepted.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (p *Proxy) Address() string {
	return p.address
}

// Dialer returns the SOCKS5 dialer, suitable for fetch.WithDialer.
// The dialer also implements proxy.ContextDialer.
func (p *Proxy) Dialer() proxy.Dialer {
	return p.dialer
}

// Probe checks that something speaking SOCKS5 without authentication
// listens on the proxy address. Only the method negotiation is performed;
// no connection is requested through the proxy.
func (p *Proxy) Probe(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
