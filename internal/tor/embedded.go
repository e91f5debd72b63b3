package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// defaultStartupTimeout is how long Start waits for bootstrap by default.
const defaultStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon through tornago so fetches can be
// routed over Tor without a system installation.
//
// Bootstrapping builds circuits over the live network and usually takes
// between one and three minutes.
type EmbeddedTor struct {
	process *tornago.TorProcess

	socksAddr   string
	controlAddr string

	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the maximum time to wait for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates an embedded Tor manager. Nothing is launched until
// Start is called.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: defaultStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout expires. If ctx is cancelled while
// the daemon starts, the daemon is stopped and ctx.Err() is returned.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = process.Stop() //nolint:errcheck
		return err
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	e.controlAddr = process.ControlAddr()
	return nil
}

// Stop shuts the daemon down. It is a no-op on an instance that is not
// running.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}

	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	e.controlAddr = ""
	return err
}

// SocksAddr returns the daemon's SOCKS5 address, or "" when not running.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// ControlAddr returns the daemon's control port address, or "" when not
// running.
func (e *EmbeddedTor) ControlAddr() string {
	return e.controlAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// Proxy returns a Proxy over the daemon's SOCKS port.
func (e *EmbeddedTor) Proxy() (*Proxy, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewProxy(e.socksAddr)
}
