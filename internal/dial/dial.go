// Package dial resolves domain.Endpoint values into live net.Conn
// connections, and normalizes IPC paths to whatever prefix the host
// platform's named-pipe namespace requires at config-build time so
// the dial path itself stays OS-agnostic.
package dial

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/StartiOne/upstream-proxy/internal/domain"
)

// DefaultTimeout bounds how long a backend dial may block, so a
// wedged backend can't hold a client connection open forever.
const DefaultTimeout = 5 * time.Second

// Dialer dials domain.Endpoint values with a configurable timeout.
type Dialer struct {
	Timeout time.Duration
}

// New returns a Dialer using DefaultTimeout.
func New() *Dialer {
	return &Dialer{Timeout: DefaultTimeout}
}

// Dial connects to ep, applying d.Timeout (or DefaultTimeout if unset)
// as a context deadline. TCP endpoints dial plain TCP; IPC endpoints
// dial a named pipe on Windows (via go-winio) and a Unix domain socket
// everywhere else, via the platform-specific dialIPC.
func (d *Dialer) Dial(ctx context.Context, ep domain.Endpoint) (net.Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch ep.Kind {
	case domain.EndpointIPC:
		return dialIPC(ctx, ep.Path)
	default:
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port))
	}
}
