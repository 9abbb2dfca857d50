package agent

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mdlayher/vsock"
)

// Addr names an engine endpoint: either "vsock:<cid>:<port>" for a
// firecracker-style guest engine process, or "tcp:<host:port>" for a
// same-host engine process, matching the teacher's own host-process-first
// deployment (internal/wasm/manager.go) with vsock as the VM-isolated
// alternative (internal/pkg/vsock, currently stubbed by the teacher for its
// disconnected dev environment).
type Addr string

func (a Addr) parse() (network string, cid, port uint32, hostport string, err error) {
	s := string(a)
	switch {
	case strings.HasPrefix(s, "vsock:"):
		parts := strings.SplitN(strings.TrimPrefix(s, "vsock:"), ":", 2)
		if len(parts) != 2 {
			return "", 0, 0, "", fmt.Errorf("agent: malformed vsock address %q", s)
		}
		cidVal, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return "", 0, 0, "", fmt.Errorf("agent: malformed vsock cid in %q: %w", s, err)
		}
		portVal, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return "", 0, 0, "", fmt.Errorf("agent: malformed vsock port in %q: %w", s, err)
		}
		return "vsock", uint32(cidVal), uint32(portVal), "", nil
	case strings.HasPrefix(s, "tcp:"):
		return "tcp", 0, 0, strings.TrimPrefix(s, "tcp:"), nil
	default:
		return "", 0, 0, "", fmt.Errorf("agent: address %q must be prefixed vsock: or tcp:", s)
	}
}

// Dial connects to an engine process at addr, within timeout.
func Dial(addr Addr, timeout time.Duration) (net.Conn, error) {
	network, cid, port, hostport, err := addr.parse()
	if err != nil {
		return nil, err
	}

	switch network {
	case "vsock":
		conn, err := vsock.Dial(cid, port, nil)
		if err != nil {
			return nil, fmt.Errorf("agent: dial vsock %d:%d: %w", cid, port, err)
		}
		return conn, nil
	default:
		conn, err := net.DialTimeout("tcp", hostport, timeout)
		if err != nil {
			return nil, fmt.Errorf("agent: dial tcp %s: %w", hostport, err)
		}
		return conn, nil
	}
}

// Listen opens a listener for an engine process to accept connections on,
// used by a test harness or an in-process engine stub standing in for the
// real out-of-process engine.
func Listen(addr Addr) (net.Listener, error) {
	network, _, port, hostport, err := addr.parse()
	if err != nil {
		return nil, err
	}

	switch network {
	case "vsock":
		l, err := vsock.Listen(port, nil)
		if err != nil {
			return nil, fmt.Errorf("agent: listen vsock port %d: %w", port, err)
		}
		return l, nil
	default:
		l, err := net.Listen("tcp", hostport)
		if err != nil {
			return nil, fmt.Errorf("agent: listen tcp %s: %w", hostport, err)
		}
		return l, nil
	}
}
