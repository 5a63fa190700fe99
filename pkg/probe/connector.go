package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/grafana/netverify/pkg/logging"
)

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Connector struct {
	dial DialFunc
	log  logging.Logger
}

func NewConnector(log logging.Logger) *Connector {
	return &Connector{log: log}
}

// Connect makes exactly one TCP connection attempt to ip:port. The returned
// connection carries one absolute deadline of now+timeout shared by every
// read and write that follows; the caller owns it and must close it.
func (c *Connector) Connect(ctx context.Context, ip netip.Addr, port int, timeout time.Duration) (net.Conn, error) {
	addr := netip.AddrPortFrom(ip, uint16(port)).String()

	dial := c.dial
	if dial == nil {
		d := net.Dialer{Timeout: timeout}
		dial = d.DialContext
	}

	c.log.Debug("connecting", "addr", addr, "timeout", timeout)

	cn, err := dial(ctx, "tcp4", addr)
	if err != nil {
		err = classifyDialError(err)
		c.log.Debug("connect failed", "addr", addr, "err", err)
		return nil, err
	}

	if timeout > 0 {
		if err := cn.SetDeadline(time.Now().Add(timeout)); err != nil {
			cn.Close() //nolint:errcheck
			return nil, fmt.Errorf("%w: %w", ErrSocket, err)
		}
	}

	c.log.Debug("connected", "addr", addr)

	return cn, nil
}

func classifyDialError(err error) error {
	var ne net.Error

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectRefused, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrSocket, err)
	}
}
