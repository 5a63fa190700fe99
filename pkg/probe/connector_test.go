package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/grafana/netverify/pkg/logging"
)

func listen(t *testing.T) (net.Listener, netip.AddrPort) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error creating listener: %v", err)
	}
	t.Cleanup(func() { l.Close() }) //nolint:errcheck

	return l, netip.MustParseAddrPort(l.Addr().String())
}

// trickle accepts one connection and writes a byte every interval until the
// peer goes away.
func trickle(l net.Listener, every time.Duration) {
	cn, err := l.Accept()
	if err != nil {
		return
	}
	defer cn.Close() //nolint:errcheck

	for {
		if _, err := cn.Write([]byte("x")); err != nil {
			return
		}
		time.Sleep(every)
	}
}

func TestConnector(t *testing.T) {
	c := NewConnector(logging.Logger{})

	t.Run("connects", func(t *testing.T) {
		_, ap := listen(t)

		cn, err := c.Connect(t.Context(), ap.Addr(), int(ap.Port()), time.Second)
		if err != nil {
			t.Fatal(err)
		}
		cn.Close() //nolint:errcheck
	})

	t.Run("refused", func(t *testing.T) {
		l, ap := listen(t)
		l.Close() //nolint:errcheck

		_, err := c.Connect(t.Context(), ap.Addr(), int(ap.Port()), time.Second)
		if !errors.Is(err, ErrConnectRefused) {
			t.Fatalf("expecting error %v, got %v", ErrConnectRefused, err)
		}
	})

	t.Run("context aware", func(t *testing.T) {
		_, ap := listen(t)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		if _, err := c.Connect(ctx, ap.Addr(), int(ap.Port()), time.Second); !errors.Is(err, context.Canceled) {
			t.Fatalf("expecting error %v, got %v", context.Canceled, err)
		}
	})

	t.Run("single attempt", func(t *testing.T) {
		var calls int
		c := &Connector{dial: func(context.Context, string, string) (net.Conn, error) {
			calls++
			return nil, os.ErrDeadlineExceeded
		}}

		_, err := c.Connect(t.Context(), netip.MustParseAddr("10.255.255.1"), 80, time.Millisecond)
		if !errors.Is(err, ErrConnectTimeout) {
			t.Fatalf("expecting error %v, got %v", ErrConnectTimeout, err)
		}
		if calls != 1 {
			t.Fatalf("expecting exactly one dial, got %d", calls)
		}
	})

	t.Run("read timeout", func(t *testing.T) {
		l, ap := listen(t)
		go func() {
			cn, err := l.Accept()
			if err != nil {
				return
			}
			defer cn.Close() //nolint:errcheck
			time.Sleep(time.Second)
		}()

		cn, err := c.Connect(t.Context(), ap.Addr(), int(ap.Port()), 50*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		defer cn.Close() //nolint:errcheck

		_, err = cn.Read(make([]byte, 1))
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("expecting error %v, got %v", os.ErrDeadlineExceeded, err)
		}
	})

	t.Run("deadline not refreshed by reads", func(t *testing.T) {
		l, ap := listen(t)
		go trickle(l, 20*time.Millisecond)

		cn, err := c.Connect(t.Context(), ap.Addr(), int(ap.Port()), 100*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		defer cn.Close() //nolint:errcheck

		start := time.Now()
		var n int
		b := make([]byte, 1)
		for err == nil {
			_, err = cn.Read(b)
			n++
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatalf("expecting error %v, got %v", os.ErrDeadlineExceeded, err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("expecting reads to stop after about 100ms, took %v (%d reads)", elapsed, n)
		}
	})
}

func TestClassifyDialError(t *testing.T) {
	tests := map[string]struct {
		in  error
		exp error
	}{
		"refused": {
			&net.OpError{Op: "dial", Net: "tcp4", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)},
			ErrConnectRefused,
		},
		"deadline":         {os.ErrDeadlineExceeded, ErrConnectTimeout},
		"context deadline": {context.DeadlineExceeded, ErrConnectTimeout},
		"unreachable": {
			&net.OpError{Op: "dial", Net: "tcp4", Err: os.NewSyscallError("connect", syscall.ENETUNREACH)},
			ErrSocket,
		},
		"other": {errors.New("boom"), ErrSocket},
	}

	for n, tt := range tests {
		t.Run(n, func(t *testing.T) {
			got := classifyDialError(tt.in)
			if !errors.Is(got, tt.exp) {
				t.Fatalf("expecting error %v, got %v", tt.exp, got)
			}
			if !errors.Is(got, tt.in) {
				t.Fatalf("original error %v lost in %v", tt.in, got)
			}
		})
	}
}
