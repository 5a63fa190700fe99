package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grafana/netverify/pkg/logging"
)

const DefaultTimeout = 5 * time.Second

// Options configures a Prober. Zero values fall back to the package
// defaults.
type Options struct {
	Timeout          time.Duration
	Lookuper         Lookuper
	KVPort           int
	KVPassword       string
	HTTPPorts        []int
	HTTPPath         string
	DefaultSignature string
	ReadLimit        int
	SnippetLen       int
	Log              logging.Logger
}

// Prober drives one Target at a time through resolve, connect and verify.
type Prober struct {
	resolver  *Resolver
	connector *Connector
	selector  Selector
	timeout   time.Duration
	log       logging.Logger
}

func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.KVPort == 0 {
		opts.KVPort = DefaultKVPort
	}
	if opts.KVPassword == "" {
		opts.KVPassword = DefaultKVPassword
	}
	if opts.HTTPPorts == nil {
		opts.HTTPPorts = DefaultHTTPPorts
	}

	return &Prober{
		resolver:  NewResolver(opts.Lookuper, opts.Log),
		connector: NewConnector(opts.Log),
		selector: Selector{
			KVPort:    opts.KVPort,
			HTTPPorts: opts.HTTPPorts,
			KV: KVAuthVerifier{
				Password: opts.KVPassword,
				Log:      opts.Log,
			},
			HTTP: HTTPSignatureVerifier{
				Path:             opts.HTTPPath,
				DefaultSignature: opts.DefaultSignature,
				MaxBytes:         opts.ReadLimit,
				SnippetLen:       opts.SnippetLen,
				Log:              opts.Log,
			},
			Bare: BareVerifier{},
		},
		timeout: opts.Timeout,
		log:     opts.Log,
	}
}

// Probe never returns an error: every failure becomes part of the
// Outcome. The connection, if one was made, is closed before Probe returns.
func (p *Prober) Probe(ctx context.Context, t Target) (out Outcome) {
	start := time.Now()
	log := p.log.WithTarget(t.Kind.String(), t.Addr())

	out = Outcome{Target: t, State: StateParsed}
	defer func() {
		out.Duration = time.Since(start)
		log.Debug("probe finished", "state", out.State, "connected", out.Connected, "verified", out.Verified, "duration", out.Duration)
	}()

	if err := t.Validate(); err != nil {
		out.Err = err
		out.State = StateResolveFailed
		return out
	}

	enter := func(s State) {
		log.Debug("state transition", "from", out.State, "to", s)
		out.State = s
	}

	enter(StateResolving)
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	addr, err := p.resolver.Resolve(rctx, t.Host)
	cancel()
	if err != nil {
		out.Err = err
		enter(StateResolveFailed)
		return out
	}
	if addr.Sinkhole {
		out.Err = fmt.Errorf("%w: %s resolved to %s", ErrSinkhole, t.Host, addr.IP)
		enter(StateSinkholeBlocked)
		return out
	}

	enter(StateConnecting)
	cn, err := p.connector.Connect(ctx, addr.IP, t.Port, p.timeout)
	if err != nil {
		out.Err = err
		enter(StateConnectFailed)
		return out
	}
	defer cn.Close() //nolint:errcheck

	// unblock any pending read or write if the run is cancelled
	stop := context.AfterFunc(ctx, func() { cn.Close() }) //nolint:errcheck
	defer stop()

	out.Connected = true
	enter(StateVerifying)

	v := p.selector.Select(t)
	out.Verifier = v.Name()
	log.Debug("verifying", "verifier", out.Verifier)

	out.Verified, out.Detail, out.Err = verify(ctx, v, cn, t)
	if out.Err != nil && ctx.Err() != nil {
		out.Err = fmt.Errorf("%w: %w", out.Err, ctx.Err())
	}
	enter(StateDone)

	return out
}

func verify(ctx context.Context, v Verifier, cn net.Conn, t Target) (verified bool, detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			verified, detail = false, ""
			err = fmt.Errorf("%w: verifier %s panicked: %v", ErrSocket, v.Name(), r)
		}
	}()

	return v.Verify(ctx, cn, t)
}
