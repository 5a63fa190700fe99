package probe

import (
	"fmt"
	"net"
	"strconv"
)

// Kind identifies what a Target points at.
type Kind int

const (
	KindSidecar Kind = iota
	KindExternalIP
	KindExternalURL
)

func (k Kind) String() string {
	switch k {
	case KindSidecar:
		return "sidecar"
	case KindExternalIP:
		return "ip"
	case KindExternalURL:
		return "url"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

type ExpectMode int

const (
	ExpectConnect ExpectMode = iota
	ExpectBlock
	ExpectSignature
)

func (m ExpectMode) String() string {
	switch m {
	case ExpectConnect:
		return "connect"
	case ExpectBlock:
		return "block"
	case ExpectSignature:
		return "signature"
	default:
		return "expect(" + strconv.Itoa(int(m)) + ")"
	}
}

// Expectation is what a Target must do for its probe to pass.
type Expectation struct {
	Mode      ExpectMode
	Signature string
}

func MustConnect() Expectation { return Expectation{Mode: ExpectConnect} }

func MustBlock() Expectation { return Expectation{Mode: ExpectBlock} }

func Signature(s string) Expectation {
	return Expectation{Mode: ExpectSignature, Signature: s}
}

func (e Expectation) String() string {
	if e.Mode == ExpectSignature {
		return fmt.Sprintf("signature %q", e.Signature)
	}
	return e.Mode.String()
}

// Target is a single probe request. Targets are values; nothing in this
// package mutates one after it has been built.
type Target struct {
	Kind   Kind
	Host   string
	Port   int
	Expect Expectation
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s (expect %s)", t.Kind, t.Addr(), t.Expect)
}

// Validate reports whether t can be probed at all.
func (t Target) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, t.Port)
	}
	if t.Expect.Mode == ExpectSignature && t.Expect.Signature == "" {
		return fmt.Errorf("%w: empty signature", ErrInvalidTarget)
	}
	return nil
}
