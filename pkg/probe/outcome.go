package probe

import (
	"context"
	"errors"
	"time"
)

// State is a step of a single probe.
type State int

const (
	StateParsed State = iota
	StateResolving
	StateSinkholeBlocked
	StateResolveFailed
	StateConnecting
	StateConnectFailed
	StateVerifying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "PARSED"
	case StateResolving:
		return "RESOLVING"
	case StateSinkholeBlocked:
		return "SINKHOLE_BLOCKED"
	case StateResolveFailed:
		return "RESOLVE_FAILED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnectFailed:
		return "CONNECT_FAILED"
	case StateVerifying:
		return "VERIFYING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool {
	switch s {
	case StateSinkholeBlocked, StateResolveFailed, StateConnectFailed, StateDone:
		return true
	default:
		return false
	}
}

// Outcome is the single result of probing one Target. Verified is never
// true unless Connected is.
type Outcome struct {
	Target    Target
	State     State
	Connected bool
	Verified  bool
	Verifier  string
	Detail    string
	Err       error
	Duration  time.Duration
}

// Passed compares the outcome with what the target expected.
func (o Outcome) Passed() bool {
	if errors.Is(o.Err, ErrInvalidTarget) || errors.Is(o.Err, context.Canceled) {
		return false
	}

	switch o.Target.Expect.Mode {
	case ExpectBlock:
		return o.Blocked()
	case ExpectSignature:
		return o.State == StateDone && o.Verified
	default:
		return o.Connected && o.Verified
	}
}

// Judge decides whether o passed. It is Passed as a plain function.
func Judge(o Outcome) bool { return o.Passed() }

// Blocked reports whether the probe ended before a connection existed.
func (o Outcome) Blocked() bool {
	switch o.State {
	case StateSinkholeBlocked, StateResolveFailed, StateConnectFailed:
		return true
	default:
		return false
	}
}

// Classification is the canonical one-word-ish verdict printed per target.
func (o Outcome) Classification() string {
	switch o.State {
	case StateSinkholeBlocked:
		return "BLOCKED (sinkhole)"
	case StateResolveFailed:
		return "BLOCKED (dns failure)"
	case StateConnectFailed:
		return "BLOCKED (connect failed)"
	case StateDone:
		switch {
		case o.Verifier == bareName:
			return "CONNECTED"
		case o.Verified:
			return "VERIFIED"
		default:
			return "UNVERIFIED"
		}
	default:
		return "INCOMPLETE"
	}
}

// Reason maps Err onto the failure taxonomy. It is empty when the probe
// ran without error.
func (o Outcome) Reason() string {
	switch {
	case o.Err == nil:
		return ""
	case errors.Is(o.Err, ErrInvalidTarget):
		return "INVALID_TARGET"
	case errors.Is(o.Err, ErrSinkhole):
		return "SINKHOLE"
	case errors.Is(o.Err, ErrDNSFailure):
		return "DNS_FAILURE"
	case errors.Is(o.Err, ErrConnectTimeout):
		return "CONNECT_TIMEOUT"
	case errors.Is(o.Err, ErrConnectRefused):
		return "CONNECT_REFUSED"
	case errors.Is(o.Err, ErrNoResponse):
		return "PROTOCOL_NO_RESPONSE"
	default:
		return "SOCKET_ERROR"
	}
}
