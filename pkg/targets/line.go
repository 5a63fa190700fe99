package targets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/grafana/netverify/pkg/probe"
)

var (
	ErrMalformedRecord    = errors.New("malformed record")
	ErrInvalidKind        = errors.New("invalid target kind")
	ErrInvalidExpectation = errors.New("invalid expectation")
)

// DefaultSignatures are the response signatures checked by the single-mode
// record types (http, custom_python, custom_cpp).
var DefaultSignatures = map[string]string{
	"http":          probe.DefaultSignature,
	"custom_python": "Hello from Server Container!",
	"custom_cpp":    "Hello from C++ File!",
}

// Entry is a parsed target together with where it came from.
type Entry struct {
	Name   string
	Line   int
	Target probe.Target
}

// Parser reads the line based target format:
//
//	DOCKER <host> <port> <signature...>
//	IP     <ip>   <port> [connect|block]
//	URL    <host> <port> [connect|block]
//
// plus the single-mode records redis, http, custom_python, custom_cpp and
// external, each followed by <host> <port>.
type Parser struct {
	Signatures map[string]string
}

func (p Parser) signature(kind string) string {
	if s, ok := p.Signatures[kind]; ok && s != "" {
		return s
	}
	return DefaultSignatures[kind]
}

// Parse reads every record in r. Records that cannot be parsed are
// returned in skipped and do not stop the rest of the input; err is only
// set when r itself fails.
func (p Parser) Parse(r io.Reader) (entries []Entry, skipped []error, err error) {
	s := bufio.NewScanner(r)

	for n := 1; s.Scan(); n++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		t, err := p.ParseLine(line)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("line %d: %w", n, err))
			continue
		}

		entries = append(entries, Entry{Name: line, Line: n, Target: t})
	}

	return entries, skipped, s.Err()
}

// ParseLine parses a single record.
func (p Parser) ParseLine(line string) (probe.Target, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return probe.Target{}, fmt.Errorf("%w: expecting at least <type> <host> <port>, got %q", ErrMalformedRecord, line)
	}

	keyword := strings.ToLower(fields[0])
	host := fields[1]

	port, err := strconv.Atoi(fields[2])
	if err != nil || port < 1 || port > 65535 {
		return probe.Target{}, fmt.Errorf("%w: invalid port %q", ErrMalformedRecord, fields[2])
	}

	t := probe.Target{Host: host, Port: port, Expect: probe.MustConnect()}

	switch keyword {
	case "docker":
		t.Kind = probe.KindSidecar
		if sig := signatureField(line); sig != "" {
			t.Expect = probe.Signature(sig)
		}

	case "ip", "url":
		t.Kind = probe.KindExternalURL
		if keyword == "ip" {
			if _, err := netip.ParseAddr(host); err != nil {
				return probe.Target{}, fmt.Errorf("%w: %q is not an IP address", ErrMalformedRecord, host)
			}
			t.Kind = probe.KindExternalIP
		}
		if len(fields) > 4 {
			return probe.Target{}, fmt.Errorf("%w: unexpected fields after the expectation: %q", ErrMalformedRecord, strings.Join(fields[4:], " "))
		}
		if len(fields) > 3 {
			e, err := ParseExpectation(fields[3])
			if err != nil {
				return probe.Target{}, err
			}
			t.Expect = e
		}

	case "redis":
		t.Kind = probe.KindSidecar

	case "http", "custom_python", "custom_cpp":
		t.Kind = probe.KindSidecar
		t.Expect = probe.Signature(p.signature(keyword))

	case "external":
		t.Kind = probe.KindExternalURL
		if _, err := netip.ParseAddr(host); err == nil {
			t.Kind = probe.KindExternalIP
		}

	default:
		return probe.Target{}, fmt.Errorf("%w: %q", ErrInvalidKind, fields[0])
	}

	return t, nil
}

// ParseExpectation accepts connect/block and the boolean spellings used by
// older inputs.
func ParseExpectation(s string) (probe.Expectation, error) {
	switch strings.ToLower(unquote(s)) {
	case "connect", "true", "yes", "allow":
		return probe.MustConnect(), nil
	case "block", "false", "no", "deny":
		return probe.MustBlock(), nil
	default:
		return probe.Expectation{}, fmt.Errorf("%w: %q", ErrInvalidExpectation, s)
	}
}

// signatureField returns everything after the port token, keeping inner
// whitespace and dropping one level of surrounding quotes.
func signatureField(line string) string {
	rest := line
	for range 3 {
		rest = strings.TrimLeft(rest, " \t")
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}

	return unquote(strings.TrimSpace(rest))
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		if s[0] == '"' {
			if u, err := strconv.Unquote(s); err == nil {
				return u
			}
		}
		return s[1 : len(s)-1]
	}
	return s
}
