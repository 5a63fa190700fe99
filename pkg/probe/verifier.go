package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strings"

	"github.com/grafana/netverify/pkg/logging"
)

const (
	DefaultKVPort      = 6379
	DefaultKVPassword  = "noj_secret_pass"
	DefaultHTTPPath    = "/"
	DefaultSignature   = "verify_env_args_success"
	DefaultKVReadSize  = 1024
	DefaultHTTPChunk   = 4096
	DefaultHTTPMaxBody = 1 << 20
	DefaultSnippetLen  = 100

	kvOK = "+OK"

	bareName = "bare"
)

var DefaultHTTPPorts = []int{80, 8000, 8080}

// Verifier runs a protocol exchange over an already established
// connection. A false result with a nil error is a check that ran and
// failed; the error carries why the exchange itself could not complete.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, cn net.Conn, t Target) (verified bool, detail string, err error)
}

// KVAuthVerifier sends a single AUTH command and expects +OK back.
type KVAuthVerifier struct {
	Password string
	ReadSize int
	Log      logging.Logger
}

func (v KVAuthVerifier) Name() string { return "kv-auth" }

func (v KVAuthVerifier) Verify(_ context.Context, cn net.Conn, _ Target) (bool, string, error) {
	v.Log.Debug("sending AUTH command")
	if _, err := io.WriteString(cn, "AUTH "+v.Password+"\r\n"); err != nil {
		return false, "", fmt.Errorf("%w: sending AUTH: %w", ErrSocket, err)
	}

	size := v.ReadSize
	if size <= 0 {
		size = DefaultKVReadSize
	}
	buf := make([]byte, size)

	n, err := cn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		v.Log.Debug("no AUTH response", "err", err)
		return false, "", fmt.Errorf("%w: %w", ErrNoResponse, err)
	}

	resp := strings.TrimRight(string(buf[:n]), "\r\n")
	v.Log.Debug("AUTH response", "raw", resp)

	return strings.HasPrefix(resp, kvOK), resp, nil
}

// HTTPSignatureVerifier issues a bare HTTP/1.0 GET and looks for a
// signature anywhere in the raw response, headers included. The whole
// response is buffered before the scan so a signature split across reads
// still matches.
type HTTPSignatureVerifier struct {
	Path             string
	DefaultSignature string
	ChunkSize        int
	MaxBytes         int
	SnippetLen       int
	Log              logging.Logger
}

func (v HTTPSignatureVerifier) Name() string { return "http-signature" }

func (v HTTPSignatureVerifier) Verify(_ context.Context, cn net.Conn, t Target) (bool, string, error) {
	path := v.Path
	if path == "" {
		path = DefaultHTTPPath
	}

	sig := t.Expect.Signature
	if t.Expect.Mode != ExpectSignature || sig == "" {
		sig = v.DefaultSignature
	}
	if sig == "" {
		sig = DefaultSignature
	}

	v.Log.Debug("sending HTTP GET request", "path", path)
	req := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\n\r\n", path, t.Host)
	if _, err := io.WriteString(cn, req); err != nil {
		return false, "", fmt.Errorf("%w: sending request: %w", ErrSocket, err)
	}

	resp, err := v.readResponse(cn)
	if len(resp) == 0 {
		if err == nil {
			err = io.EOF
		}
		v.Log.Debug("no HTTP response", "err", err)
		return false, "", fmt.Errorf("%w: %w", ErrNoResponse, err)
	}

	snippet := Snippet(resp, v.snippetLen())
	v.Log.Debug("HTTP response received", "length", len(resp), "snippet", snippet)

	ok := bytes.Contains(resp, []byte(sig))
	if ok {
		v.Log.Debug("signature matched", "signature", sig)
	} else {
		v.Log.Debug("signature not found", "signature", sig)
	}

	return ok, snippet, err
}

// readResponse reads until EOF or MaxBytes. A read error after some data
// arrived is returned alongside what was read.
func (v HTTPSignatureVerifier) readResponse(r io.Reader) ([]byte, error) {
	chunkSize := v.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultHTTPChunk
	}
	limit := v.MaxBytes
	if limit <= 0 {
		limit = DefaultHTTPMaxBody
	}

	var b bytes.Buffer
	chunk := make([]byte, chunkSize)

	for b.Len() < limit {
		n, err := r.Read(chunk[:min(chunkSize, limit-b.Len())])
		b.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			return b.Bytes(), nil
		}
		if err != nil {
			return b.Bytes(), err
		}
	}

	return b.Bytes(), nil
}

func (v HTTPSignatureVerifier) snippetLen() int {
	if v.SnippetLen <= 0 {
		return DefaultSnippetLen
	}
	return v.SnippetLen
}

// BareVerifier performs no exchange: having a connection is the check.
type BareVerifier struct{}

func (BareVerifier) Name() string { return bareName }

func (BareVerifier) Verify(context.Context, net.Conn, Target) (bool, string, error) {
	return true, "connected", nil
}

// Snippet returns at most n bytes of b quoted for display, with an
// ellipsis when truncated.
func Snippet(b []byte, n int) string {
	if len(b) <= n {
		return fmt.Sprintf("%q", b)
	}
	return fmt.Sprintf("%q...", b[:n])
}

// Selector picks the Verifier for a Target. Signature expectations always
// use HTTP; sidecars are dispatched on their port; everything else only
// needs to connect.
type Selector struct {
	KVPort    int
	HTTPPorts []int

	KV   Verifier
	HTTP Verifier
	Bare Verifier
}

func (s Selector) Select(t Target) Verifier {
	switch {
	case t.Expect.Mode == ExpectSignature:
		return s.HTTP
	case t.Kind != KindSidecar:
		return s.Bare
	case t.Port == s.KVPort:
		return s.KV
	case slices.Contains(s.HTTPPorts, t.Port):
		return s.HTTP
	default:
		return s.Bare
	}
}
