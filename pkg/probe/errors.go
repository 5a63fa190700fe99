package probe

import "errors"

var (
	ErrDNSFailure     = errors.New("dns resolution failed")
	ErrSinkhole       = errors.New("dns sinkholed")
	ErrSocket         = errors.New("socket error")
	ErrConnectTimeout = errors.New("connect timed out")
	ErrConnectRefused = errors.New("connection refused")
	ErrNoResponse     = errors.New("no protocol response")
	ErrInvalidTarget  = errors.New("invalid target")
)
