package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind buckets RPC failures into the two propagation classes the
// observer cares about: retry/rotate vs surface-and-reconnect.
type ErrorKind int

const (
	// KindTransient covers timeouts, 5xx responses and transport resets.
	// Retryable; counts toward endpoint rotation.
	KindTransient ErrorKind = iota
	// KindFatal covers auth rejections and malformed responses. Surfaced to
	// the observer without rotating endpoints.
	KindFatal
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// RPCError wraps a provider failure with its classification and the endpoint
// that produced it.
type RPCError struct {
	Kind     ErrorKind
	Endpoint string
	Op       string
	Err      error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s (%s, endpoint %s): %v", e.Op, e.Kind, e.Endpoint, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable RPC failure.
func IsTransient(err error) bool {
	var re *RPCError
	if errors.As(err, &re) {
		return re.Kind == KindTransient
	}
	return false
}

var fatalMarkers = []string{
	"401", "403", "unauthorized", "forbidden", "invalid api key",
	"method not found", "invalid argument", "cannot unmarshal",
	"invalid character", "unexpected end of json",
}

var transientMarkers = []string{
	"timeout", "timed out", "deadline exceeded", "connection refused",
	"connection reset", "broken pipe", "eof", "502", "503", "504", "500",
	"too many requests", "rate limit", "no route to host",
	"tls handshake", "websocket: close",
}

// classify maps a raw provider error to its kind. Unknown errors are treated
// as transient so a flaky provider never wedges an observer permanently.
func classify(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return KindFatal
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return KindTransient
		}
	}
	return KindTransient
}

var tooLargeMarkers = []string{
	"result too large", "query returned more than", "response size exceeded",
	"log response size exceeded", "too many results", "block range is too wide",
	"exceed maximum block range",
}

// isResultTooLarge detects provider-side getLogs size limits; the caller
// halves its block chunk and retries.
func isResultTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range tooLargeMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
