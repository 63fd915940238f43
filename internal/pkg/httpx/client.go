package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of an upstream error body ends up in logs.
const maxErrorBody = 2048

var (
	ErrTimeout = errors.New("upstream timeout")
	ErrNetwork = errors.New("upstream network error")
)

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http error: status=%d body=%s", e.Op, e.Status, e.Body)
}

// NewClient returns an http.Client with pooled keep-alive connections and an
// overall request timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// CheckResponse returns nil for 2xx responses and a *StatusError carrying a
// truncated body otherwise. It does not close the body.
func CheckResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: fmt.Sprintf("<failed to read body: %v>", readErr)}
	}
	return &StatusError{Op: op, Status: resp.StatusCode, Body: string(body)}
}

// ClassifyError wraps a transport error with ErrTimeout or ErrNetwork when it
// can tell which one it is.
func ClassifyError(ctx context.Context, op string, err error) error {
	if IsTimeout(ctx, err) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	if IsNetwork(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrNetwork, err)
	}
	return fmt.Errorf("%s request error: %w", op, err)
}

func IsTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return false
}
