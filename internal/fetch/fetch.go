// Package fetch performs bounded-time HTTP retrieval of remote playlist
// documents and lightweight reachability probes of source URLs.
//
// The package never retries: a failed fetch is reported once and the
// caller (the refresh scheduler or a manual trigger) decides when to try
// again.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindHTTPStatus
	KindTooLarge
)

// Error is a typed fetch failure. StatusCode is only meaningful for
// KindHTTPStatus.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("fetch: timeout retrieving %s", e.URL)
	case KindHTTPStatus:
		return fmt.Sprintf("fetch: %s returned HTTP %d", e.URL, e.StatusCode)
	case KindTooLarge:
		return fmt.Sprintf("fetch: %s exceeds the content size limit", e.URL)
	default:
		return fmt.Sprintf("fetch: retrieving %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ProbeResult is the outcome of a reachability probe. HTTPCode is nil
// when the request never produced a response (network error, timeout).
type ProbeResult struct {
	Status   model.CheckStatus `json:"status"`
	HTTPCode *int              `json:"http_code"`
	Error    string            `json:"error,omitempty"`
}

// Client retrieves remote documents over HTTP with a fixed timeout and
// a hard ceiling on response size. Safe for concurrent use.
type Client struct {
	http    *http.Client
	maxSize int64
}

// New creates a Client. maxSize is the largest response body accepted,
// in bytes; larger bodies are discarded, never partially returned.
func New(timeout time.Duration, maxSize int64) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// Fetch retrieves the document at url. On failure it returns a *Error
// whose Kind distinguishes timeouts, HTTP status errors, oversized
// bodies and other network faults.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{Kind: KindNetwork, URL: url, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: classify(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindHTTPStatus, URL: url, StatusCode: resp.StatusCode}
	}

	// Read at most maxSize+1 bytes: the extra byte tells us the body
	// was over the limit without buffering the whole thing.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return "", &Error{Kind: classify(err), URL: url, Err: err}
	}
	if int64(len(body)) > c.maxSize {
		return "", &Error{Kind: KindTooLarge, URL: url}
	}

	return string(body), nil
}

// Probe performs a header-only existence check of url, following
// redirects. The source counts as reachable only on an exact 200.
// Probe never returns an error — failures are part of the result.
func (c *Client) Probe(ctx context.Context, url string) ProbeResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{Status: model.StatusFail, Error: err.Error()}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ProbeResult{Status: model.StatusFail, Error: err.Error()}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if code != http.StatusOK {
		return ProbeResult{
			Status:   model.StatusFail,
			HTTPCode: &code,
			Error:    fmt.Sprintf("HTTP %d", code),
		}
	}
	return ProbeResult{Status: model.StatusOK, HTTPCode: &code}
}

// classify maps a transport error to a Kind. Timeouts are reported
// separately because the refresh loop treats "slow source" differently
// from "broken source" in its error messages.
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
