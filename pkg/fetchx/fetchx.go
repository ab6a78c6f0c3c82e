// Package fetchx wraps a single HTTP request with a per-attempt timeout,
// bounded retries, and exponential backoff. Every outbound call in the
// pipeline (feed polling, webhooks, push APIs) goes through it.
package fetchx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	logx "stocknotify/pkg/logx"
)

// UserAgent identifies the service on every outgoing request unless the
// caller supplies its own User-Agent header.
const UserAgent = "stocknotify/1.0"

// Options bounds a single logical fetch.
//
// MaxRetries counts extra attempts after the first one, so MaxRetries=2
// means up to 3 attempts total. Zero-value fields fall back to defaults.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultTimeout    = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

type Client struct {
	hc  *http.Client
	log logx.Logger
}

// New builds a Client on top of hc. A nil hc uses http.DefaultTransport;
// per-attempt timeouts come from Options, not from hc.Timeout.
func New(hc *http.Client, log logx.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{hc: hc, log: log}
}

// Do performs the request, retrying on transport errors, 429 and 5xx.
//
// Any other status is returned to the caller immediately, without retries;
// deciding what a 404 means is the caller's business. When a retryable
// status is still failing after the last attempt, the response itself is
// returned (not an error). When the transport keeps failing, the last
// transport error is returned.
//
// The caller owns the returned response body.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte, opt Options) (*http.Response, error) {
	opt = opt.withDefaults()

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, method, url, header, body, opt.Timeout)
		if err == nil {
			if !retryableStatus(resp.StatusCode) || attempt >= opt.MaxRetries {
				return resp, nil
			}
			// Retiring this response; release the connection first.
			drainClose(resp)
		} else {
			lastErr = err
			if attempt >= opt.MaxRetries {
				return nil, lastErr
			}
		}

		delay := opt.BaseDelay << uint(attempt)
		c.log.Debug("fetch retry scheduled",
			logx.String("url", url),
			logx.Int("attempt", attempt+2),
			logx.Int("max", opt.MaxRetries+1),
			logx.Duration("delay", delay),
			logx.Err(lastErr))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, url string, header http.Header, body []byte, timeout time.Duration) (*http.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)

	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(actx, method, url, rd)
	if err != nil {
		cancel()
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the timeout context to the body so the caller can stream it.
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func drainClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
