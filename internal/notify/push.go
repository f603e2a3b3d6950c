package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HTTPPusher posts notifications to an external push gateway:
// POST {base}/push with body {"token": ..., "message": {...}}.
type HTTPPusher struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type PushOption func(*HTTPPusher)

func WithTimeout(d time.Duration) PushOption {
	return func(p *HTTPPusher) { p.defaultTimeout = d }
}

func WithRetry(max int) PushOption {
	return func(p *HTTPPusher) { p.retryMax = max }
}

// WithDial replaces the connection dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) PushOption {
	return func(p *HTTPPusher) { p.http.Dial = dial }
}

func NewHTTPPusher(baseURL string, opts ...PushOption) *HTTPPusher {
	p := &HTTPPusher{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 32},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type pushRequest struct {
	Token   string  `json:"token"`
	Message Message `json:"message"`
}

func (p *HTTPPusher) Send(ctx context.Context, token string, msg Message) error {
	payload, err := json.Marshal(pushRequest{Token: token, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(p.baseURL + "/push")
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	attempts := p.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.http.DoDeadline(req, resp, p.deadline(ctx))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("push request failed: %w", err)
		case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
			return nil
		default:
			status := resp.StatusCode()
			lastErr = fmt.Errorf("push gateway error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown push error")
	}
	return lastErr
}

func (p *HTTPPusher) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(p.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
