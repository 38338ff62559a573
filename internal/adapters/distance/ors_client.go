package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	orsMaxAttempts  = 4
	orsFirstBackoff = 200 * time.Millisecond
	orsMaxBackoff   = 5 * time.Second
)

// orsAPIError is a non-2xx answer from OpenRouteService.
type orsAPIError struct {
	Status     int
	Endpoint   string
	Message    string
	RetryAfter time.Duration
}

func (e *orsAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ors %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("ors %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// orsClient speaks JSON to one OpenRouteService deployment. Every attempt,
// retries included, takes a token from the shared limiter first.
type orsClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
	limiter *rate.Limiter
}

func newORSClient(apiKey, baseURL string, timeout time.Duration, perMinute int) *orsClient {
	return &orsClient{
		http:    &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (c *orsClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.call(ctx, http.MethodGet, target, path, nil, out)
}

func (c *orsClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ors %s: encode body: %w", path, err)
	}
	return c.call(ctx, http.MethodPost, c.baseURL+path, path, body, out)
}

func (c *orsClient) call(ctx context.Context, method, target, endpoint string, body []byte, out any) error {
	wait := orsFirstBackoff

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("ors %s: rate limit wait: %w", endpoint, err)
		}

		err := c.once(ctx, method, target, endpoint, body, out)
		if err == nil {
			return nil
		}
		if attempt == orsMaxAttempts || !retryable(err) {
			return err
		}

		pause := wait
		var apiErr *orsAPIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > pause {
			pause = min(apiErr.RetryAfter, orsMaxBackoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
		wait = min(wait*2, orsMaxBackoff)
	}
}

func (c *orsClient) once(ctx context.Context, method, target, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("ors %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ors %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(resp, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ors %s: decode response: %w", endpoint, err)
	}
	return nil
}

// readAPIError extracts the message from either {"error":"..."} or
// {"error":{"code":N,"message":"..."}} bodies and falls back to the raw text.
func readAPIError(resp *http.Response, endpoint string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	apiErr := &orsAPIError{Status: resp.StatusCode, Endpoint: endpoint}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
		}
		var text string
		switch {
		case json.Unmarshal(envelope.Error, &text) == nil:
			apiErr.Message = text
		case json.Unmarshal(envelope.Error, &detail) == nil:
			apiErr.Message = detail.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	return apiErr
}

// retryable reports whether err is worth another attempt: throttling,
// gateway and server failures, or a transport-level network error.
func retryable(err error) bool {
	var apiErr *orsAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
