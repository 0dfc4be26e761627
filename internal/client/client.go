package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/piukhq/vela-sub000/internal/observability"
)

const (
	// idempotencyHeader carries the caller-supplied token; downstream
	// services deduplicate on it, so re-sending the same token is safe.
	idempotencyHeader = "Idempotency-Token"

	localRetryDelay = 200 * time.Millisecond
	// One retry on transport faults only. Response-status retries belong to
	// the task-level scheduler, not here.
	localRetryAttempts = 1
)

type baseClient struct {
	service string
	baseURL string
	http    *http.Client
}

func newBaseClient(service, baseURL string, timeout time.Duration) baseClient {
	return baseClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// errorBody is the error envelope shared by the downstream services.
type errorBody struct {
	Code    string `json:"code"`
	Display string `json:"display_message"`
}

// doJSON issues one request, retrying transport faults at most once, and
// decodes a 2xx body into out. Non-2xx responses come back as *APIError.
func (c *baseClient) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
	}

	started := time.Now()
	backoff := retry.WithMaxRetries(localRetryAttempts, retry.NewConstant(localRetryDelay))

	var resp *http.Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set(idempotencyHeader, token)
		}

		resp, err = c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		observability.ExternalCallDuration.WithLabelValues(c.service, "network_error").Observe(time.Since(started).Seconds())
		return fmt.Errorf("%s: %s %s: %w", c.service, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ExternalCallDuration.WithLabelValues(c.service, "network_error").Observe(time.Since(started).Seconds())
		return fmt.Errorf("%s: read response: %w", c.service, err)
	}

	observability.ExternalCallDuration.WithLabelValues(c.service, fmt.Sprint(resp.StatusCode)).Observe(time.Since(started).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return classifyStatus(c.service, resp.StatusCode, eb.Code, eb.Display)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.service, err)
		}
	}
	return nil
}
