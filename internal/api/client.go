package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
)

// Client is the HTTP wrapper around the SpaceTraders REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// NewClient creates a new API client. An empty baseURL uses the public API.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = core.APIBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
		sleep:      core.SleepContext,
		log:        log.With().Str("component", "api").Logger(),
	}
}

// Request performs an API request and decodes the JSON payload.
// 429 responses are retried for every method. Connection errors and 5xx
// responses are retried only for idempotent methods, so a ship action is
// never sent twice.
// A 204 response returns a nil map.
func (c *Client) Request(ctx context.Context, method, endpoint string, params map[string]string, body interface{}) (map[string]interface{}, error) {
	urlStr := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(endpoint, "/"))

	// Build query string
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		urlStr = fmt.Sprintf("%s?%s", urlStr, q.Encode())
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	c.log.Debug().Str("method", method).Str("url", urlStr).Msg("request")

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		status, respBody, header, err := c.do(ctx, method, urlStr, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			metrics.APIRequests.WithLabelValues(method, "error").Inc()
			if attempt < c.maxRetries && idempotent(method) {
				wait := backoff(attempt)
				c.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("connection error, retrying")
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}
		metrics.APIRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()

		// Check for retryable errors
		if status == http.StatusTooManyRequests || (status >= 500 && idempotent(method)) {
			lastErr = newAPIError(status, respBody)
			if attempt < c.maxRetries {
				wait := backoff(attempt)
				if status == http.StatusTooManyRequests {
					if ra := header.Get("Retry-After"); ra != "" {
						if secs, err := strconv.ParseFloat(ra, 64); err == nil {
							wait = time.Duration(secs * float64(time.Second))
						}
					}
				}
				c.log.Warn().Int("status", status).Int("attempt", attempt).Dur("wait", wait).Msg("retryable response, retrying")
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		// Non-retryable error
		if status >= 400 {
			return nil, newAPIError(status, respBody)
		}

		if status == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			c.log.Debug().Int("status", status).Msg("response without content")
			return nil, nil
		}

		var result map[string]interface{}
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		c.log.Debug().Int("status", status).Int("bytes", len(respBody)).Msg("response")
		return result, nil
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, urlStr string, payload []byte) (int, []byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: string(body)}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		apiErr.Message = eb.Error.Message
		apiErr.Code = eb.Error.Code
	}
	return apiErr
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}
