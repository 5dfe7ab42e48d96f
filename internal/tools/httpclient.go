package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPClient performs provider calls with a per-provider rate limit.
type HTTPClient struct {
	client   *http.Client
	perSec   int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

func NewHTTPClient(client *http.Client, perSec int, logger *zap.Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if perSec < 1 {
		perSec = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{client: client, perSec: perSec, limiters: map[string]*rate.Limiter{}, logger: logger}
}

func (c *HTTPClient) limiter(provider string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.perSec), c.perSec)
		c.limiters[provider] = l
	}
	return l
}

func (c *HTTPClient) GetJSON(ctx context.Context, provider string, url string, headers map[string]string, out any) error {
	return c.do(ctx, provider, http.MethodGet, url, nil, headers, out)
}

func (c *HTTPClient) PostJSON(ctx context.Context, provider string, url string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return c.do(ctx, provider, http.MethodPost, url, payload, headers, out)
}

func (c *HTTPClient) do(ctx context.Context, provider string, method string, url string, body []byte, headers map[string]string, out any) error {
	if err := c.limiter(provider).Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("provider call",
		zap.String("provider", provider),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ProviderError{Provider: provider, Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s response: %w", provider, err)
	}
	return nil
}
