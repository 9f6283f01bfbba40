package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/metrics"

	"github.com/cenkalti/backoff/v4"
)

// Client 网关 HTTP 客户端，Basic Auth 使用 key_id/key_secret
type Client struct {
	baseURL        string
	keyID          string
	keySecret      string
	httpClient     *http.Client
	maxRetries     uint64
	initialBackoff time.Duration
}

func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		keyID:          cfg.KeyID,
		keySecret:      cfg.KeySecret,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		maxRetries:     uint64(cfg.MaxRetries),
		initialBackoff: cfg.InitialBackoff,
	}
}

func (c *Client) KeyID() string {
	return c.keyID
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateOrder 以 receipt 作为幂等键，重试不会在网关侧重复建单
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	body, err := json.Marshal(createOrderRequest{Amount: amount, Currency: currency, Receipt: receipt})
	if err != nil {
		return nil, err
	}

	var order Order
	err = c.do(ctx, "create_order", http.MethodPost, "/v1/orders", body, receipt, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := c.do(ctx, "fetch_order", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, "", &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("网关返回 %d: %s", e.status, e.body)
}

// do 指数退避重试：网络错误、5xx、429 重试；其余 4xx 直接失败
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, idempotencyKey string, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.roundTrip(ctx, method, path, body, idempotencyKey, out)
		if err == nil {
			return nil
		}

		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status < 500 && apiErr.status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		slog.Warn("网关调用失败，准备重试", "op", op, "attempt", attempt, "error", err)
		return err
	}

	err := backoff.Retry(operation, b)
	if err != nil {
		metrics.GatewayCalls.WithLabelValues(op, "error").Inc()
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status < 500 && apiErr.status != http.StatusTooManyRequests {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.GatewayCalls.WithLabelValues(op, "ok").Inc()
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, idempotencyKey string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("解析网关响应失败: %w", err))
	}
	return nil
}
