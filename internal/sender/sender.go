package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/edvin/outreach/internal/model"
)

// Result is the send API's answer for one message.
type Result struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// Client posts messages to the external send API. Requests are rate limited
// across all goroutines sharing the client.
type Client struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a send API client. A ratePerSecond of zero or less
// disables rate limiting.
func NewClient(url, apiKey string, timeout time.Duration, ratePerSecond float64) *Client {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &Client{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Send delivers one message. Provider rejections and transport failures are
// returned as *model.DeliveryError; context cancellation is returned as is.
func (c *Client) Send(ctx context.Context, contact, content string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for send rate limit: %w", err)
	}

	body, err := json.Marshal(sendRequest{To: contact, Content: content})
	if err != nil {
		return nil, &model.DeliveryError{Contact: contact, Reason: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &model.DeliveryError{Contact: contact, Reason: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &model.DeliveryError{Contact: contact, Reason: fmt.Sprintf("POST %s: %v", c.url, err)}
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	var res Result
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&res)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := fmt.Sprintf("send API returned %d", resp.StatusCode)
		if decodeErr == nil && res.Error != "" {
			reason += ": " + res.Error
		}
		return nil, &model.DeliveryError{Contact: contact, Reason: reason}
	}
	if decodeErr != nil {
		return nil, &model.DeliveryError{Contact: contact, Reason: fmt.Sprintf("decode response: %v", decodeErr)}
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "rejected by provider"
		}
		return &res, &model.DeliveryError{Contact: contact, Reason: reason}
	}
	return &res, nil
}
