package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookPublisher posts each event as JSON to a fixed URL.
type WebhookPublisher struct {
	url  string
	http *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

func NewWebhookPublisher(url string) *WebhookPublisher {
	return &WebhookPublisher{
		url: url,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(3 * time.Second).
			AddRetryCondition(isRetryableResp),
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event", ev.Event).
		SetHeader("X-Correlation-ID", ev.CorrelationID).
		SetBody(payload).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", ev.Event, err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s: HTTP %d: %s", ev.Event, resp.StatusCode(), resp.String())
	}
	return nil
}
