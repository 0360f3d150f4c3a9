package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	alarms "github.com/ericmeyer1/buzzline-06-meyer/internal/alarms/domain"
)

// Channel delivers rendered notification content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// AlarmChannel is a Channel that also carries the alarm record next to the
// rendered content. The notifier prefers it when a channel implements it.
type AlarmChannel interface {
	Channel
	SendAlarm(ctx context.Context, alarm alarms.AnomalyAlarm, content string) error
}

type webhookPayload struct {
	MsgType   string               `json:"msgtype"`
	Text      webhookText          `json:"text"`
	MachineID int                  `json:"machine_id,omitempty"`
	Severity  string               `json:"severity,omitempty"`
	Alarm     *alarms.AnomalyAlarm `json:"alarm,omitempty"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookChannel posts notifications to a chat webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Send posts the content as a text message.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	return w.post(ctx, webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	})
}

// SendAlarm posts the content with the machine id, severity and full alarm
// record as structured fields.
func (w *WebhookChannel) SendAlarm(ctx context.Context, alarm alarms.AnomalyAlarm, content string) error {
	return w.post(ctx, webhookPayload{
		MsgType:   "text",
		Text:      webhookText{Content: content},
		MachineID: alarm.MachineID,
		Severity:  alarm.Severity,
		Alarm:     &alarm,
	})
}

func (w *WebhookChannel) post(ctx context.Context, payload webhookPayload) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook channel: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
