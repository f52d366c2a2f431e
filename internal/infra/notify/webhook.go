// Package notify delivers run summaries to chat or incident webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

// Target is one webhook destination. An empty Channel receives every
// channel.
type Target struct {
	Channel string            `yaml:"channel" json:"channel"`
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic" or "slack"
	Headers map[string]string `yaml:"headers" json:"headers"`
}

type Message struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	Source    string `json:"source"`
}

type Webhook struct {
	targets []Target
	client  *http.Client
	backoff time.Duration
	now     func() time.Time
}

func NewWebhook(targets []Target) *Webhook {
	return &Webhook{
		targets: targets,
		client:  &http.Client{Timeout: requestTimeout},
		backoff: time.Second,
		now:     time.Now,
	}
}

// Notify posts message to every target subscribed to channel. All targets
// are attempted; the joined error reports the ones that failed.
func (w *Webhook) Notify(ctx context.Context, message, channel string) error {
	msg := Message{
		Timestamp: w.now().UTC().Format(time.RFC3339),
		Channel:   channel,
		Text:      message,
		Source:    "creaturegrc",
	}
	var errs []error
	for _, t := range w.targets {
		if t.Channel != "" && t.Channel != channel {
			continue
		}
		if err := w.send(ctx, t, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) send(ctx context.Context, t Target, msg Message) error {
	body, err := formatPayload(t.Format, msg)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range t.Headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		}
		lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}

func formatPayload(format string, msg Message) ([]byte, error) {
	switch format {
	case "slack":
		return json.Marshal(map[string]any{
			"text": msg.Text,
			"blocks": []any{
				map[string]any{
					"type": "section",
					"text": map[string]any{"type": "mrkdwn", "text": msg.Text},
				},
				map[string]any{
					"type": "context",
					"elements": []any{
						map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Channel:* %s", msg.Channel)},
					},
				},
			},
		})
	default:
		return json.Marshal(msg)
	}
}

// Log writes notifications to the process log. Used when no webhook is
// configured.
type Log struct{}

func (Log) Notify(_ context.Context, message, channel string) error {
	log.Printf("notify [%s]: %s", channel, message)
	return nil
}
