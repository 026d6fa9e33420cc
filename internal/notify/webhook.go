package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/and161185/sendergate/internal/config"
	"github.com/and161185/sendergate/internal/errs"
)

const webhookTimeout = 10 * time.Second

// Webhook posts events as JSON to an HTTP endpoint.
type Webhook struct {
	url        string
	format     string
	routingKey string
	headers    map[string]string
	events     map[string]bool // nil accepts every event
	client     *http.Client
}

// NewWebhook builds a webhook sink. A nil client gets a 10s timeout client.
func NewWebhook(cfg config.WebhookConfig, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	w := &Webhook{
		url:        cfg.URL,
		format:     cfg.Format,
		routingKey: cfg.RoutingKey,
		headers:    cfg.Headers,
		client:     client,
	}
	if w.format == "" {
		w.format = "generic"
	}
	if len(cfg.Events) > 0 {
		w.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			w.events[e] = true
		}
	}
	return w
}

// Accepts reports whether the webhook subscribes to the event type.
func (w *Webhook) Accepts(eventType string) bool {
	return w.events == nil || w.events[eventType]
}

// Send posts e. Client errors and malformed targets are permanent; server
// errors, throttling and network failures are transient.
func (w *Webhook) Send(ctx context.Context, e Event) error {
	u, err := url.Parse(w.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Permanent(fmt.Errorf("webhook: bad url %q", w.url))
	}
	body, err := w.encode(e)
	if err != nil {
		return errs.Permanent(fmt.Errorf("webhook: encode: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errs.Permanent(fmt.Errorf("webhook: request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "sendergate")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errs.Transient(fmt.Errorf("webhook: post: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return errs.Transient(fmt.Errorf("webhook: status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.Permanent(fmt.Errorf("webhook: status %d", resp.StatusCode))
	default:
		return errs.Transient(fmt.Errorf("webhook: status %d", resp.StatusCode))
	}
}

func (w *Webhook) encode(e Event) ([]byte, error) {
	switch w.format {
	case "slack":
		return json.Marshal(map[string]string{"text": e.Summary()})
	case "pagerduty":
		severity := "info"
		if e.Type == EventDecisionBlocked {
			severity = "warning"
		}
		return json.Marshal(pagerDutyEvent{
			RoutingKey:  w.routingKey,
			EventAction: "trigger",
			DedupKey:    fmt.Sprintf("%s:%s:%s:%d", e.Type, e.SenderID, e.Channel, e.At.Unix()),
			Payload: pagerDutyPayload{
				Summary:       e.Summary(),
				Source:        "sendergate",
				Severity:      severity,
				Timestamp:     e.At.Format(time.RFC3339),
				CustomDetails: e,
			},
		})
	default:
		return json.Marshal(e)
	}
}

type pagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Payload     pagerDutyPayload `json:"payload"`
}

type pagerDutyPayload struct {
	Summary       string `json:"summary"`
	Source        string `json:"source"`
	Severity      string `json:"severity"`
	Timestamp     string `json:"timestamp"`
	CustomDetails Event  `json:"custom_details"`
}
