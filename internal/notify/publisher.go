package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/sendergate/internal/model"
)

// Task kinds registered by Handlers.
const (
	KindBlockedAlert  = "notify.blocked"
	KindContactChange = "notify.contact"
	KindStream        = "stream.decision"
	KindWebhook       = "webhook.deliver"
)

// Submitter accepts tasks without blocking.
type Submitter interface {
	Submit(kind string, payload any) error
}

// WebhookTask is the payload of a webhook.deliver task.
type WebhookTask struct {
	Webhook int   `json:"webhook"` // index into the configured webhooks
	Event   Event `json:"event"`
}

// Publisher fans one event out into dispatcher tasks.
type Publisher struct {
	sub      Submitter
	webhooks []*Webhook
	stream   bool
	now      func() time.Time
}

// NewPublisher constructs a Publisher. stream enables stream.decision tasks.
func NewPublisher(sub Submitter, webhooks []*Webhook, stream bool) *Publisher {
	return &Publisher{sub: sub, webhooks: webhooks, stream: stream, now: time.Now}
}

// Decision submits the side effects of one check. The returned error joins
// every failed submission; errs.ErrDispatchUnavailable means the task was
// kept in the dispatcher backlog.
func (p *Publisher) Decision(req model.CheckRequest, res model.CheckResult) error {
	e := DecisionEvent(req, res, p.now())
	var out []error
	if res.Decision == model.DecisionBlocked {
		out = append(out, p.submit(KindBlockedAlert, e))
	}
	if p.stream {
		out = append(out, p.submit(KindStream, e))
	}
	out = append(out, p.fanOut(e)...)
	return errors.Join(out...)
}

// ContactChanged submits the side effects of one registry mutation.
func (p *Publisher) ContactChanged(action model.Action, c model.Contact, previous model.TrustLevel, actor string) error {
	e := ContactEvent(action, c, previous, actor, p.now())
	out := []error{p.submit(KindContactChange, e)}
	out = append(out, p.fanOut(e)...)
	return errors.Join(out...)
}

func (p *Publisher) fanOut(e Event) []error {
	var out []error
	for i, w := range p.webhooks {
		if w.Accepts(e.Type) {
			out = append(out, p.submit(KindWebhook, WebhookTask{Webhook: i, Event: e}))
		}
	}
	return out
}

func (p *Publisher) submit(kind string, payload any) error {
	if err := p.sub.Submit(kind, payload); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}
