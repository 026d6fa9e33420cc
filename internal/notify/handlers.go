package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/dispatch"
	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/limiter"
)

// Registrar is implemented by *dispatch.Dispatcher.
type Registrar interface {
	Register(kind string, spec dispatch.Spec)
}

// Handlers executes notification tasks.
type Handlers struct {
	Operator          Sink            // blocked-sender and registry alerts
	Limiter           limiter.Limiter // throttles blocked-sender alerts; nil disables
	Stream            Sink            // decision stream; nil disables
	Webhooks          []*Webhook
	WebhookMaxRetries int
	Log               *zap.Logger
}

// Register binds every notification task kind on r.
func (h Handlers) Register(r Registrar) {
	r.Register(KindBlockedAlert, dispatch.Spec{Class: dispatch.FireAndForget, Handler: h.blockedAlert})
	r.Register(KindContactChange, dispatch.Spec{Class: dispatch.FireAndForget, Handler: h.contactChange})
	if h.Stream != nil {
		r.Register(KindStream, dispatch.Spec{Class: dispatch.Retriable, Handler: h.stream})
	}
	if len(h.Webhooks) > 0 {
		r.Register(KindWebhook, dispatch.Spec{
			Class:      dispatch.Retriable,
			MaxRetries: h.WebhookMaxRetries,
			Handler:    h.webhook,
		})
	}
}

func decodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, errs.Permanent(fmt.Errorf("decode event: %w", err))
	}
	return e, nil
}

func (h Handlers) blockedAlert(ctx context.Context, payload []byte) error {
	e, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	if h.Limiter != nil {
		ok, err := h.Limiter.Allow(ctx, e.SenderID, e.Channel)
		if err != nil {
			h.Log.Warn("throttle check failed, alerting anyway", zap.String("sender_id", e.SenderID), zap.Error(err))
		} else if !ok {
			h.Log.Debug("blocked-sender alert throttled", zap.String("sender_id", e.SenderID), zap.String("channel", e.Channel))
			return nil
		}
	}
	return h.Operator.Send(ctx, e)
}

func (h Handlers) contactChange(ctx context.Context, payload []byte) error {
	e, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	if h.Limiter != nil && e.Type != EventContactRemoved {
		if err := h.Limiter.Reset(ctx, e.SenderID, e.Channel); err != nil {
			h.Log.Warn("reset alert throttle failed", zap.String("sender_id", e.SenderID), zap.Error(err))
		}
	}
	return h.Operator.Send(ctx, e)
}

func (h Handlers) stream(ctx context.Context, payload []byte) error {
	e, err := decodeEvent(payload)
	if err != nil {
		return err
	}
	return h.Stream.Send(ctx, e)
}

func (h Handlers) webhook(ctx context.Context, payload []byte) error {
	var t WebhookTask
	if err := json.Unmarshal(payload, &t); err != nil {
		return errs.Permanent(fmt.Errorf("decode webhook task: %w", err))
	}
	if t.Webhook < 0 || t.Webhook >= len(h.Webhooks) {
		return errs.Permanent(fmt.Errorf("webhook %d is not configured", t.Webhook))
	}
	return h.Webhooks[t.Webhook].Send(ctx, t.Event)
}
