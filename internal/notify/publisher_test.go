package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/sendergate/internal/config"
	"github.com/and161185/sendergate/internal/dispatch"
	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
)

type submitted struct {
	kind    string
	payload any
}

type fakeSubmitter struct {
	got []submitted
	err error
}

func (f *fakeSubmitter) Submit(kind string, payload any) error {
	f.got = append(f.got, submitted{kind, payload})
	return f.err
}

func (f *fakeSubmitter) kinds() []string {
	out := make([]string, 0, len(f.got))
	for _, s := range f.got {
		out = append(out, s.kind)
	}
	return out
}

func TestPublisher_Decision(t *testing.T) {
	hooks := []*Webhook{
		NewWebhook(config.WebhookConfig{URL: "http://a", Events: []string{EventDecisionBlocked}}, nil),
		NewWebhook(config.WebhookConfig{URL: "http://b", Events: []string{EventContactAdded}}, nil),
		NewWebhook(config.WebhookConfig{URL: "http://c"}, nil),
	}
	sub := &fakeSubmitter{}
	p := NewPublisher(sub, hooks, true)

	req := model.CheckRequest{SenderID: "+1555", Channel: "sms", MessagePreview: "secret text"}
	require.NoError(t, p.Decision(req, model.CheckResult{Decision: model.DecisionBlocked, Reason: "unknown sender"}))
	require.Equal(t, []string{KindBlockedAlert, KindStream, KindWebhook, KindWebhook}, sub.kinds())

	wt := sub.got[2].payload.(WebhookTask)
	require.Equal(t, 0, wt.Webhook)
	require.Equal(t, 2, sub.got[3].payload.(WebhookTask).Webhook)

	raw, err := json.Marshal(wt.Event)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret text")

	sub.got = nil
	require.NoError(t, p.Decision(req, model.CheckResult{Decision: model.DecisionAllowed, TrustLevel: model.TrustTrusted}))
	require.Equal(t, []string{KindStream, KindWebhook}, sub.kinds())
}

func TestPublisher_ContactChanged(t *testing.T) {
	hooks := []*Webhook{NewWebhook(config.WebhookConfig{URL: "http://b", Events: []string{EventContactUpdated}}, nil)}
	sub := &fakeSubmitter{}
	p := NewPublisher(sub, hooks, true)

	c := model.Contact{ID: uuid.Must(uuid.NewV4()), SenderID: "+1555", TrustLevel: model.TrustBlocked}
	require.NoError(t, p.ContactChanged(model.ActionContactUpdated, c, model.TrustTrusted, "root"))
	require.Equal(t, []string{KindContactChange, KindWebhook}, sub.kinds())

	e := sub.got[0].payload.(Event)
	require.Equal(t, EventContactUpdated, e.Type)
	require.Equal(t, "trusted", e.PreviousTrust)
	require.Equal(t, "root", e.Actor)
}

func TestPublisher_DispatchUnavailable(t *testing.T) {
	sub := &fakeSubmitter{err: errs.ErrDispatchUnavailable}
	p := NewPublisher(sub, nil, false)

	err := p.Decision(model.CheckRequest{SenderID: "x"}, model.CheckResult{Decision: model.DecisionBlocked})
	require.ErrorIs(t, err, errs.ErrDispatchUnavailable)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type fakeLimiter struct {
	allow  bool
	resets []string
}

func (l *fakeLimiter) Allow(context.Context, string, string) (bool, error) { return l.allow, nil }

func (l *fakeLimiter) Reset(_ context.Context, sender, _ string) error {
	l.resets = append(l.resets, sender)
	return nil
}

type specs map[string]dispatch.Spec

func (s specs) Register(kind string, spec dispatch.Spec) { s[kind] = spec }

func payload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandlers_BlockedAlertThrottle(t *testing.T) {
	op := &recordingSink{}
	lim := &fakeLimiter{allow: true}
	reg := specs{}
	Handlers{Operator: op, Limiter: lim, Log: zaptest.NewLogger(t)}.Register(reg)

	h := reg[KindBlockedAlert]
	require.Equal(t, dispatch.FireAndForget, h.Class)
	require.NoError(t, h.Handler(context.Background(), payload(t, blockedEvent)))
	require.Len(t, op.events, 1)

	lim.allow = false
	require.NoError(t, h.Handler(context.Background(), payload(t, blockedEvent)))
	require.Len(t, op.events, 1, "throttled alert is not sent")

	_, ok := reg[KindStream]
	require.False(t, ok, "stream is not registered without a sink")
}

func TestHandlers_ContactChangeResetsThrottle(t *testing.T) {
	op := &recordingSink{}
	lim := &fakeLimiter{}
	reg := specs{}
	Handlers{Operator: op, Limiter: lim, Log: zaptest.NewLogger(t)}.Register(reg)

	e := Event{Type: EventContactAdded, SenderID: "+1555"}
	require.NoError(t, reg[KindContactChange].Handler(context.Background(), payload(t, e)))
	require.Equal(t, []string{"+1555"}, lim.resets)
	require.Len(t, op.events, 1)
}

func TestHandlers_WebhookAndStream(t *testing.T) {
	stream := &recordingSink{}
	reg := specs{}
	Handlers{
		Operator:          &recordingSink{},
		Stream:            stream,
		Webhooks:          []*Webhook{NewWebhook(config.WebhookConfig{URL: "http://127.0.0.1:1"}, nil)},
		WebhookMaxRetries: 5,
		Log:               zaptest.NewLogger(t),
	}.Register(reg)

	require.Equal(t, dispatch.Retriable, reg[KindStream].Class)
	require.NoError(t, reg[KindStream].Handler(context.Background(), payload(t, blockedEvent)))
	require.Len(t, stream.events, 1)

	wh := reg[KindWebhook]
	require.Equal(t, 5, wh.MaxRetries)
	err := wh.Handler(context.Background(), payload(t, WebhookTask{Webhook: 3, Event: blockedEvent}))
	require.True(t, errs.IsPermanent(err), "unknown webhook index")

	err = wh.Handler(context.Background(), []byte("{"))
	require.True(t, errs.IsPermanent(err))
}
