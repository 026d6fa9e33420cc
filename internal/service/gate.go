package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/repository"
)

// Reasons returned by Check.
const (
	ReasonUnknownSender = "unknown sender — not in whitelist"
	ReasonDegraded      = "resolver unavailable - treat as blocked"
)

// GateService decides whether a message may reach the agent.
type GateService interface {
	// Check resolves the sender and returns a decision. When the registry is
	// unreachable the result is blocked and degraded, and the error wraps
	// errs.ErrResolverUnavailable.
	Check(ctx context.Context, req model.CheckRequest) (model.CheckResult, error)
}

type GateServiceImpl struct {
	contacts       repository.ContactRepository
	audit          AuditService
	events         Events
	resolveTimeout time.Duration
	log            *zap.Logger
}

// NewGateService constructs GateService.
func NewGateService(contacts repository.ContactRepository, audit AuditService, events Events, resolveTimeout time.Duration, log *zap.Logger) *GateServiceImpl {
	if resolveTimeout <= 0 {
		resolveTimeout = 2 * time.Second
	}
	return &GateServiceImpl{
		contacts:       contacts,
		audit:          audit,
		events:         events,
		resolveTimeout: resolveTimeout,
		log:            log.Named("gate"),
	}
}

func (s *GateServiceImpl) Check(ctx context.Context, req model.CheckRequest) (model.CheckResult, error) {
	senderID, channel, err := normalizeScope(req.SenderID, req.Channel)
	if err != nil {
		return model.CheckResult{}, err
	}
	req.SenderID, req.Channel = senderID, channel
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return model.CheckResult{}, fmt.Errorf("%w: metadata is not valid JSON", errs.ErrInvalidArgument)
	}

	rctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	c, rerr := s.contacts.Resolve(rctx, senderID, channel)
	cancel()

	var res model.CheckResult
	switch {
	case rerr == nil:
		res = resultFor(c)
	case errors.Is(rerr, errs.ErrNotFound):
		res = model.CheckResult{Decision: model.DecisionBlocked, TrustLevel: model.TrustBlocked, Reason: ReasonUnknownSender}
	default:
		return s.degraded(ctx, req, rerr)
	}

	// From here on the decision is made; audit and dispatch outlive the caller.
	entry := decisionEntry(req, res)
	if id, err := s.audit.Record(ctx, entry); err == nil {
		res.AuditID = id
	}
	s.publish(req, res)
	return res, nil
}

func (s *GateServiceImpl) degraded(ctx context.Context, req model.CheckRequest, cause error) (model.CheckResult, error) {
	res := model.CheckResult{
		Decision:   model.DecisionBlocked,
		TrustLevel: model.TrustBlocked,
		Reason:     ReasonDegraded,
		Degraded:   true,
	}
	s.log.Error("resolver unavailable, failing closed",
		zap.String("sender_id", req.SenderID),
		zap.String("channel", req.Channel),
		zap.Error(cause),
	)

	entry := decisionEntry(req, res)
	go func(ctx context.Context) {
		_, _ = s.audit.Record(ctx, entry)
	}(context.WithoutCancel(ctx))
	s.publish(req, res)

	return res, fmt.Errorf("%w: %v", errs.ErrResolverUnavailable, cause)
}

func (s *GateServiceImpl) publish(req model.CheckRequest, res model.CheckResult) {
	err := s.events.Decision(req, res)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrDispatchUnavailable):
		s.log.Warn("dispatcher saturated, decision event kept in backlog", zap.String("sender_id", req.SenderID), zap.Error(err))
	default:
		s.log.Error("decision event not dispatched", zap.String("sender_id", req.SenderID), zap.Error(err))
	}
}

func resultFor(c *model.Contact) model.CheckResult {
	d := model.DecisionFor(c.TrustLevel)
	reason := fmt.Sprintf("%s contact (%s)", c.TrustLevel, scopeName(c.Channel))
	if d == model.DecisionLimited {
		reason += ", no actions permitted"
	}
	return model.CheckResult{
		Decision:    d,
		TrustLevel:  c.TrustLevel,
		Reason:      reason,
		ContactID:   uuid.NullUUID{UUID: c.ID, Valid: true},
		ContactName: c.Name,
		MatchedOn:   c.Channel,
	}
}

func decisionEntry(req model.CheckRequest, res model.CheckResult) model.AuditEntry {
	meta := map[string]any{"trust_level": res.TrustLevel.String()}
	if res.ContactID.Valid {
		meta["matched_on"] = scopeName(res.MatchedOn)
	}
	if res.Degraded {
		meta["degraded"] = true
	}
	if len(req.Metadata) > 0 {
		meta["request"] = req.Metadata
	}
	raw, _ := json.Marshal(meta)
	return model.AuditEntry{
		Action:         res.Decision.Action(),
		SenderID:       req.SenderID,
		Channel:        req.Channel,
		ContactID:      res.ContactID,
		MessagePreview: req.MessagePreview,
		Reason:         res.Reason,
		Metadata:       raw,
	}
}
