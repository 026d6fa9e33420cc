package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/and161185/sendergate/internal/cache"
	"github.com/and161185/sendergate/internal/dispatch"
	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/notify"
	"github.com/and161185/sendergate/internal/repository"
)

// KindAuditReplay re-inserts audit entries whose synchronous write failed.
const KindAuditReplay = "audit.replay"

// AuditService records and serves the audit trail.
type AuditService interface {
	// Record appends an entry within the write timeout. A failed write is
	// logged, counted and queued for replay; the error is still returned.
	Record(ctx context.Context, e model.AuditEntry) (int64, error)
	// Query returns entries newest first.
	Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)
	// Stats returns counts per action, from the cache unless fresh is set.
	Stats(ctx context.Context, fresh bool) (model.AuditStats, error)
	// RefreshStats recomputes the stats and stores them in the cache.
	RefreshStats(ctx context.Context) (model.AuditStats, error)
	// Prune deletes entries older than the retention horizon.
	Prune(ctx context.Context) (int64, error)
}

// AuditOptions configures AuditServiceImpl.
type AuditOptions struct {
	RetentionDays int
	StatsWindow   time.Duration // 0 aggregates every entry
	StatsInterval time.Duration // cache TTL
	WriteTimeout  time.Duration
	PreviewMax    int // runes; 0 drops previews
}

type AuditServiceImpl struct {
	repo     repository.AuditRepository
	cache    cache.StatsCache
	sub      notify.Submitter
	opts     AuditOptions
	log      *zap.Logger
	now      func() time.Time
	failures atomic.Int64
}

// NewAuditService constructs AuditService. sub receives audit.replay tasks.
func NewAuditService(repo repository.AuditRepository, c cache.StatsCache, sub notify.Submitter, opts AuditOptions, log *zap.Logger) *AuditServiceImpl {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Hour
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	return &AuditServiceImpl{repo: repo, cache: c, sub: sub, opts: opts, log: log.Named("audit"), now: time.Now}
}

// Failures reports how many synchronous audit writes have failed.
func (s *AuditServiceImpl) Failures() int64 { return s.failures.Load() }

// Record appends e. The write is detached from caller cancellation.
func (s *AuditServiceImpl) Record(ctx context.Context, e model.AuditEntry) (int64, error) {
	e.MessagePreview = truncateRunes(e.MessagePreview, s.opts.PreviewMax)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	id, _, err := s.repo.Insert(wctx, e)
	if err == nil {
		return id, nil
	}

	s.failures.Add(1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.log.Error("audit write failed",
		zap.String("action", string(e.Action)),
		zap.String("sender_id", e.SenderID),
		zap.String("channel", e.Channel),
		zap.String("reason", e.Reason),
		zap.Time("at", e.CreatedAt),
		zap.Error(err),
	)
	if serr := s.sub.Submit(KindAuditReplay, toReplay(e)); serr != nil {
		s.log.Error("audit replay not queued", zap.String("sender_id", e.SenderID), zap.Error(serr))
	}
	return 0, fmt.Errorf("audit: record: %w", err)
}

func (s *AuditServiceImpl) Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit/offset", errs.ErrInvalidArgument)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return nil, fmt.Errorf("%w: until must be after since", errs.ErrInvalidArgument)
	}
	return s.repo.Query(ctx, f)
}

func (s *AuditServiceImpl) Stats(ctx context.Context, fresh bool) (model.AuditStats, error) {
	if !fresh && s.cache != nil {
		st, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn("stats cache read failed", zap.Error(err))
		} else if ok {
			return st, nil
		}
	}
	return s.RefreshStats(ctx)
}

func (s *AuditServiceImpl) RefreshStats(ctx context.Context) (model.AuditStats, error) {
	now := s.now().UTC()
	var since time.Time
	if s.opts.StatsWindow > 0 {
		since = now.Add(-s.opts.StatsWindow)
	}
	counts, err := s.repo.CountByAction(ctx, since)
	if err != nil {
		return model.AuditStats{}, fmt.Errorf("audit: stats: %w", err)
	}
	st := model.AuditStats{ByAction: make(map[model.Action]int64, len(model.Actions)), Window: s.opts.StatsWindow, GeneratedAt: now}
	for _, a := range model.Actions {
		st.ByAction[a] = counts[a]
		st.Total += counts[a]
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, st, s.opts.StatsInterval); err != nil {
			s.log.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return st, nil
}

func (s *AuditServiceImpl) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.opts.RetentionDays)
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	s.log.Info("audit retention applied", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// RegisterReplay binds the audit.replay task kind on r.
func (s *AuditServiceImpl) RegisterReplay(r notify.Registrar) {
	r.Register(KindAuditReplay, dispatch.Spec{Class: dispatch.Retriable, Handler: s.replay})
}

// replay inserts an entry that failed its synchronous write. A duplicate row is
// possible when the first insert committed after its timeout fired.
func (s *AuditServiceImpl) replay(ctx context.Context, payload []byte) error {
	var r replayEntry
	if err := json.Unmarshal(payload, &r); err != nil {
		return errs.Permanent(fmt.Errorf("decode audit entry: %w", err))
	}
	e, err := r.entry()
	if err != nil {
		return errs.Permanent(err)
	}
	id, _, err := s.repo.Insert(ctx, e)
	if err != nil {
		return err
	}
	s.log.Info("audit entry replayed", zap.Int64("id", id), zap.String("sender_id", r.SenderID))
	return nil
}

type replayEntry struct {
	Action         model.Action    `json:"action"`
	SenderID       string          `json:"sender_id"`
	Channel        string          `json:"channel,omitempty"`
	ContactID      string          `json:"contact_id,omitempty"`
	MessagePreview string          `json:"message_preview,omitempty"`
	Reason         string          `json:"reason"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toReplay(e model.AuditEntry) replayEntry {
	r := replayEntry{
		Action:         e.Action,
		SenderID:       e.SenderID,
		Channel:        e.Channel,
		MessagePreview: e.MessagePreview,
		Reason:         e.Reason,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
	if e.ContactID.Valid {
		r.ContactID = e.ContactID.UUID.String()
	}
	return r
}

func (r replayEntry) entry() (model.AuditEntry, error) {
	e := model.AuditEntry{
		Action:         r.Action,
		SenderID:       r.SenderID,
		Channel:        r.Channel,
		MessagePreview: r.MessagePreview,
		Reason:         r.Reason,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
	}
	if r.ContactID != "" {
		if err := e.ContactID.Scan(r.ContactID); err != nil {
			return model.AuditEntry{}, fmt.Errorf("audit entry contact_id %q: %w", r.ContactID, err)
		}
	}
	return e, nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
