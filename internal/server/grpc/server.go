// Package grpcserver exposes the sendergate.v1.Gate gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/sendergate/internal/api"
	"github.com/and161185/sendergate/internal/convert"
	"github.com/and161185/sendergate/internal/errs"
	"github.com/and161185/sendergate/internal/model"
	"github.com/and161185/sendergate/internal/service"
)

// DeadLetters exposes the dispatcher's dead-letter sink.
type DeadLetters interface {
	DeadLetters(ctx context.Context, limit, offset int) ([]model.Task, error)
	Requeue(ctx context.Context, id uuid.UUID) error
}

// Server wires services into gRPC handlers.
type Server struct {
	gate  service.GateService
	admin service.AdminService
	audit service.AuditService
	dead  DeadLetters
	log   *zap.Logger
}

var _ api.GateServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(gate service.GateService, admin service.AdminService, audit service.AuditService, dead DeadLetters, log *zap.Logger) *Server {
	return &Server{gate: gate, admin: admin, audit: audit, dead: dead, log: log}
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "no auth")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func actor(ctx context.Context) string {
	if c, ok := CallerFromCtx(ctx); ok {
		return c.Subject
	}
	return ""
}

// --- Decision ---

// Check evaluates one inbound message. A resolver outage is reported in the
// response as a degraded blocked decision, not as an RPC error.
func (s *Server) Check(ctx context.Context, req *api.CheckRequest) (*api.CheckResponse, error) {
	res, err := s.gate.Check(ctx, convert.FromCheckRequest(req))
	if err != nil && !errors.Is(err, errs.ErrResolverUnavailable) {
		return nil, toStatus("check", err)
	}
	return convert.ToCheckResponse(res), nil
}

// --- Contacts ---

// AddContact creates a contact at the requested scope.
func (s *Server) AddContact(ctx context.Context, req *api.AddContactRequest) (*api.ContactResponse, error) {
	in, err := convert.FromAddContact(req)
	if err != nil {
		return nil, toStatus("add contact", err)
	}
	c, err := s.admin.AddContact(ctx, actor(ctx), in)
	if err != nil {
		return nil, toStatus("add contact", err)
	}
	return &api.ContactResponse{Contact: convert.ToContact(*c)}, nil
}

// UpdateContact patches the contact at the exact scope.
func (s *Server) UpdateContact(ctx context.Context, req *api.UpdateContactRequest) (*api.ContactResponse, error) {
	patch, err := convert.FromUpdateContact(req)
	if err != nil {
		return nil, toStatus("update contact", err)
	}
	c, err := s.admin.UpdateContact(ctx, actor(ctx), req.SenderID, req.Channel, patch)
	if err != nil {
		return nil, toStatus("update contact", err)
	}
	return &api.ContactResponse{Contact: convert.ToContact(*c)}, nil
}

// RemoveContact deletes the contact at the exact scope.
func (s *Server) RemoveContact(ctx context.Context, req *api.RemoveContactRequest) (*api.RemoveContactResponse, error) {
	if err := s.admin.RemoveContact(ctx, actor(ctx), req.SenderID, req.Channel); err != nil {
		return nil, toStatus("remove contact", err)
	}
	return &api.RemoveContactResponse{}, nil
}

func (s *Server) ListContacts(ctx context.Context, req *api.ListContactsRequest) (*api.ListContactsResponse, error) {
	f, err := convert.FromListContacts(req)
	if err != nil {
		return nil, toStatus("list contacts", err)
	}
	cs, err := s.admin.ListContacts(ctx, f)
	if err != nil {
		return nil, toStatus("list contacts", err)
	}
	return &api.ListContactsResponse{Contacts: convert.ToContacts(cs)}, nil
}

// --- Audit ---

func (s *Server) ListAuditLogs(ctx context.Context, req *api.ListAuditLogsRequest) (*api.ListAuditLogsResponse, error) {
	f, err := convert.FromListAuditLogs(req)
	if err != nil {
		return nil, toStatus("list audit logs", err)
	}
	es, err := s.audit.Query(ctx, f)
	if err != nil {
		return nil, toStatus("list audit logs", err)
	}
	return &api.ListAuditLogsResponse{Entries: convert.ToAuditEntries(es)}, nil
}

func (s *Server) AuditStats(ctx context.Context, req *api.AuditStatsRequest) (*api.AuditStatsResponse, error) {
	st, err := s.audit.Stats(ctx, req.Fresh)
	if err != nil {
		return nil, toStatus("audit stats", err)
	}
	return convert.ToAuditStats(st), nil
}

// --- Dead letters ---

func (s *Server) ListDeadLetters(ctx context.Context, req *api.ListDeadLettersRequest) (*api.ListDeadLettersResponse, error) {
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative limit/offset")
	}
	ts, err := s.dead.DeadLetters(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus("list dead letters", err)
	}
	return &api.ListDeadLettersResponse{Tasks: convert.ToDeadLetters(ts)}, nil
}

// RequeueDeadLetter gives a dead task a fresh attempt budget.
func (s *Server) RequeueDeadLetter(ctx context.Context, req *api.RequeueDeadLetterRequest) (*api.RequeueDeadLetterResponse, error) {
	id, err := convert.ParseTaskID(req.ID)
	if err != nil {
		return nil, toStatus("requeue", err)
	}
	if err := s.dead.Requeue(ctx, id); err != nil {
		return nil, toStatus("requeue", err)
	}
	s.log.Info("dead letter requeued", zap.String("task_id", id.String()), zap.String("by", actor(ctx)))
	return &api.RequeueDeadLetterResponse{}, nil
}
