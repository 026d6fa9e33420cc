package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sendergate.v1.Gate"

// Method names.
const (
	MethodCheck             = "Check"
	MethodAddContact        = "AddContact"
	MethodUpdateContact     = "UpdateContact"
	MethodRemoveContact     = "RemoveContact"
	MethodListContacts      = "ListContacts"
	MethodListAuditLogs     = "ListAuditLogs"
	MethodAuditStats        = "AuditStats"
	MethodListDeadLetters   = "ListDeadLetters"
	MethodRequeueDeadLetter = "RequeueDeadLetter"
)

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// GateServer is implemented by the server.
type GateServer interface {
	Check(context.Context, *CheckRequest) (*CheckResponse, error)
	AddContact(context.Context, *AddContactRequest) (*ContactResponse, error)
	UpdateContact(context.Context, *UpdateContactRequest) (*ContactResponse, error)
	RemoveContact(context.Context, *RemoveContactRequest) (*RemoveContactResponse, error)
	ListContacts(context.Context, *ListContactsRequest) (*ListContactsResponse, error)
	ListAuditLogs(context.Context, *ListAuditLogsRequest) (*ListAuditLogsResponse, error)
	AuditStats(context.Context, *AuditStatsRequest) (*AuditStatsResponse, error)
	ListDeadLetters(context.Context, *ListDeadLettersRequest) (*ListDeadLettersResponse, error)
	RequeueDeadLetter(context.Context, *RequeueDeadLetterRequest) (*RequeueDeadLetterResponse, error)
}

// ServiceDesc describes the Gate service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GateServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCheck, GateServer.Check),
		unary(MethodAddContact, GateServer.AddContact),
		unary(MethodUpdateContact, GateServer.UpdateContact),
		unary(MethodRemoveContact, GateServer.RemoveContact),
		unary(MethodListContacts, GateServer.ListContacts),
		unary(MethodListAuditLogs, GateServer.ListAuditLogs),
		unary(MethodAuditStats, GateServer.AuditStats),
		unary(MethodListDeadLetters, GateServer.ListDeadLetters),
		unary(MethodRequeueDeadLetter, GateServer.RequeueDeadLetter),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sendergate/v1/gate",
}

// RegisterGateServer registers srv on s.
func RegisterGateServer(s grpc.ServiceRegistrar, srv GateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(GateServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GateServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(GateServer), ctx, req.(*Req))
			})
		},
	}
}
