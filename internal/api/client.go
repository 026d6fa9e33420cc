package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the Gate service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Check(ctx context.Context, in *CheckRequest, opts ...grpc.CallOption) (*CheckResponse, error) {
	return invoke[CheckResponse](ctx, c, MethodCheck, in, opts)
}

func (c *Client) AddContact(ctx context.Context, in *AddContactRequest, opts ...grpc.CallOption) (*ContactResponse, error) {
	return invoke[ContactResponse](ctx, c, MethodAddContact, in, opts)
}

func (c *Client) UpdateContact(ctx context.Context, in *UpdateContactRequest, opts ...grpc.CallOption) (*ContactResponse, error) {
	return invoke[ContactResponse](ctx, c, MethodUpdateContact, in, opts)
}

func (c *Client) RemoveContact(ctx context.Context, in *RemoveContactRequest, opts ...grpc.CallOption) (*RemoveContactResponse, error) {
	return invoke[RemoveContactResponse](ctx, c, MethodRemoveContact, in, opts)
}

func (c *Client) ListContacts(ctx context.Context, in *ListContactsRequest, opts ...grpc.CallOption) (*ListContactsResponse, error) {
	return invoke[ListContactsResponse](ctx, c, MethodListContacts, in, opts)
}

func (c *Client) ListAuditLogs(ctx context.Context, in *ListAuditLogsRequest, opts ...grpc.CallOption) (*ListAuditLogsResponse, error) {
	return invoke[ListAuditLogsResponse](ctx, c, MethodListAuditLogs, in, opts)
}

func (c *Client) AuditStats(ctx context.Context, in *AuditStatsRequest, opts ...grpc.CallOption) (*AuditStatsResponse, error) {
	return invoke[AuditStatsResponse](ctx, c, MethodAuditStats, in, opts)
}

func (c *Client) ListDeadLetters(ctx context.Context, in *ListDeadLettersRequest, opts ...grpc.CallOption) (*ListDeadLettersResponse, error) {
	return invoke[ListDeadLettersResponse](ctx, c, MethodListDeadLetters, in, opts)
}

func (c *Client) RequeueDeadLetter(ctx context.Context, in *RequeueDeadLetterRequest, opts ...grpc.CallOption) (*RequeueDeadLetterResponse, error) {
	return invoke[RequeueDeadLetterResponse](ctx, c, MethodRequeueDeadLetter, in, opts)
}
