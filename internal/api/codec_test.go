package api

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	b, err := c.Marshal(&CheckRequest{SenderID: "+1555", Channel: "sms"})
	require.NoError(t, err)
	require.JSONEq(t, `{"sender_id":"+1555","channel":"sms"}`, string(b))

	var got CheckRequest
	require.NoError(t, c.Unmarshal(b, &got))
	require.Equal(t, "+1555", got.SenderID)
}

func TestServiceDesc(t *testing.T) {
	require.Equal(t, "/sendergate.v1.Gate/Check", FullMethod(MethodCheck))
	names := make([]string, 0, len(ServiceDesc.Methods))
	for _, m := range ServiceDesc.Methods {
		names = append(names, m.MethodName)
	}
	require.ElementsMatch(t, []string{
		MethodCheck, MethodAddContact, MethodUpdateContact, MethodRemoveContact, MethodListContacts,
		MethodListAuditLogs, MethodAuditStats, MethodListDeadLetters, MethodRequeueDeadLetter,
	}, names)
}
