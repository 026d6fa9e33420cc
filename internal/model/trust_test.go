package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/sendergate/internal/errs"
)

func TestTrustLevel_Order(t *testing.T) {
	require.True(t, TrustSovereign.AtLeast(TrustTrusted))
	require.True(t, TrustTrusted.AtLeast(TrustLimited))
	require.True(t, TrustLimited.AtLeast(TrustBlocked))
	require.False(t, TrustTrusted.AtLeast(TrustSovereign))
	require.True(t, TrustTrusted.AtLeast(TrustTrusted))
}

func TestParseTrustLevel(t *testing.T) {
	for _, name := range []string{"sovereign", "trusted", "limited", "blocked"} {
		lvl, err := ParseTrustLevel(name)
		require.NoError(t, err)
		require.Equal(t, name, lvl.String())
	}

	lvl, err := ParseTrustLevel(" Trusted ")
	require.NoError(t, err)
	require.Equal(t, TrustTrusted, lvl)

	_, err = ParseTrustLevel("admin")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestDecisionFor(t *testing.T) {
	cases := []struct {
		in   TrustLevel
		want Decision
	}{
		{TrustSovereign, DecisionAllowed},
		{TrustTrusted, DecisionAllowed},
		{TrustLimited, DecisionLimited},
		{TrustBlocked, DecisionBlocked},
		{TrustLevel(-5), DecisionBlocked},
	}
	for _, c := range cases {
		require.Equal(t, c.want, DecisionFor(c.in), c.in.String())
	}
	require.Equal(t, ActionLimited, DecisionLimited.Action())
}

func TestCheckResult_MayAct(t *testing.T) {
	require.True(t, CheckResult{Decision: DecisionAllowed}.MayAct())
	require.False(t, CheckResult{Decision: DecisionLimited}.MayAct())
	require.False(t, CheckResult{Decision: DecisionAllowed, Degraded: true}.MayAct())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("CONTACT_ADDED")
	require.NoError(t, err)
	require.Equal(t, ActionContactAdded, a)

	_, err = ParseAction("trust_changed")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}
