package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobRequestCoresOfZeroMeansExclusive(t *testing.T) {
	req := JobRequest{Cores: 0}
	require.Equal(t, 16, req.CoresOf(16))
}

func TestJobRequestCoresOfPositiveIsLiteral(t *testing.T) {
	req := JobRequest{Cores: 3}
	require.Equal(t, 3, req.CoresOf(16))
}

func TestParseClassificationAcceptsKnownValues(t *testing.T) {
	cases := map[string]Classification{
		"sat":     Sat,
		"unsat":   Unsat,
		"unknown": Unknown,
		"timeout": Timeout,
		"error":   Error,
		"fail":    Error,
	}
	for in, want := range cases {
		got, ok := ParseClassification(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseClassificationRejectsUnknownValue(t *testing.T) {
	_, ok := ParseClassification("maybe")
	require.False(t, ok)
}

func TestClassificationStringRoundTripsParseableValues(t *testing.T) {
	for _, c := range []Classification{Sat, Unsat, Unknown, Timeout, Error} {
		s := c.String()
		parsed, ok := ParseClassification(s)
		require.True(t, ok, s)
		require.Equal(t, c, parsed)
	}
}

func TestResultAgrees(t *testing.T) {
	res := Result{Classification: Sat, Problem: Problem{Expected: Sat}}
	require.True(t, res.Agrees())

	res.Problem.Expected = Unsat
	require.False(t, res.Agrees())
}
