package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func mustCompile(t *testing.T, p protocol.Prover) compiledProver {
	t.Helper()
	cp, err := compileProver(p)
	require.NoError(t, err)
	return cp
}

// TestClassifyWatchdogTakesPrecedence: a watchdog firing always yields
// Timeout regardless of what the output matches (property 7 precedence).
func TestClassifyWatchdogTakesPrecedence(t *testing.T) {
	cp := mustCompile(t, protocol.Prover{RegexSat: "Satisfiable"})
	c := classify(cp, true, 0, "Satisfiable", "")
	require.Equal(t, protocol.Timeout, c)
}

// TestClassifySatBeforeUnsat is property 7: stdout matching both sat and
// unsat with errcode==0 yields Sat (sat tested first).
func TestClassifySatBeforeUnsat(t *testing.T) {
	cp := mustCompile(t, protocol.Prover{RegexSat: "Satisfiable", RegexUnsat: "Unsatisfiable"})
	c := classify(cp, false, 0, "Satisfiable and Unsatisfiable both appear", "")
	require.Equal(t, protocol.Sat, c)
}

// TestClassifyNonzeroErrcodeIsErrorUnlessTimeoutOrUnknown is the second half
// of property 7.
func TestClassifyNonzeroErrcodeIsErrorUnlessTimeoutOrUnknown(t *testing.T) {
	cp := mustCompile(t, protocol.Prover{RegexSat: "Satisfiable", RegexUnsat: "Unsatisfiable"})
	c := classify(cp, false, 1, "Satisfiable", "")
	require.Equal(t, protocol.Error, c, "nonzero errcode ignores sat/unsat matches")

	cp2 := mustCompile(t, protocol.Prover{RegexUnknown: "GaveUp"})
	c2 := classify(cp2, false, 1, "GaveUp", "")
	require.Equal(t, protocol.Unknown, c2, "unknown regex overrides the nonzero-errcode default")
}

func TestClassifyS3Scenario(t *testing.T) {
	cp := mustCompile(t, protocol.Prover{RegexSat: "Satisfiable", RegexUnsat: "Unsatisfiable"})
	c := classify(cp, false, 0, "SZS status Unsatisfiable", "")
	require.Equal(t, protocol.Unsat, c)
}

func TestClassifyDefaultsToError(t *testing.T) {
	cp := mustCompile(t, protocol.Prover{RegexSat: "Satisfiable", RegexUnsat: "Unsatisfiable"})
	c := classify(cp, false, 1, "segmentation fault", "core dumped")
	require.Equal(t, protocol.Error, c)
}
