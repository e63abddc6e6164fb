package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func testProblem(t *testing.T) protocol.Problem {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "p.cnf")
	require.NoError(t, os.WriteFile(path, []byte("dummy"), 0o644))
	return protocol.Problem{Path: path, Expected: protocol.Unsat}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	cache, err := NewCache(t.TempDir(), time.Hour, zap.NewNop().Sugar())
	require.NoError(t, err)
	return New(2, cache, zap.NewNop().Sugar())
}

// TestRunClassifiesUnsat is S3.
func TestRunClassifiesUnsat(t *testing.T) {
	exec := newTestExecutor(t)
	prover := protocol.Prover{
		Name:        "toy",
		CommandTmpl: `sh -c 'echo SZS status Unsatisfiable; exit 0'`,
		RegexSat:    "Satisfiable",
		RegexUnsat:  "Unsatisfiable",
	}
	res, err := exec.Run(context.Background(), prover, testProblem(t), 5, 0)
	require.NoError(t, err)
	require.Equal(t, protocol.Unsat, res.Classification)
	require.Equal(t, 0, res.Raw.ErrCode)
}

// TestRunTimesOut is S4: a child that runs forever returns within
// timeout+2s with classification Timeout.
func TestRunTimesOut(t *testing.T) {
	exec := newTestExecutor(t)
	prover := protocol.Prover{Name: "hang", CommandTmpl: `sh -c 'sleep 10'`}

	start := time.Now()
	res, err := exec.Run(context.Background(), prover, testProblem(t), 1, 0)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, protocol.Timeout, res.Classification)
	require.LessOrEqual(t, elapsed, 3*time.Second)
}

// TestRunCachesSecondCall is property 8 through the public Run entry point:
// an identical second call must not re-spawn the child.
func TestRunCachesSecondCall(t *testing.T) {
	exec := newTestExecutor(t)
	problem := testProblem(t)
	marker := filepath.Join(t.TempDir(), "ran")
	prover := protocol.Prover{
		Name:        "marker",
		CommandTmpl: `sh -c 'echo -n x >> ` + marker + `; echo Satisfiable'`,
		RegexSat:    "Satisfiable",
	}

	_, err := exec.Run(context.Background(), prover, problem, 5, 0)
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), prover, problem, 5, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "x", string(data), "second Run must be served from cache, not re-spawn")
}
