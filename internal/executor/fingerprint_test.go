package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func writeProblem(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFingerprintStableForIdenticalInputs(t *testing.T) {
	dir := t.TempDir()
	path := writeProblem(t, dir, "p1.p", "cnf clauses")
	prover := protocol.Prover{Name: "z3", Binary: "z3", CommandTmpl: "z3 $file"}

	a, err := Fingerprint(prover, path, 10, 512)
	require.NoError(t, err)
	b, err := Fingerprint(prover, path, 10, 512)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	p1 := writeProblem(t, dir, "p1.p", "cnf clauses")
	p2 := writeProblem(t, dir, "p2.p", "different clauses")
	prover := protocol.Prover{Name: "z3", Binary: "z3"}

	a, err := Fingerprint(prover, p1, 10, 512)
	require.NoError(t, err)
	b, err := Fingerprint(prover, p2, 10, 512)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestFingerprintChangesWithLimits(t *testing.T) {
	dir := t.TempDir()
	path := writeProblem(t, dir, "p1.p", "cnf clauses")
	prover := protocol.Prover{Name: "z3", Binary: "z3"}

	a, err := Fingerprint(prover, path, 10, 512)
	require.NoError(t, err)
	b, err := Fingerprint(prover, path, 20, 512)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
