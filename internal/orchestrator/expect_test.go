package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.p")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestFindExpectParsesDirective is S5.
func TestFindExpectParsesDirective(t *testing.T) {
	path := writeFile(t, "cnf(ax, axiom, foo).\n# expect: unsat\nmore text\n")
	c, ok, err := findExpect(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, protocol.Unsat, c)
}

func TestFindExpectIsCaseInsensitiveAndAliasesFail(t *testing.T) {
	path := writeFile(t, "% Expected: FAIL\n")
	c, ok, err := findExpect(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, protocol.Error, c)
}

func TestFindExpectAbsentReturnsNotOK(t *testing.T) {
	path := writeFile(t, "no directive here\n")
	_, ok, err := findExpect(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveExpectFallsBackToDefault(t *testing.T) {
	path := writeFile(t, "no directive\n")
	c, err := resolveExpect(path, "sat")
	require.NoError(t, err)
	require.Equal(t, protocol.Sat, c)
}

func TestResolveExpectErrorsWithoutDirectiveOrDefault(t *testing.T) {
	path := writeFile(t, "no directive\n")
	_, err := resolveExpect(path, "")
	require.Error(t, err)
}
