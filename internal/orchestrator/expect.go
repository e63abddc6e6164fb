package orchestrator

import (
	"fmt"
	"os"
	"regexp"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// expectPrefixBytes bounds how much of a problem file find_expect scans
// (spec §4.3 step 1 "read a small prefix"); problem files can be large and
// the directive, if present, always appears near the top.
const expectPrefixBytes = 4096

var expectRe = regexp.MustCompile(`(?i)expect(ed)?:\s*(unsat|sat|unknown|timeout|error|fail)`)

// findExpect locates the `expect[ed]: ...` directive in path's leading
// bytes (spec §6 "Expected-result directive"). It returns ok=false, not an
// error, when the directive is absent — the caller decides whether a
// configured default applies (spec §4.3 step 1).
func findExpect(path string) (protocol.Classification, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, fmt.Errorf("orchestrator: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, expectPrefixBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return 0, false, nil
	}
	m := expectRe.FindSubmatch(buf[:n])
	if m == nil {
		return 0, false, nil
	}
	c, ok := protocol.ParseClassification(string(m[2]))
	return c, ok, nil
}

// resolveExpect implements spec §4.3 step 1 in full: directive first,
// configured default second, "expected result not found" error otherwise.
func resolveExpect(path, defaultExpect string) (protocol.Classification, error) {
	if c, ok, err := findExpect(path); err != nil {
		return 0, err
	} else if ok {
		return c, nil
	}
	if defaultExpect != "" {
		if c, ok := protocol.ParseClassification(defaultExpect); ok {
			return c, nil
		}
	}
	return 0, fmt.Errorf("orchestrator: %s: expected result not found", path)
}
