package executor

import (
	"regexp"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// compiledProver holds the compiled POSIX extended regexes for one Prover
// descriptor. Executor.Run compiles them once per call, before the cache
// lookup, and classify reuses them.
type compiledProver struct {
	sat, unsat, unknown, timeout, memory *regexp.Regexp
}

func compileProver(p protocol.Prover) (compiledProver, error) {
	var cp compiledProver
	var err error
	if cp.sat, err = compilePOSIX(p.RegexSat); err != nil {
		return cp, err
	}
	if cp.unsat, err = compilePOSIX(p.RegexUnsat); err != nil {
		return cp, err
	}
	if cp.unknown, err = compilePOSIX(p.RegexUnknown); err != nil {
		return cp, err
	}
	if cp.timeout, err = compilePOSIX(p.RegexTimeout); err != nil {
		return cp, err
	}
	if cp.memory, err = compilePOSIX(p.RegexMemory); err != nil {
		return cp, err
	}
	return cp, nil
}

func compilePOSIX(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.CompilePOSIX(pattern)
}

func matches(re *regexp.Regexp, combined string) bool {
	return re != nil && re.MatchString(combined)
}

// classify implements spec §4.2 step 5's precedence exactly: watchdog
// first, then sat/unsat gated on a clean exit, then unknown/timeout
// regexes, else Error.
func classify(cp compiledProver, watchdogFired bool, errcode int, stdout, stderr string) protocol.Classification {
	if watchdogFired {
		return protocol.Timeout
	}
	combined := stdout + stderr
	if errcode == 0 {
		if matches(cp.sat, combined) {
			return protocol.Sat
		}
		if matches(cp.unsat, combined) {
			return protocol.Unsat
		}
	}
	if matches(cp.timeout, combined) || matches(cp.unknown, combined) {
		return protocol.Unknown
	}
	return protocol.Error
}
