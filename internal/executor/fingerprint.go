package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// Fingerprint computes a stable content hash of everything that determines
// a run's outcome: the prover descriptor, the problem's path *and* content,
// and the resource limits (spec §3 "Prover descriptor... its fingerprint is
// a stable hash of these fields"; §4.2 "Caching" extends this to the
// problem content and the limits). sha256 over a canonical, fixed-order
// encoding is used rather than a third-party hash: no hash library in the
// retrieved corpus offers anything sha256 does not for a pure content
// fingerprint, so reaching for stdlib here needs no further library search
// (see DESIGN.md).
func Fingerprint(prover protocol.Prover, problemPath string, timeoutS float64, memoryMB int) (string, error) {
	content, err := os.ReadFile(problemPath)
	if err != nil {
		return "", fmt.Errorf("fingerprint: read %s: %w", problemPath, err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "prover:%s\x00binary:%s\x00image:%s\x00cmd:%s\x00sat:%s\x00unsat:%s\x00unknown:%s\x00timeout:%s\x00memoryrx:%s\x00",
		prover.Name, prover.Binary, prover.Image, prover.CommandTmpl,
		prover.RegexSat, prover.RegexUnsat, prover.RegexUnknown, prover.RegexTimeout, prover.RegexMemory)
	fmt.Fprintf(h, "path:%s\x00timeout_s:%g\x00memory_mb:%d\x00", problemPath, timeoutS, memoryMB)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil)), nil
}
