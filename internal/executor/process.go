package executor

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sb-labs/coreclaim/pkg/protocol"
)

// watchdogEpsilon is the grace period added to a run's timeout before the
// watchdog kills the child's process group (spec §4.2 step 3).
const watchdogEpsilon = 1 * time.Second

// spawnBackend runs a prover directly as a shell child process, the
// "process" sandbox named in config.Config.Sandbox. It is the default
// backend; dockerBackend (sandbox_docker.go) is the alternative.
type spawnBackend struct {
	log *zap.SugaredLogger
}

// buildCommand substitutes $file, $timeout and $memory into the prover's
// command template (spec §4.2 step 1) and wraps it in a ulimit -v prefix so
// the process backend enforces memoryMB without requiring cgroups (the
// Docker backend builds its command here too, and also sets the same limit
// as a container resource limit).
func buildCommand(prover protocol.Prover, problemPath string, timeoutS float64, memoryMB int) string {
	tmpl := prover.CommandTmpl
	if tmpl == "" {
		tmpl = prover.Binary + " $file"
	}
	repl := strings.NewReplacer(
		"$file", problemPath,
		"$timeout", strconv.FormatFloat(timeoutS, 'f', -1, 64),
		"$memory", strconv.Itoa(memoryMB),
	)
	cmd := repl.Replace(tmpl)
	if memoryMB > 0 {
		return fmt.Sprintf("ulimit -v %d; %s", memoryMB*1024, cmd)
	}
	return cmd
}

func (b spawnBackend) run(prover protocol.Prover, problem protocol.Problem, timeoutS float64, memoryMB int) (protocol.RawMeasurement, bool, error) {
	command := buildCommand(prover, problem.Path, timeoutS, memoryMB)

	cmd := exec.Command("sh", "-c", command)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return protocol.RawMeasurement{}, false, err
	}

	var watchdogFired atomic.Bool
	timer := time.AfterFunc(time.Duration(timeoutS*float64(time.Second))+watchdogEpsilon, func() {
		watchdogFired.Store(true)
		if err := killProcessGroup(cmd.Process.Pid); err != nil {
			b.log.Warnw("executor: watchdog kill failed", "prover", prover.Name, "err", err)
		}
	})

	waitErr := cmd.Wait()
	timer.Stop()
	realTime := time.Since(start)

	errcode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			errcode = exitErr.ExitCode()
		} else {
			errcode = -1
		}
	}

	raw := protocol.RawMeasurement{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ErrCode:  errcode,
		RealTime: realTime,
	}
	if ps := cmd.ProcessState; ps != nil {
		raw.UserTime = ps.UserTime()
		raw.SysTime = ps.SystemTime()
	}

	return raw, watchdogFired.Load(), nil
}
