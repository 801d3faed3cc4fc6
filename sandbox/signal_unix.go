//go:build unix

package sandbox

import (
	"errors"
	"os"
	"syscall"
)

func signalProcess(p *os.Process, group bool, sig syscall.Signal) error {
	if group {
		err := syscall.Kill(-p.Pid, sig)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return p.Signal(sig)
}

// terminate asks the child (and its group) to exit.
func terminate(p *os.Process, group bool) error {
	return signalProcess(p, group, syscall.SIGTERM)
}

// kill forcibly ends the child (and its group).
func kill(p *os.Process, group bool) error {
	return signalProcess(p, group, syscall.SIGKILL)
}

// reapGroup kills whatever is left in the child's process group after the
// leader is gone.
func reapGroup(p *os.Process, group bool) {
	if group {
		_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
	}
}

// probe reports whether the process still exists, using the null signal.
func probe(p *os.Process) bool {
	return p.Signal(syscall.Signal(0)) == nil
}
