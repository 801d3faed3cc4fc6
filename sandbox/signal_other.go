//go:build !unix

package sandbox

import (
	"os"
	"syscall"
)

// Without POSIX signals or process groups, termination is always a kill.

func sysProcAttr(_ bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func terminate(p *os.Process, _ bool) error {
	return p.Kill()
}

func kill(p *os.Process, _ bool) error {
	return p.Kill()
}

func reapGroup(_ *os.Process, _ bool) {}

func probe(_ *os.Process) bool {
	return true
}
