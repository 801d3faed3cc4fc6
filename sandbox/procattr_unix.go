//go:build unix && !linux

package sandbox

import "syscall"

// sysProcAttr returns process attributes that put the child in its own process
// group when requested. Pdeathsig is not available on non-Linux platforms.
func sysProcAttr(group bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: group,
	}
}
