package sandbox

import "syscall"

// sysProcAttr returns process attributes for a preview child. With group set
// the child leads its own process group so termination reaches anything it
// forks. Pdeathsig is a Linux-only safety net: if the bot dies unexpectedly,
// the kernel sends SIGTERM to the direct child.
func sysProcAttr(group bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   group,
		Pdeathsig: syscall.SIGTERM,
	}
}
