// Package sandbox runs generated applications for live preview.
//
// A Supervisor owns at most one child process executing the current
// generated artifact from a fixed file in its sandbox directory. Starting a
// new artifact always stops and reaps the previous process first, so the
// fixed preview port is free before the next bind. The child's stdout and
// stderr are drained by one background goroutine into a bounded LogBuffer.
//
// On Unix the child leads its own process group and termination is sent to
// the whole group, so servers that fork workers do not outlive a restart.
//
// Usage:
//
//	sup := sandbox.NewSupervisor(logger, &sandbox.Config{
//	    Dir:      "sandbox",
//	    Language: sandbox.LanguagePython,
//	    Port:     5000,
//	})
//	if err := sup.Start(code); err != nil {
//	    return err
//	}
//	defer sup.Stop()
//	fmt.Println(sup.IsRunning(), sup.Logs())
package sandbox
