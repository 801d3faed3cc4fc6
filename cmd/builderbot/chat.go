package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"golang.org/x/term"

	"github.com/isdmx/builderbot/session"
)

const chatHelp = `Commands:
  /status  preview state
  /logs    recent preview output
  /clear   discard preview output
  /stop    stop the preview
  /code    print the current app
  /reset   stop the preview and start over
  /quit    exit (the preview is stopped)`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Build an app interactively with a live preview",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var sessions *session.Manager
		app := fx.New(
			coreModule(loadConfig(cmd)),
			fx.Populate(&sessions),
			fx.NopLogger,
		)
		if err := app.Err(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		// The preview leads its own process group, so a terminal interrupt
		// never reaches it; catch the signal and stop it on the way out.
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = app.Stop(stopCtx)
		}()

		sess, err := sessions.Default()
		if err != nil {
			return err
		}

		r := &repl{
			in:      os.Stdin,
			out:     cmd.OutOrStdout(),
			session: sess,
			render:  markdownRenderer(os.Stdout),
		}
		return r.run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// markdownRenderer renders replies with glamour when f is a terminal and
// passes them through otherwise.
func markdownRenderer(f *os.File) func(string) string {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func(s string) string { return s }
	}

	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width, _, err := term.GetSize(fd); err == nil && width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return out
	}
}

// repl is the line-oriented chat loop.
type repl struct {
	in      io.Reader
	out     io.Writer
	session *session.Session
	render  func(string) string
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// run reads commands until input ends, /quit, or ctx is cancelled.
func (r *repl) run(ctx context.Context) error {
	r.printf("Describe the app you want. Type /help for commands.\n")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		r.printf("> ")
		var raw string
		select {
		case <-ctx.Done():
			r.printf("\ninterrupted, stopping preview\n")
			return nil
		case err := <-readErr:
			r.printf("\n")
			return err
		case raw = <-lines:
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.chat(ctx, line)
		if ctx.Err() != nil {
			r.printf("interrupted, stopping preview\n")
			return nil
		}
	}
}

// command runs a slash command and reports whether the loop should end.
func (r *repl) command(line string) bool {
	preview := r.session.Preview()
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", chatHelp)
	case "/status":
		st := r.session.Summary().Preview
		if st.Running {
			r.printf("running (pid %d) at %s\n", st.PID, r.session.PreviewURL())
		} else {
			r.printf("stopped\n")
		}
	case "/logs":
		logs := preview.Logs()
		if len(logs) == 0 {
			r.printf("(no output)\n")
		} else {
			r.printf("%s\n", strings.Join(logs, "\n"))
		}
	case "/clear":
		preview.ClearLogs()
		r.printf("logs cleared\n")
	case "/stop":
		preview.Stop()
		r.printf("preview stopped\n")
	case "/code":
		code := r.session.Artifact()
		if code == "" {
			r.printf("(no code yet)\n")
		} else {
			r.printf("%s\n", code)
		}
	case "/reset":
		r.session.Reset()
		r.printf("conversation reset\n")
	default:
		r.printf("unknown command %s, try /help\n", line)
	}
	return false
}

func (r *repl) chat(ctx context.Context, prompt string) {
	reply, err := r.session.Send(ctx, prompt)
	if reply == nil {
		r.printf("error: %v\n", err)
		return
	}

	r.printf("%s\n", r.render(reply.Text))
	switch {
	case err != nil:
		r.printf("preview failed to start: %v\n", err)
	case reply.CodeUpdated:
		r.printf("preview restarted at %s\n", reply.PreviewURL)
	}
}
