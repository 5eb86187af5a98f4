package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/consultdesk/internal/client/storage"
	"github.com/atinyakov/consultdesk/internal/session"
)

const shellHelp = `Available commands:
  register | login | logout | whoami
  list <collection> [--ordering f] [--limit n] [--offset n] [--author id]
  get <collection> <id>
  create <collection> [key=value...]
  update <collection> <id> [key=value...]
  delete <collection> <id>
  help | exit`

func newShellCmd(a *app) *cobra.Command {
	var watch time.Duration

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout(), watch)
		},
	}

	cmd.Flags().DurationVar(&watch, "watch", time.Minute, "how often to re-check the session, 0 disables")
	return cmd
}

// runShell reads one command per line until exit or end of input. Each line
// runs on a fresh command tree so flags never leak between lines.
func runShell(ctx context.Context, a *app, in io.Reader, out io.Writer, watch time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := &lineReader{br: bufio.NewReader(in)}

	var who atomic.Value
	who.Store("")
	unsubscribe := a.store.Subscribe(func(snap session.Snapshot) {
		if snap.Session != nil {
			who.Store(snap.Session.Email)
		} else {
			who.Store("")
		}
	})
	defer unsubscribe()

	a.store.Refresh(ctx)
	if watch > 0 {
		storage.StartSessionWatch(ctx, a.store, watch, a.log)
	}

	for {
		prompt := "consultdesk> "
		if email := who.Load().(string); email != "" {
			prompt = fmt.Sprintf("consultdesk (%s)> ", email)
		}
		fmt.Fprint(out, prompt)

		line, err := lines.line()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye")
			return nil
		case "shell":
			fmt.Fprintln(out, "Already in the shell")
		default:
			sub := shellTree(a)
			sub.SetIn(lines)
			sub.SetOut(out)
			sub.SetErr(out)
			sub.SetArgs(args)
			if err := sub.ExecuteContext(ctx); err != nil {
				fmt.Fprintln(out, "Error:", err)
			}
		}
	}
}

func shellTree(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "consultdesk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
	)
	return root
}

// lineReader hands out at most one line per Read so prompts opened by a
// command never consume lines meant for the shell.
type lineReader struct {
	br      *bufio.Reader
	pending []byte
}

func (r *lineReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		l, err := r.br.ReadBytes('\n')
		if len(l) == 0 {
			return 0, err
		}
		r.pending = l
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *lineReader) line() (string, error) {
	if len(r.pending) > 0 {
		l := string(r.pending)
		r.pending = nil
		return strings.TrimSpace(l), nil
	}
	l, err := r.br.ReadString('\n')
	if err != nil && l == "" {
		return "", err
	}
	return strings.TrimSpace(l), nil
}
