// Package cli implements the consultdesk member command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/client/storage"
	"github.com/atinyakov/consultdesk/internal/logger"
	"github.com/atinyakov/consultdesk/internal/remote"
	"github.com/atinyakov/consultdesk/internal/session"
)

// app carries the dependencies shared by every command. It is filled in by
// the root command's pre-run hook.
type app struct {
	server      string
	storagePath string
	logLevel    string
	timeout     time.Duration

	log    *zap.Logger
	tokens *storage.TokenStore
	client *remote.Client
	store  *session.Store
}

func defaultServer() string {
	if s := os.Getenv("CONSULTDESK_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultStoragePath() string {
	if p := os.Getenv("CONSULTDESK_STORAGE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "storage.json"
	}
	return filepath.Join(home, ".consultdesk", "storage.json")
}

// NewRootCmd creates the root command reading prompts from in and writing
// results to out.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "consultdesk",
		Short: "ConsultDesk member client",
		Long:  "Sign in to the ConsultDesk backend and manage posts, resources, case studies, projects, logs and leads.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&a.server, "server", defaultServer(), "backend base URL (or CONSULTDESK_SERVER env)")
	root.PersistentFlags().StringVar(&a.storagePath, "storage", defaultStoragePath(), "token storage file (or CONSULTDESK_STORAGE env)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 15*time.Second, "per-request timeout")

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
		newShellCmd(a),
	)

	return root
}

func (a *app) init() error {
	l := logger.New()
	if err := l.InitConsole(a.logLevel); err != nil {
		return err
	}
	a.log = l.Log

	fs, err := storage.NewFileStorage(a.storagePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.tokens = storage.NewTokenStore(fs)
	a.client = remote.NewClient(a.server, a.tokens,
		remote.WithLogger(a.log),
		remote.WithTimeout(a.timeout),
	)
	a.store = session.New(a.client, a.tokens, a.log)
	return nil
}

// close lets background revokes finish before the process exits.
func (a *app) close() {
	if a.client != nil {
		a.client.WaitIdle()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
