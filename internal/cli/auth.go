package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atinyakov/consultdesk/internal/client/storage"
	"github.com/atinyakov/consultdesk/internal/models"
	"github.com/atinyakov/consultdesk/internal/remote"
	"github.com/atinyakov/consultdesk/internal/session"
)

func newRegisterCmd(a *app) *cobra.Command {
	var profile models.SignUp

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a member account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if profile.Email == "" || profile.Password == "" {
				profile = storage.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).SignUp()
			}
			if err := a.store.SignUp(cmd.Context(), profile); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created, run 'login' to sign in\n", profile.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile.Email, "email", "", "email address (prompted if omitted)")
	cmd.Flags().StringVar(&profile.Password, "password", "", "password (prompted if omitted)")
	cmd.Flags().StringVar(&profile.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&profile.LastName, "last-name", "", "last name")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var creds models.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Email == "" || creds.Password == "" {
				creds = storage.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Credentials()
			}
			return signIn(cmd, a, creds)
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "email address (prompted if omitted)")
	cmd.Flags().StringVar(&creds.Password, "password", "", "password (prompted if omitted)")
	return cmd
}

func signIn(cmd *cobra.Command, a *app, creds models.Credentials) error {
	if err := a.store.SignIn(cmd.Context(), creds); err != nil {
		return explain(err)
	}
	snap := a.store.Snapshot()
	if snap.Session == nil {
		return errors.New("signed in, but the backend did not confirm the session; try 'whoami' later")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", snap.Session.Email)
	return nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.store.SignOut()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.store.Refresh(cmd.Context())
			printSession(cmd.OutOrStdout(), a.store.Snapshot())
			return nil
		},
	}
}

func printSession(w io.Writer, snap session.Snapshot) {
	if snap.Session == nil {
		fmt.Fprintln(w, "Not signed in")
		return
	}
	id := snap.Session
	name := strings.TrimSpace(id.FirstName + " " + id.LastName)
	if name == "" {
		name = id.Email
	}
	role := "member"
	if snap.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(w, "%s <%s> id=%d role=%s joined=%s\n", name, id.Email, id.ID, role, id.DateJoined.Format("2006-01-02"))
}

// explain turns client errors into messages fit for the terminal. Network
// failures suggest retrying, everything else is shown as the backend said it.
func explain(err error) error {
	var re *remote.Error
	switch {
	case errors.Is(err, session.ErrSignedOut):
		return errors.New("signed out before the sign-in finished")
	case !errors.As(err, &re):
		return err
	case re.Kind == remote.KindNetwork:
		return fmt.Errorf("backend unavailable, please retry: %s", re.Message+causeSuffix(re))
	case re.Kind == remote.KindAuth:
		return fmt.Errorf("not authorized: %s", re.Message)
	}

	if len(re.Fields) == 0 {
		return errors.New(re.Message)
	}
	keys := make([]string, 0, len(re.Fields))
	for k := range re.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(re.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, re.Fields[k])
	}
	return errors.New(b.String())
}

func causeSuffix(re *remote.Error) string {
	if re.Err == nil {
		return ""
	}
	if re.Message == "" {
		return re.Err.Error()
	}
	return " (" + re.Err.Error() + ")"
}
