package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/notekeeper/internal/guard"
	"github.com/target/notekeeper/internal/http/uiutil"
)

const passwordEnv = "NOTEKEEPER_PASSWORD"

var (
	loginEmail    string
	loginPassword string
	loginRedirect string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Signs in and stores the session for later commands.

With --redirect, the location a protected command was refused at is carried
through sign-in and opened afterwards, the same way the web sign-in page
returns to the page that sent you there. The password is read from --password,
then NOTEKEEPER_PASSWORD, then a line on stdin.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var openCmd = &cobra.Command{
	Use:   "open <location>",
	Short: "Open a location such as /dashboard or /dashboard/notes/<id>",
	Long: `Opens a location the way the web client would: protected locations are
shown only when signed in, otherwise the command points you at login with the
location carried along.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd, openCmd)

	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
		c.Flags().StringVarP(&loginPassword, "password", "p", "", "account password")
		_ = c.MarkFlagRequired("email")
	}
	loginCmd.Flags().StringVar(&loginRedirect, "redirect", "", "location to open after signing in")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	entry := a.routes.EntryPath
	if loginRedirect != "" {
		entry = guard.EntryURL(normalizeLocation(loginRedirect), a.routes)
	}

	d, _, err := a.visit(ctx, entry)
	if err != nil {
		return fmt.Errorf("wait for sign-in state: %w", err)
	}
	if d.Action == guard.ActionRedirect {
		fmt.Fprintf(a.out, "Already signed in as %s\n", a.machine.State().Identity.Email)
		return a.show(ctx, d.Target)
	}

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	if err := a.machine.SignIn(ctx, loginEmail, password); err != nil {
		return reported(err)
	}
	if _, err := a.waitFor(ctx, settledSignedIn); err != nil {
		return fmt.Errorf("wait for session: %w", err)
	}

	d, _, err = a.visit(ctx, entry)
	if err != nil {
		return fmt.Errorf("wait for sign-in state: %w", err)
	}
	if d.Action != guard.ActionRedirect {
		return errors.New("signed in, but the session was dropped before it could be used")
	}
	return a.show(ctx, d.Target)
}

func runSignup(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	res, err := a.machine.SignUp(ctx, loginEmail, password)
	if err != nil {
		return reported(err)
	}
	if res.Session == nil {
		fmt.Fprintln(a.out, "Confirm your email address, then run: notekeeper-cli login --email", loginEmail)
		return nil
	}
	st, err := a.waitFor(ctx, settledSignedIn)
	if err != nil {
		return fmt.Errorf("wait for session: %w", err)
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", st.Identity.Email)
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	st, err := a.waitFor(ctx, settled)
	if err != nil {
		return fmt.Errorf("wait for sign-in state: %w", err)
	}
	if !st.SignedIn() {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	signOutErr := a.machine.SignOut(ctx)
	// The machine signs out locally even when the server call fails.
	if _, err := a.waitFor(ctx, settledSignedOut); err != nil {
		return errors.Join(reported(signOutErr), fmt.Errorf("wait for sign-out: %w", err))
	}
	return reported(signOutErr)
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.waitFor(cmd.Context(), settled)
	if err != nil {
		return fmt.Errorf("wait for sign-in state: %w", err)
	}
	if !st.SignedIn() {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(a.out, "Email:   %s\n", st.Identity.Email)
	fmt.Fprintf(a.out, "User ID: %s\n", st.Identity.UserID)
	if st.Session != nil && !st.Session.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Token expires: %s\n", uiutil.DateTime(st.Session.ExpiresAt))
	}
	fmt.Fprintf(a.out, "API:     %s\n", a.cfg.APIURL)
	return nil
}

func runOpen(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	location := normalizeLocation(args[0])
	d, entry, err := a.visit(ctx, location)
	if err != nil {
		return fmt.Errorf("wait for sign-in state: %w", err)
	}

	switch d.Action {
	case guard.ActionRedirect:
		if entry.From != "" {
			return &signInRequiredError{location: entry.From}
		}
		// Signed in at the entry point: follow the carried destination.
		return a.show(ctx, d.Target)
	case guard.ActionRender:
		path, _, _ := strings.Cut(location, "?")
		if path == a.routes.EntryPath {
			fmt.Fprintln(a.out, "Not signed in. Run: notekeeper-cli login")
			return nil
		}
		return a.show(ctx, location)
	default:
		return fmt.Errorf("cannot open %s: auth state did not settle", location)
	}
}

// show prints what the web client renders at an allowed location.
func (a *app) show(ctx context.Context, location string) error {
	path, _, _ := strings.Cut(location, "?")
	now := time.Now()
	if path == dashboardPath {
		list, err := a.notes.List(ctx, listOptions{}.toModel())
		if err != nil {
			return fmt.Errorf("list notes: %w", err)
		}
		return printNotes(a.out, list, now)
	}
	if id, ok := noteIDFromLocation(location); ok {
		n, err := a.notes.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("get note %s: %w", id, err)
		}
		return printNote(a.out, n, now)
	}
	fmt.Fprintf(a.out, "Nothing to show at %s\n", location)
	return nil
}

// readPassword takes --password, then NOTEKEEPER_PASSWORD, then one line of stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	return readLine(cmd.InOrStdin())
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}
