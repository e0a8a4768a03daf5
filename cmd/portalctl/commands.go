package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/itiportal/portal-session/internal/bootstrap"
	domainauth "github.com/itiportal/portal-session/internal/domain/auth"
	apperrors "github.com/itiportal/portal-session/internal/errors"
	"github.com/itiportal/portal-session/internal/guard"
	httpx "github.com/itiportal/portal-session/internal/http"
	"github.com/itiportal/portal-session/internal/ports"
	"github.com/itiportal/portal-session/internal/service"
	"github.com/itiportal/portal-session/internal/util"
)

var errNotSignedIn = &exitError{code: 1, msg: "Not signed in. Run: portalctl login --email <address>"}

// openSession builds the session stack and runs startup reconciliation.
// With wait set it returns after the background profile refresh settles.
func (c *commandContext) openSession(wait bool) (*bootstrap.SessionContainer, error) {
	sess, err := c.buildSession(&c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	done := sess.Authority.Start(c.Ctx)
	if !wait {
		return sess, nil
	}
	select {
	case <-done:
		return sess, nil
	case <-c.Ctx.Done():
		_ = sess.Close()
		return nil, c.Ctx.Err()
	}
}

func (c *commandContext) closeSession(sess *bootstrap.SessionContainer) {
	if err := sess.Close(); err != nil {
		c.Logger.WarnContext(c.Ctx, "close session resources failed", "error", err)
	}
}

type loginOptions struct {
	Email string
}

func parseLoginFlags(c *commandContext, args []string) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)

	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email address (required)")

	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return loginOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func runLogin(c *commandContext, args []string) error {
	opts, err := parseLoginFlags(c, args)
	if err != nil {
		return err
	}
	password, err := readPassword(c.Stdin)
	if err != nil {
		return err
	}

	sess, err := c.openSession(true)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	st, err := sess.Authority.SignIn(c.Ctx, ports.LoginInput{Email: opts.Email, Password: password})
	if err != nil {
		return err
	}

	if err = writef(c.Stdout, "Signed in as %s (%s)\n", st.User.DisplayName(), st.Role()); err != nil {
		return err
	}
	return printAccountNotices(c, st)
}

func printAccountNotices(c *commandContext, st domainauth.State) error {
	if st.NeedsVerification() {
		if err := writeln(c.Stdout, "Your email address is not verified yet. Check your inbox for the verification link."); err != nil {
			return err
		}
	}
	if st.PendingApproval() {
		if err := writeln(c.Stdout, "Your company account is awaiting admin approval."); err != nil {
			return err
		}
	}
	return nil
}

func runLogout(c *commandContext, _ []string) error {
	sess, err := c.openSession(true)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	res := sess.Authority.Logout(c.Ctx)
	if !res.RemoteCalled {
		return writeln(c.Stdout, "Already signed out.")
	}
	if !res.RemoteOK {
		var remote *service.RemoteLogoutError
		msg := "unknown error"
		if errors.As(res.Err, &remote) {
			msg = userMessage(remote.Err)
		}
		return writef(c.Stdout, "Signed out locally. The server could not confirm the logout: %s\n", msg)
	}
	return writeln(c.Stdout, "Signed out.")
}

type whoamiOptions struct {
	JSON bool
}

func runWhoami(c *commandContext, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	var opts whoamiOptions
	fs.BoolVar(&opts.JSON, "json", false, "Print the session as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := c.openSession(true)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	st := sess.Authority.Snapshot()
	if opts.JSON {
		enc := json.NewEncoder(c.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(httpx.NewSessionView(st, time.Now()))
	}
	if !st.IsAuthenticated {
		return errNotSignedIn
	}
	if err = printUser(c, st.User); err != nil {
		return err
	}
	return printAccountNotices(c, st)
}

func printUser(c *commandContext, u *domainauth.UserRecord) error {
	w := tabwriter.NewWriter(c.Stdout, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Name", u.DisplayName()},
		{"Email", u.Email},
		{"Role", string(u.Role)},
		{"ID", string(u.ID)},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		if err := writef(w, "%s\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write %s: %w", strings.ToLower(row[0]), err)
		}
	}
	return w.Flush()
}

func runRefresh(c *commandContext, _ []string) error {
	sess, err := c.openSession(true)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	if !sess.Authority.Snapshot().IsAuthenticated {
		return errNotSignedIn
	}
	fresh, err := sess.Authority.Refresh(c.Ctx, nil)
	if err != nil {
		return err
	}
	if fresh == nil {
		return writeln(c.Stdout, "Profile unchanged; the server response could not be used.")
	}
	return writef(c.Stdout, "Profile refreshed for %s (%s)\n", fresh.DisplayName(), fresh.Role)
}

func runToken(c *commandContext, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	raw := fs.Bool("raw", false, "Print the bearer token itself")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The stored token is enough here; no need to wait for the profile refresh.
	sess, err := c.openSession(false)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	st := sess.Authority.Snapshot()
	if st.Token == "" {
		return errNotSignedIn
	}
	if *raw {
		return writeln(c.Stdout, st.Token)
	}

	info := service.InspectToken(st.Token)
	if !info.JWT {
		return writeln(c.Stdout, "Opaque token (no readable claims).")
	}
	w := tabwriter.NewWriter(c.Stdout, 0, 4, 2, ' ', 0)
	if info.Subject != "" {
		_ = writef(w, "Subject\t%s\n", info.Subject)
	}
	if !info.IssuedAt.IsZero() {
		_ = writef(w, "Issued\t%s\n", info.IssuedAt.UTC().Format(time.RFC3339))
	}
	if !info.ExpiresAt.IsZero() {
		status := "valid"
		if info.Expired(time.Now()) {
			status = "expired"
		}
		_ = writef(w, "Expires\t%s (%s)\n", info.ExpiresAt.UTC().Format(time.RFC3339), status)
		_ = writef(w, "Remaining\t%s\n", util.FormatRemaining(time.Until(info.ExpiresAt)))
	}
	return w.Flush()
}

// roleList collects repeated --role flags.
type roleList []domainauth.Role

func (r *roleList) String() string {
	parts := make([]string, len(*r))
	for i, role := range *r {
		parts[i] = string(role)
	}
	return strings.Join(parts, ",")
}

func (r *roleList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		role, err := domainauth.ParseRole(part)
		if err != nil {
			return err
		}
		*r = append(*r, role)
	}
	return nil
}

type checkRoleOptions struct {
	Roles   roleList
	MinRole domainauth.Role
	Dest    string
}

func parseCheckRoleFlags(c *commandContext, args []string) (checkRoleOptions, error) {
	fs := flag.NewFlagSet("check-role", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)

	var (
		opts    checkRoleOptions
		minRole string
	)
	fs.Var(&opts.Roles, "role", "Allowed role; repeat or comma-separate for several")
	fs.StringVar(&minRole, "min-role", "", "Minimum role by rank (student < alumni < company < staff < admin)")
	fs.StringVar(&opts.Dest, "dest", "/", "Destination used in the sign-in redirect")

	if err := fs.Parse(args); err != nil {
		return checkRoleOptions{}, err
	}
	if minRole != "" {
		if len(opts.Roles) > 0 {
			return checkRoleOptions{}, errors.New("--role and --min-role are mutually exclusive")
		}
		role, err := domainauth.ParseRole(minRole)
		if err != nil {
			return checkRoleOptions{}, err
		}
		opts.MinRole = role
	}
	return opts, nil
}

func runCheckRole(c *commandContext, args []string) error {
	opts, err := parseCheckRoleFlags(c, args)
	if err != nil {
		return err
	}

	sess, err := c.openSession(true)
	if err != nil {
		return err
	}
	defer c.closeSession(sess)

	g := guard.New(c.Config.Session.LoginPath)
	st := sess.Authority.Snapshot()

	var d guard.Decision
	switch {
	case opts.MinRole != "":
		d = g.MinimumRole(st, opts.Dest, opts.MinRole)
	case len(opts.Roles) > 0:
		d = g.AllowRoles(st, opts.Dest, opts.Roles...)
	default:
		d = g.Authenticated(st, opts.Dest)
	}

	switch d.Outcome {
	case guard.Allow:
		return writeln(c.Stdout, "allow")
	case guard.Deny:
		return &exitError{code: exitDenied, msg: "deny"}
	case guard.Redirect:
		return &exitError{code: exitRedirect, msg: "redirect " + d.RedirectTo}
	default:
		return errors.New("session is still loading")
	}
}

func userMessage(err error) string {
	if f := apperrors.GetField(err); f != "" {
		return fmt.Sprintf("%s (%s)", apperrors.UserMessage(err), strings.ToLower(f))
	}
	return apperrors.UserMessage(err)
}
