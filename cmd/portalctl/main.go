package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/itiportal/portal-session/config"
	"github.com/itiportal/portal-session/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// buildSession is swapped in tests.
	buildSession func(cfg *config.AppConfig, logger *slog.Logger) (*bootstrap.SessionContainer, error)
}

// exitError carries a process exit status other than 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

const (
	exitDenied   = 3
	exitRedirect = 4
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)) //nolint:forbidigo // CLI exit status is part of its contract
}

func realMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_ = printUsage(stderr)
		return 2
	}

	cmdName := args[0]
	cmd, ok := commands()[cmdName]
	if !ok {
		_ = writef(stderr, "unknown command %q\n\n", cmdName)
		_ = printUsage(stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		_ = writef(stderr, "load config: %v\n", err)
		return 1
	}

	// The CLI logs to the configured file, or quietly to stderr.
	logCfg := cfg.Observability.Logging
	if logCfg.File == "" && logCfg.Level != "debug" {
		logCfg.Level = "warn"
	}
	logger, logCloser, err := bootstrap.InitLogger(logCfg)
	if err != nil {
		_ = writef(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logCloser.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:          ctx,
		Logger:       logger,
		Config:       cfg,
		Stdin:        stdin,
		Stdout:       stdout,
		Stderr:       stderr,
		buildSession: defaultBuildSession,
	}
	return runCommand(cmdCtx, cmd, args[1:])
}

func runCommand(cmdCtx *commandContext, cmd command, args []string) int {
	err := cmd.run(cmdCtx, args)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.msg != "" {
			_ = writeln(cmdCtx.Stdout, exitErr.msg)
		}
		return exitErr.code
	}
	if errors.Is(err, flag.ErrHelp) {
		return 2
	}
	_ = writef(cmdCtx.Stderr, "%s: %s\n", cmd.name, userMessage(err))
	cmdCtx.Logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmd.name, "error", err)
	return 1
}

func defaultBuildSession(cfg *config.AppConfig, logger *slog.Logger) (*bootstrap.SessionContainer, error) {
	return bootstrap.BuildSession(bootstrap.SessionConfig{Config: cfg, Logger: logger})
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in with email and password (password read from stdin)",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Sign out on the server and clear stored credentials",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the signed-in user after refreshing the profile",
			run:         runWhoami,
		},
		"refresh": {
			name:        "refresh",
			description: "Fetch the latest profile and update stored credentials",
			run:         runRefresh,
		},
		"token": {
			name:        "token",
			description: "Show token details, or the raw token with --raw",
			run:         runToken,
		},
		"check-role": {
			name:        "check-role",
			description: "Evaluate a route guard; exit 0 allow, 3 deny, 4 sign-in required",
			run:         runCheckRole,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: portalctl <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-12s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
