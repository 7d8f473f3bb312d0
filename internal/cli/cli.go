// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for casevault.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/casevault/internal/audit"
	"github.com/jeranaias/casevault/internal/config"
	"github.com/jeranaias/casevault/internal/security"
	"github.com/jeranaias/casevault/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdLogin Command = iota
	CmdLogout
	CmdWhoami
	CmdUser
	CmdSession
	CmdLockout
	CmdAudit
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool

	// Command-specific
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g. --format)
	Options map[string]string
}

const usageText = `casevault - secure case management vault

Casevault manages user accounts, sessions, and a tamper-evident audit
trail for a local case management deployment.

Usage:
  casevault login <username>        Log in and start a session
    --remember                      Keep the session for 30 days
  casevault logout                  End the persisted session
  casevault whoami                  Show the restored session, if any
  casevault user register <name>    Register a new account
  casevault user passwd <name>      Change an account password
  casevault user deactivate <name>  Deactivate an account
  casevault user activate <name>    Reactivate an account
  casevault session cleanup         Remove expired sessions
  casevault lockout status [name]   Show login throttle state
  casevault lockout clear <name>    Reset an account's throttle window
  casevault audit [show]            Show recent audit entries
  casevault audit verify            Verify audit chain integrity
  casevault audit export            Export the audit log
    --format json|csv               Export format (default: json)
    --output FILE                   Write to file instead of stdout
    --type TYPE                     Filter by event type
    --limit N                       Limit number of entries
  casevault version                 Show version information
  casevault help                    Show this help

Global flags:
  --quiet, -q                       Suppress non-error output
  --verbose, -v                     Verbose operational logging
  --json                            Machine-readable output

Examples:
  casevault user register amayer
  casevault login amayer --remember
  casevault audit show --limit 100
  casevault audit export --format csv --output audit.csv
  casevault audit verify
`

// Parse reads os.Args and returns the command to run.
func Parse() (Command, Args) {
	args := os.Args[1:]
	parsed := Args{Options: make(map[string]string)}

	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--quiet" || arg == "-q":
			parsed.Quiet = true
		case arg == "--verbose" || arg == "-v":
			parsed.Verbose = true
		case arg == "--json":
			parsed.JSON = true
		case arg == "--remember":
			parsed.Options["remember"] = "true"
		case arg == "--help":
			positional = append(positional, "help")
		case arg == "--version":
			positional = append(positional, "version")
		case strings.HasPrefix(arg, "--"):
			key := strings.TrimPrefix(arg, "--")
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				parsed.Options[key] = args[i+1]
				i++
			} else {
				parsed.Options[key] = "true"
			}
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) == 0 {
		return CmdHelp, parsed
	}

	cmd := strings.ToLower(positional[0])
	positional = positional[1:]
	if len(positional) > 0 {
		parsed.Subcommand = positional[0]
		parsed.Raw = positional[1:]
	}

	switch cmd {
	case "login":
		return CmdLogin, parsed
	case "logout":
		return CmdLogout, parsed
	case "whoami":
		return CmdWhoami, parsed
	case "user", "users":
		return CmdUser, parsed
	case "session", "sessions":
		return CmdSession, parsed
	case "lockout":
		return CmdLockout, parsed
	case "audit":
		return CmdAudit, parsed
	case "version", "-V", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		return CmdHelp, parsed
	}
}

// App bundles the wired services a command handler needs.
type App struct {
	Config  *config.Config
	DB      *storage.DB
	Ledger  *audit.Ledger
	Auth    *security.AuthService
	Limiter *security.RateLimiter
	Persist security.SessionPersistence
}

// NewApp loads configuration, opens the database, and wires the audit
// ledger and authentication service.
func NewApp(args Args) (*App, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if args.Verbose {
		level = zerolog.DebugLevel
	}
	if args.Quiet {
		level = zerolog.ErrorLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ledger, err := audit.NewLedger(db.Audit(), audit.WithLogger(log))
	if err != nil {
		db.Close()
		return nil, err
	}

	persist := security.NewFileSessionStore(cfg.SessionDir())
	limiter := security.NewRateLimiter(
		security.WithMaxAttempts(cfg.Security.MaxLoginAttempts),
		security.WithWindow(cfg.LockoutWindow()),
	)
	auth := security.NewAuthService(db.Users(), db.Sessions(),
		security.WithLedger(ledger),
		security.WithPersistence(persist),
		security.WithAuthLogger(log),
		security.WithLimiter(limiter),
		security.WithSessionDurations(cfg.SessionDuration(), cfg.RememberMeDuration()),
	)

	return &App{
		Config:  cfg,
		DB:      db,
		Ledger:  ledger,
		Auth:    auth,
		Limiter: limiter,
		Persist: persist,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() error {
	return a.DB.Close()
}

// Run dispatches the parsed command and returns the process exit code.
func Run(cmd Command, args Args) int {
	switch cmd {
	case CmdVersion:
		fmt.Printf("casevault %s (%s, %s, %s/%s)\n", Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
		return 0
	case CmdHelp:
		fmt.Print(usageText)
		return 0
	}

	app, err := NewApp(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: ")+err.Error())
		return 1
	}
	defer app.Close()

	switch cmd {
	case CmdLogin:
		err = HandleLogin(app, args)
	case CmdLogout:
		err = HandleLogout(app, args)
	case CmdWhoami:
		err = HandleWhoami(app, args)
	case CmdUser:
		err = HandleUser(app, args)
	case CmdSession:
		err = HandleSession(app, args)
	case CmdLockout:
		err = HandleLockout(app, args)
	case CmdAudit:
		err = HandleAudit(app, args)
	default:
		fmt.Print(usageText)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}
