// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - Session maintenance commands.
//
// Command: session [subcommand]
//
// Subcommands:
//   cleanup (default)   Remove expired sessions from the store
//
// Examples:
//   casevault session cleanup
package cli

import (
	"fmt"
)

// HandleSession dispatches session subcommands.
func HandleSession(app *App, args Args) error {
	switch args.Subcommand {
	case "", "cleanup":
		return runSessionCleanup(app, args)
	default:
		return fmt.Errorf("usage: casevault session cleanup")
	}
}

func runSessionCleanup(app *App, args Args) error {
	removed, err := app.Auth.CleanupExpiredSessions()
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("Removed %d expired session(s).", removed)))
	}
	return nil
}
