// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lockout_cmd.go - Login throttle inspection and reset.
//
// Command: lockout [subcommand]
//
// Subcommands:
//   status [name] (default)   Show throttle state for one account, or
//                             limiter totals when no name is given
//   clear <name>              Reset an account's throttle window
//
// Examples:
//   casevault lockout status amayer
//   casevault lockout clear amayer
package cli

import (
	"fmt"
	"time"
)

// HandleLockout dispatches lockout subcommands.
func HandleLockout(app *App, args Args) error {
	switch args.Subcommand {
	case "", "status":
		return runLockoutStatus(app, args)
	case "clear":
		return runLockoutClear(app, args)
	default:
		return fmt.Errorf("usage: casevault lockout [status|clear] [username]")
	}
}

func runLockoutStatus(app *App, args Args) error {
	if len(args.Raw) == 0 {
		stats := app.Limiter.Stats()
		fmt.Println(TitleStyle.Render("Login throttle"))
		fmt.Println(LabelStyle.Render("Tracked:") + ValueStyle.Render(fmt.Sprintf("%d account(s)", stats.TrackedIdentities)))
		fmt.Println(LabelStyle.Render("Blocked:") + ValueStyle.Render(fmt.Sprintf("%d account(s)", stats.BlockedIdentities)))
		return nil
	}

	username := args.Raw[0]
	status := app.Limiter.Status(username)
	if status == nil {
		fmt.Println(DimStyle.Render("No failed attempts in the current window."))
		return nil
	}

	fmt.Println(TitleStyle.Render("Login throttle"))
	fmt.Println(LabelStyle.Render("Account:") + ValueStyle.Render(status.Identity))
	fmt.Println(LabelStyle.Render("Failures:") + ValueStyle.Render(fmt.Sprintf("%d", status.Count)))
	fmt.Println(LabelStyle.Render("Remaining:") + ValueStyle.Render(fmt.Sprintf("%d", status.Remaining)))
	fmt.Println(LabelStyle.Render("Window ends:") + ValueStyle.Render(status.WindowEnd.Local().Format("2006-01-02 15:04:05")))
	if status.Blocked {
		fmt.Println(ErrorStyle.Render("BLOCKED") + DimStyle.Render(fmt.Sprintf(" (retry in %s)", status.RetryAfter.Round(time.Second))))
	}
	return nil
}

func runLockoutClear(app *App, args Args) error {
	if len(args.Raw) == 0 {
		return fmt.Errorf("usage: casevault lockout clear <username>")
	}
	username := args.Raw[0]
	app.Limiter.Clear(username)
	if !args.Quiet {
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("Cleared throttle window for %s.", username)))
	}
	return nil
}
