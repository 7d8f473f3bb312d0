// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// user_cmd.go - Account management commands.
//
// Command: user [subcommand]
//
// Subcommands:
//   register <username>    Create an account (prompts for email/password)
//   passwd <username>      Change a password (prompts for old and new)
//   deactivate <username>  Deactivate an account
//   activate <username>    Reactivate an account
//
// Examples:
//   casevault user register amayer
//   casevault user passwd amayer
//   casevault user deactivate amayer
package cli

import (
	"fmt"

	"github.com/jeranaias/casevault/internal/security"
)

// HandleUser dispatches user subcommands.
func HandleUser(app *App, args Args) error {
	name := ""
	if len(args.Raw) > 0 {
		name = args.Raw[0]
	}

	switch args.Subcommand {
	case "register":
		return runUserRegister(app, args, name)
	case "passwd":
		return runUserPasswd(app, args, name)
	case "deactivate":
		return runUserSetActive(app, args, name, false)
	case "activate":
		return runUserSetActive(app, args, name, true)
	default:
		return fmt.Errorf("usage: casevault user <register|passwd|deactivate|activate> <username>")
	}
}

func runUserRegister(app *App, args Args, username string) error {
	if username == "" {
		return fmt.Errorf("usage: casevault user register <username>")
	}

	email, err := PromptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := PromptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := PromptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	user, err := app.Auth.Register(username, email, password)
	if err != nil {
		return err
	}

	if !args.Quiet {
		fmt.Println(SuccessStyle.Render("Registered ") + ValueStyle.Render(user.Username))
	}
	return nil
}

func runUserPasswd(app *App, args Args, username string) error {
	if username == "" {
		return fmt.Errorf("usage: casevault user passwd <username>")
	}

	user, err := findUser(app, username)
	if err != nil {
		return err
	}

	oldPassword, err := PromptPassword("Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := PromptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := PromptPassword("Confirm new password: ")
	if err != nil {
		return err
	}
	if newPassword != confirm {
		return fmt.Errorf("passwords do not match")
	}

	if err := app.Auth.ChangePassword(user.ID, oldPassword, newPassword); err != nil {
		return err
	}

	if !args.Quiet {
		fmt.Println(SuccessStyle.Render("Password changed."))
		fmt.Println(DimStyle.Render("All sessions for this account were revoked."))
	}
	return nil
}

func runUserSetActive(app *App, args Args, username string, active bool) error {
	if username == "" {
		return fmt.Errorf("usage: casevault user <deactivate|activate> <username>")
	}

	user, err := findUser(app, username)
	if err != nil {
		return err
	}
	if err := app.DB.Users().UpdateActiveStatus(user.ID, active); err != nil {
		return err
	}

	// A deactivated account must not keep usable sessions around.
	if !active {
		if _, err := app.DB.Sessions().DeleteByUserID(user.ID); err != nil {
			return err
		}
	}

	if !args.Quiet {
		verb := "deactivated"
		if active {
			verb = "activated"
		}
		fmt.Println(SuccessStyle.Render("Account "+verb+": ") + ValueStyle.Render(user.Username))
	}
	return nil
}

func findUser(app *App, username string) (*security.User, error) {
	normalized, err := security.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	user, err := app.DB.Users().FindByUsername(normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, security.ErrUserNotFound
	}
	return user, nil
}
