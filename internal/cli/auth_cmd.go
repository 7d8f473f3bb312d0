// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Login, logout, and session inspection commands.
//
// Command: login <username> [--remember]
// Command: logout
// Command: whoami
//
// Examples:
//   casevault login amayer            Log in with a 24h session
//   casevault login amayer --remember Log in with a 30-day session
//   casevault logout                  End the persisted session
//   casevault whoami                  Show the restored session
package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/casevault/internal/security"
)

// HandleLogin prompts for a password and starts a session. With
// --remember the session is persisted for restore across restarts.
func HandleLogin(app *App, args Args) error {
	username := args.Subcommand
	if username == "" {
		return fmt.Errorf("usage: casevault login <username> [--remember]")
	}
	remember := args.Options["remember"] == "true"

	password, err := PromptPassword("Password: ")
	if err != nil {
		return err
	}

	user, session, err := app.Auth.Login(username, password, remember, "local", "casevault-cli")
	if err != nil {
		var authErr *security.AuthError
		if errors.As(err, &authErr) && authErr.Kind == security.KindRateLimited {
			return fmt.Errorf("%s", authErr.Message)
		}
		return err
	}

	if !args.Quiet {
		fmt.Println(SuccessStyle.Render("Logged in as ") + ValueStyle.Render(user.Username))
		fmt.Println(LabelStyle.Render("Session expires:") + ValueStyle.Render(session.ExpiresAt.Local().Format("2006-01-02 15:04")))
		if remember {
			fmt.Println(DimStyle.Render("Session persisted; restore with 'casevault whoami'."))
		}
	}
	return nil
}

// HandleLogout ends the persisted session, if one exists.
func HandleLogout(app *App, args Args) error {
	sessionID, err := app.Persist.RetrieveSessionID()
	if err != nil {
		return err
	}
	if sessionID == "" {
		if !args.Quiet {
			fmt.Println(DimStyle.Render("No persisted session."))
		}
		return nil
	}

	if err := app.Auth.Logout(sessionID); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Println(SuccessStyle.Render("Logged out."))
	}
	return nil
}

// HandleWhoami restores the persisted session and reports its owner.
func HandleWhoami(app *App, args Args) error {
	user, session, err := app.Auth.RestorePersistedSession()
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Println(DimStyle.Render("Not logged in."))
		return nil
	}

	fmt.Println(TitleStyle.Render("Session"))
	fmt.Println(LabelStyle.Render("User:") + ValueStyle.Render(user.Username))
	fmt.Println(LabelStyle.Render("Role:") + ValueStyle.Render(user.Role))
	fmt.Println(LabelStyle.Render("Expires:") + ValueStyle.Render(session.ExpiresAt.Local().Format("2006-01-02 15:04")))
	if session.RememberMe {
		fmt.Println(LabelStyle.Render("Remember me:") + ValueStyle.Render("yes"))
	}
	return nil
}
