// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"testing"
)

func parseArgs(t *testing.T, args ...string) (Command, Args) {
	t.Helper()
	old := os.Args
	t.Cleanup(func() { os.Args = old })
	os.Args = append([]string{"casevault"}, args...)
	return Parse()
}

func TestParseCommands(t *testing.T) {
	cases := []struct {
		args []string
		want Command
	}{
		{nil, CmdHelp},
		{[]string{"help"}, CmdHelp},
		{[]string{"version"}, CmdVersion},
		{[]string{"login", "alice"}, CmdLogin},
		{[]string{"logout"}, CmdLogout},
		{[]string{"whoami"}, CmdWhoami},
		{[]string{"user", "register", "alice"}, CmdUser},
		{[]string{"session", "cleanup"}, CmdSession},
		{[]string{"lockout", "status", "alice"}, CmdLockout},
		{[]string{"lockout", "clear", "alice"}, CmdLockout},
		{[]string{"audit", "verify"}, CmdAudit},
		{[]string{"bogus"}, CmdHelp},
	}

	for _, tc := range cases {
		cmd, _ := parseArgs(t, tc.args...)
		if cmd != tc.want {
			t.Errorf("Parse(%v) = %v, want %v", tc.args, cmd, tc.want)
		}
	}
}

func TestParseSubcommandAndRaw(t *testing.T) {
	cmd, args := parseArgs(t, "user", "register", "alice")
	if cmd != CmdUser {
		t.Fatalf("cmd = %v", cmd)
	}
	if args.Subcommand != "register" {
		t.Errorf("Subcommand = %q, want register", args.Subcommand)
	}
	if len(args.Raw) != 1 || args.Raw[0] != "alice" {
		t.Errorf("Raw = %v, want [alice]", args.Raw)
	}
}

func TestParseFlags(t *testing.T) {
	cmd, args := parseArgs(t, "login", "alice", "--remember", "--quiet")
	if cmd != CmdLogin {
		t.Fatalf("cmd = %v", cmd)
	}
	if args.Subcommand != "alice" {
		t.Errorf("Subcommand = %q, want alice", args.Subcommand)
	}
	if args.Options["remember"] != "true" {
		t.Error("--remember not recorded")
	}
	if !args.Quiet {
		t.Error("--quiet not recorded")
	}
}

func TestParseOptionsWithValues(t *testing.T) {
	_, args := parseArgs(t, "audit", "export", "--format", "csv", "--output", "out.csv", "--limit", "10")
	if args.Options["format"] != "csv" {
		t.Errorf("format = %q", args.Options["format"])
	}
	if args.Options["output"] != "out.csv" {
		t.Errorf("output = %q", args.Options["output"])
	}
	if args.Options["limit"] != "10" {
		t.Errorf("limit = %q", args.Options["limit"])
	}
	if args.Subcommand != "export" {
		t.Errorf("Subcommand = %q", args.Subcommand)
	}
}
