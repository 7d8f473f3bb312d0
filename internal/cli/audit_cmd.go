// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// audit_cmd.go - Audit log management commands.
//
// Command: audit [subcommand]
//
// Subcommands:
//   show (default)      Display recent audit log entries
//   verify              Verify the integrity chain
//   export              Export the audit log
//
// Examples:
//   casevault audit                         Show recent entries
//   casevault audit show --limit 100        Show last 100 entries
//   casevault audit show --type LOGIN       Filter by event type
//   casevault audit verify                  Verify chain integrity
//   casevault audit export --format json    Export as JSON
//   casevault audit export --format csv     Export as CSV
//   casevault audit export --output out.csv Export to file
//
// Flags:
//   --limit N           Number of entries (default: 50 for show)
//   --type TYPE         Filter by event type
//   --format FORMAT     Export format: json, csv (default: json)
//   --output FILE       Export to file (default: stdout)
package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jeranaias/casevault/internal/audit"
)

// HandleAudit dispatches audit subcommands.
func HandleAudit(app *App, args Args) error {
	switch args.Subcommand {
	case "", "show":
		return runAuditShow(app, args)
	case "verify":
		return runAuditVerify(app, args)
	case "export":
		return runAuditExport(app, args)
	default:
		return fmt.Errorf("usage: casevault audit [show|verify|export]")
	}
}

func auditFilter(args Args, defaultLimit int) (audit.Filter, error) {
	filter := audit.Filter{
		EventType: args.Options["type"],
		Limit:     defaultLimit,
	}
	if raw, ok := args.Options["limit"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, fmt.Errorf("invalid --limit %q", raw)
		}
		filter.Limit = n
	}
	return filter, nil
}

func runAuditShow(app *App, args Args) error {
	filter, err := auditFilter(args, 50)
	if err != nil {
		return err
	}

	entries, err := app.Ledger.Query(filter)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println(DimStyle.Render("No audit entries."))
		return nil
	}

	fmt.Println(TitleStyle.Render("Audit Log"))
	for i := range entries {
		e := &entries[i]
		status := SuccessStyle.Render("ok")
		if !e.Success {
			status = ErrorStyle.Render("fail")
		}
		line := fmt.Sprintf("%6d  %s  %-16s %-6s %s",
			e.ID,
			e.Timestamp.Local().Format(time.DateTime),
			e.EventType,
			status,
			DimStyle.Render(e.ResourceType+"/"+e.ResourceID),
		)
		fmt.Println(line)
		if e.ErrorMessage != "" {
			fmt.Println(DimStyle.Render("        " + e.ErrorMessage))
		}
	}
	return nil
}

func runAuditVerify(app *App, args Args) error {
	report, err := app.Ledger.VerifyIntegrity()
	if err != nil {
		return err
	}

	fmt.Println(TitleStyle.Render("Audit Chain Verification"))
	fmt.Println(LabelStyle.Render("Entries checked:") + ValueStyle.Render(strconv.Itoa(report.Entries)))

	if report.Intact {
		fmt.Println(SuccessStyle.Render("Chain intact."))
		return nil
	}

	fmt.Println(ErrorStyle.Render("CHAIN BROKEN") + DimStyle.Render(fmt.Sprintf(" (first break at entry %d)", report.FirstBreakID)))
	for _, issue := range report.Issues {
		fmt.Println(WarningStyle.Render("  ! ") + ValueStyle.Render(issue))
	}
	return fmt.Errorf("audit chain verification failed")
}

func runAuditExport(app *App, args Args) error {
	format := audit.FormatJSON
	if raw, ok := args.Options["format"]; ok {
		parsed, err := audit.ParseFormat(raw)
		if err != nil {
			return err
		}
		format = parsed
	}

	filter, err := auditFilter(args, 0)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path, ok := args.Options["output"]; ok && path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := app.Ledger.Export(out, format, filter); err != nil {
		return err
	}

	if out != os.Stdout && !args.Quiet {
		fmt.Println(SuccessStyle.Render("Exported to ") + ValueStyle.Render(args.Options["output"]))
	}
	return nil
}
