package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/observability"
	"github.com/loomworks/ctc/pkg/plan"
)

// runPushCmd implements `ctc push`.
//
// Makes a blueprint's connectivity template match the given document:
// creates it when absent, replaces it when it drifted, leaves it alone
// when it already matches. Replacement keeps existing application
// point assignments. --dry-run reports what would happen without
// touching the blueprint.
//
// Exit codes:
//
//	0 = blueprint matches the document (possibly after changes)
//	1 = push failed
//	2 = runtime error
func runPushCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("push", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file        string
		blueprintID string
		dryRun      bool
		snapshot    bool
		jsonOutput  bool
	)

	cmd.StringVar(&file, "f", "", "Template file, YAML or JSON, - for stdin (REQUIRED)")
	cmd.StringVar(&blueprintID, "blueprint", "", "Blueprint to push into (REQUIRED)")
	cmd.BoolVar(&dryRun, "dry-run", false, "Report the pending action without applying it")
	cmd.BoolVar(&snapshot, "snapshot", false, "Record the pushed state in the snapshot database")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -f is required")
		return 2
	}
	if blueprintID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --blueprint is required")
		return 2
	}

	data, err := readInput(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read %s: %v\n", file, err)
		return 2
	}
	tpl, err := ct.DecodeBytes(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	api, cfg, err := newAPIClient(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := api.CheckVersion(ctx, minServerVersion); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	rec := newReconciler(api)

	if dryRun {
		diff, _, err := rec.Diff(ctx, blueprintID, tpl)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if jsonOutput {
			out, _ := json.MarshalIndent(diff, "", "  ")
			_, _ = fmt.Fprintln(stdout, string(out))
		} else {
			printDiff(stdout, tpl.Name, diff)
		}
		return 0
	}

	provider := newProvider(ctx, cfg)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	opCtx, finish := provider.TrackOperation(ctx, "ctc.push",
		observability.ReconcileOperation(blueprintID, tpl.Name)...)
	result, err := rec.EnsurePresent(opCtx, blueprintID, tpl)
	finish(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		switch result.Action {
		case plan.ActionCreate:
			_, _ = fmt.Fprintf(stdout, "✅ Created %q (id %s)\n", tpl.Name, result.CTID)
		case plan.ActionUpdate:
			_, _ = fmt.Fprintf(stdout, "✅ Replaced %q (id %s)\n", tpl.Name, result.CTID)
			for _, r := range result.Reasons {
				_, _ = fmt.Fprintf(stdout, "  - %s changed\n", r)
			}
		default:
			_, _ = fmt.Fprintf(stdout, "✅ No changes, %q is up to date (id %s)\n", tpl.Name, result.CTID)
		}
	}

	if snapshot && result.Template != nil {
		saveSnapshot(ctx, api, cfg, blueprintID, result.Template, stderr)
	}
	return 0
}
