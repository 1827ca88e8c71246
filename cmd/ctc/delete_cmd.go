package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/loomworks/ctc/pkg/observability"
	"github.com/loomworks/ctc/pkg/plan"
)

// runDeleteCmd implements `ctc delete`.
//
// Removes a connectivity template from a blueprint by name, releasing
// its application point assignments first. A template that is already
// absent is success, not an error.
//
// Exit codes:
//
//	0 = template absent (deleted now or already gone)
//	1 = delete failed
//	2 = runtime error
func runDeleteCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("delete", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		blueprintID string
		name        string
		jsonOutput  bool
	)

	cmd.StringVar(&blueprintID, "blueprint", "", "Blueprint to delete from (REQUIRED)")
	cmd.StringVar(&name, "name", "", "Connectivity template name (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if blueprintID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --blueprint is required")
		return 2
	}
	if name == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --name is required")
		return 2
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

	provider := newProvider(ctx, cfg)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	opCtx, finish := provider.TrackOperation(ctx, "ctc.delete",
		observability.ReconcileOperation(blueprintID, name)...)
	result, err := newReconciler(api).EnsureAbsent(opCtx, blueprintID, name)
	finish(err)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else if result.Action == plan.ActionDelete {
		_, _ = fmt.Fprintf(stdout, "✅ Deleted %q (id %s)\n", name, result.CTID)
	} else {
		_, _ = fmt.Fprintf(stdout, "✅ %q is already absent\n", name)
	}
	return 0
}
