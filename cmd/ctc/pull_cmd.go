package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/ctc/pkg/observability"
	"github.com/loomworks/ctc/pkg/policy"
)

// runPullCmd implements `ctc pull`.
//
// Finds a connectivity template by name in a blueprint, rebuilds the
// nested document from its policy graph, and prints it as YAML (or
// JSON with --json). The rebuilt document carries the template's
// policy id, so a later push replaces rather than duplicates it.
//
// Exit codes:
//
//	0 = template pulled
//	1 = no such template
//	2 = runtime error
func runPullCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("pull", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		blueprintID string
		name        string
		outFile     string
		snapshot    bool
		jsonOutput  bool
	)

	cmd.StringVar(&blueprintID, "blueprint", "", "Blueprint to pull from (REQUIRED)")
	cmd.StringVar(&name, "name", "", "Connectivity template name (REQUIRED)")
	cmd.StringVar(&outFile, "o", "", "Write the template to this file instead of stdout")
	cmd.BoolVar(&snapshot, "snapshot", false, "Record the pulled state in the snapshot database")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the template as JSON instead of YAML")

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

	provider := newProvider(ctx, cfg)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	opCtx, finish := provider.TrackOperation(ctx, "ctc.pull",
		observability.ReconcileOperation(blueprintID, name)...)
	tpl, diags, err := newReconciler(api).Pull(opCtx, blueprintID, name)
	finish(err)
	for _, d := range diags {
		_, _ = fmt.Fprintf(stderr, "Warning: %s: %s\n", d.Code, d.Message)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, policy.ErrNotFound) {
			return 1
		}
		return 2
	}

	var out []byte
	if jsonOutput {
		out, err = json.MarshalIndent(tpl, "", "  ")
		if err == nil {
			out = append(out, '\n')
		}
	} else {
		out, err = yaml.Marshal(tpl)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode template: %v\n", err)
		return 2
	}

	if err := writeOutput(outFile, out, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot write %s: %v\n", outFile, err)
		return 2
	}
	if outFile != "" && outFile != "-" {
		_, _ = fmt.Fprintf(stdout, "✅ Template written to %s\n", outFile)
	}

	if snapshot {
		saveSnapshot(ctx, api, cfg, blueprintID, tpl, stderr)
	}
	return 0
}
