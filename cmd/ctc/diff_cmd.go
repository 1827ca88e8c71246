package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/parse"
	"github.com/loomworks/ctc/pkg/plan"
	"github.com/loomworks/ctc/pkg/policy"
)

// runDiffCmd implements `ctc diff`.
//
// Compares a desired template against current state and reports the
// action a push would take. Current state comes from a saved export
// file (--current) or live from a blueprint (--blueprint); exactly one
// of the two must be given.
//
// Exit codes:
//
//	0 = no changes
//	1 = changes pending
//	2 = runtime error
func runDiffCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("diff", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file        string
		currentFile string
		blueprintID string
		jsonOutput  bool
	)

	cmd.StringVar(&file, "f", "", "Desired template file, YAML or JSON, - for stdin (REQUIRED)")
	cmd.StringVar(&currentFile, "current", "", "Policy export file holding the current state")
	cmd.StringVar(&blueprintID, "blueprint", "", "Blueprint to read the current state from")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the diff as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -f is required")
		return 2
	}
	if (currentFile == "") == (blueprintID == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --current or --blueprint is required")
		return 2
	}

	data, err := readInput(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read %s: %v\n", file, err)
		return 2
	}
	desired, err := ct.DecodeBytes(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var diff *plan.Diff
	if currentFile != "" {
		diff, err = diffAgainstFile(desired, currentFile, stderr)
	} else {
		diff, err = diffAgainstBlueprint(desired, blueprintID, stderr)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(diff, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		printDiff(stdout, desired.Name, diff)
	}

	if diff.Changed() {
		return 1
	}
	return 0
}

func diffAgainstFile(desired *ct.Template, path string, stderr io.Writer) (*plan.Diff, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %v", path, err)
	}
	policies, err := policy.DecodePolicyBytes(data)
	if err != nil {
		return nil, err
	}
	current, diags := parse.Parse(policies)
	for _, d := range diags {
		_, _ = fmt.Fprintf(stderr, "Warning: %s: %s\n", d.Code, d.Message)
	}
	return plan.Evaluate(desired, current)
}

func diffAgainstBlueprint(desired *ct.Template, blueprintID string, stderr io.Writer) (*plan.Diff, error) {
	ctx := context.Background()
	api, _, err := newAPIClient(ctx, stderr)
	if err != nil {
		return nil, err
	}
	diff, _, err := newReconciler(api).Diff(ctx, blueprintID, desired)
	return diff, err
}

// printDiff renders a diff the way a reviewer reads it: the action
// first, then what drove it.
func printDiff(w io.Writer, name string, diff *plan.Diff) {
	switch diff.Action {
	case plan.ActionNone:
		_, _ = fmt.Fprintf(w, "✅ %q is up to date\n", name)
	case plan.ActionCreate:
		_, _ = fmt.Fprintf(w, "Would create %q\n", name)
	default:
		_, _ = fmt.Fprintf(w, "Would replace %q\n", name)
		for _, r := range diff.Reasons {
			_, _ = fmt.Fprintf(w, "  - %s changed\n", r)
		}
	}
}
