package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/loomworks/ctc/pkg/ct"
)

// runValidateCmd implements `ctc validate`.
//
// Decodes a connectivity template document and checks it against the
// document schema and the per-type primitive nesting rules. Nothing is
// sent anywhere.
//
// Exit codes:
//
//	0 = template is valid
//	1 = template is invalid
//	2 = runtime error
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file       string
		jsonOutput bool
	)

	cmd.StringVar(&file, "f", "", "Template file, YAML or JSON, - for stdin (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -f is required")
		return 2
	}

	data, err := readInput(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read %s: %v\n", file, err)
		return 2
	}

	tpl, err := ct.DecodeBytes(data)
	if err != nil {
		if jsonOutput {
			out, _ := json.MarshalIndent(map[string]any{"valid": false, "error": err.Error()}, "", "  ")
			_, _ = fmt.Fprintln(stdout, string(out))
		} else {
			_, _ = fmt.Fprintf(stdout, "❌ Template is invalid\n")
			_, _ = fmt.Fprintf(stdout, "  %v\n", err)
		}
		return 1
	}

	instances := 0
	for _, insts := range tpl.Primitives {
		instances += len(insts)
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]any{
			"valid":      true,
			"name":       tpl.Name,
			"type":       tpl.Type,
			"primitives": instances,
		}, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
	} else {
		_, _ = fmt.Fprintf(stdout, "✅ Template is valid\n")
		_, _ = fmt.Fprintf(stdout, "Name: %s\n", tpl.Name)
		_, _ = fmt.Fprintf(stdout, "Type: %s\n", tpl.Type)
		_, _ = fmt.Fprintf(stdout, "Primitives: %d top-level instance(s)\n", instances)
	}
	return 0
}
