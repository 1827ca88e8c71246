package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/ctc/pkg/parse"
	"github.com/loomworks/ctc/pkg/policy"
)

// runParseCmd implements `ctc parse`.
//
// Reads a policy export, rebuilds the nested template document, and
// prints it as YAML (or JSON with --json). Policy objects the walk has
// to skip are reported as warnings on stderr; they never fail the
// command. The export does not record the template type, so the
// rebuilt document carries an empty one.
//
// Exit codes:
//
//	0 = template rebuilt
//	1 = export holds no visible template
//	2 = runtime error
func runParseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("parse", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file       string
		outFile    string
		jsonOutput bool
	)

	cmd.StringVar(&file, "f", "", "Policy export file, JSON, - for stdin (REQUIRED)")
	cmd.StringVar(&outFile, "o", "", "Write the template to this file instead of stdout")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the template as JSON instead of YAML")

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

	policies, err := policy.DecodePolicyBytes(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	tpl, diags := parse.Parse(policies)
	for _, d := range diags {
		_, _ = fmt.Fprintf(stderr, "Warning: %s: %s\n", d.Code, d.Message)
	}
	if tpl == nil {
		_, _ = fmt.Fprintln(stderr, "Error: export holds no visible connectivity template")
		return 1
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
	return 0
}
