package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/loomworks/ctc/pkg/compile"
	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/policy"
)

// runBuildCmd implements `ctc build`.
//
// Compiles a template document into the flat policy graph the API's
// obj-policy-import endpoint accepts. The graph goes to stdout unless
// -o names a file.
//
// Exit codes:
//
//	0 = graph built
//	1 = template is invalid
//	2 = runtime error
func runBuildCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("build", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file    string
		outFile string
	)

	cmd.StringVar(&file, "f", "", "Template file, YAML or JSON, - for stdin (REQUIRED)")
	cmd.StringVar(&outFile, "o", "", "Write the policy graph to this file instead of stdout")

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
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	graph, rootID := compile.NewBuilder().Build(tpl)
	out, err := json.MarshalIndent(policy.WrapPolicies(graph), "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode policy graph: %v\n", err)
		return 2
	}
	out = append(out, '\n')

	if err := writeOutput(outFile, out, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot write %s: %v\n", outFile, err)
		return 2
	}
	if outFile != "" && outFile != "-" {
		_, _ = fmt.Fprintf(stdout, "✅ Policy graph written to %s\n", outFile)
		_, _ = fmt.Fprintf(stdout, "Root: %s\n", rootID)
		_, _ = fmt.Fprintf(stdout, "Policies: %d\n", len(graph))
	}
	return 0
}
