package main

import (
	"fmt"
	"io"
	"os"
)

const appVersion = "0.3.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "build", "compile":
		return runBuildCmd(args[2:], stdout, stderr)
	case "parse":
		return runParseCmd(args[2:], stdout, stderr)
	case "diff":
		return runDiffCmd(args[2:], stdout, stderr)
	case "push":
		return runPushCmd(args[2:], stdout, stderr)
	case "pull":
		return runPullCmd(args[2:], stdout, stderr)
	case "delete":
		return runDeleteCmd(args[2:], stdout, stderr)
	case "snapshots":
		return runSnapshotsCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "ctc %s\n", appVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sctc %s%s\n", ColorBold+ColorBlue, appVersion, ColorReset)
	fmt.Fprintf(w, "%sConnectivity template compiler for Apstra policy graphs.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  ctc <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "LOCAL")
	printCommand(w, "validate", "Check a template document (-f, --json)")
	printCommand(w, "build", "Compile a template to a policy graph (-f, -o)")
	printCommand(w, "parse", "Recover a template from a policy export (-f, --json)")
	printCommand(w, "diff", "Compare a template against a policy export (-f, --current)")

	printSection(w, "BLUEPRINT")
	printCommand(w, "push", "Create or replace a template (--blueprint, -f)")
	printCommand(w, "pull", "Fetch a template by name (--blueprint, --name)")
	printCommand(w, "delete", "Remove a template by name (--blueprint, --name)")

	printSection(w, "UTILITIES")
	printCommand(w, "snapshots", "List captured template snapshots (--blueprint)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
