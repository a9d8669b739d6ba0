// Command anchorchain anchors resurrection packets on an EVM ledger, verifies
// them and serves the HTTP API.
package main

import (
	"fmt"
	"io"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success (or verified)
//	1 = operation failed, or not verified
//	2 = usage, configuration or runtime error
//	3 = confirmation timeout: the transaction may still land
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "anchor":
		return runAnchorCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "events":
		return runEventsCmd(args[2:], stdout, stderr)
	case "reconcile":
		return runReconcileCmd(args[2:], stdout, stderr)
	case "info":
		return runInfoCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "anchorchain %s\n", version)
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
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sanchorchain %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	_, _ = fmt.Fprintf(w, "%sNotarize agent resurrections on an EVM ledger.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  anchorchain <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "LEDGER")
	printCommand(w, "anchor", "Record a resurrection packet (--agent, --source, --target, --identity, --mission)")
	printCommand(w, "verify", "Verify a packet was recorded (--from-block, --json)")
	printCommand(w, "events", "List recorded events (--agent, --from-block, --to-block)")
	printCommand(w, "reconcile", "Resolve pending and unknown journal entries")
	printCommand(w, "info", "Show the bound contract and network")

	printSection(w, "SERVICE")
	printCommand(w, "serve", "Run the HTTP API")
	printCommand(w, "health", "Check that the ledger is reachable")
	printCommand(w, "version", "Print the version")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sConfiguration is read from the environment (RPC_URL, ANCHORCHAIN_DESCRIPTOR, ANCHORCHAIN_PK, ...).%s\n", ColorGray, ColorReset)
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorCyan, name, ColorReset, desc)
}
