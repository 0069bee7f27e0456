package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `flowrun executes trigger-rooted workflow graphs.

Usage:
  flowrun run -f workflow.json -user ID [-trigger payload.json] [-run-id ID] [-follow] [-archive]
  flowrun validate -f workflow.json
  flowrun graph -f workflow.json [-result result.json] [-format mermaid|ascii|png|svg] [-o file]
  flowrun providers
  flowrun credentials add|list|invalidate|delete [flags]
  flowrun runs list|show|events|replay [flags]
  flowrun init [flags]
  flowrun mcp
  flowrun version
`

// errSilent marks failures whose output has already been written.
var errSilent = errors.New("silent failure")

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"run":         cmdRun,
	"validate":    cmdValidate,
	"graph":       cmdGraph,
	"providers":   cmdProviders,
	"credentials": cmdCredentials,
	"runs":        cmdRuns,
	"mcp":         cmdMCP,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name, rest := args[0], args[1:]
	switch name {
	case "version", "-version", "--version":
		printVersion(stdout)
		return 0
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	case "init":
		if err := cmdInit(rest, stdout); err != nil {
			return report(stderr, err)
		}
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}

	cfg, err := loadConfig(settingsPath(), nil)
	if err != nil {
		return report(stderr, err)
	}
	a, err := newApp(cfg, stdout, stderr)
	if err != nil {
		return report(stderr, err)
	}
	defer a.Close()

	if err := cmd(ctx, a, rest); err != nil {
		return report(stderr, err)
	}
	return 0
}

func report(stderr io.Writer, err error) int {
	switch {
	case errors.Is(err, errSilent):
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}
