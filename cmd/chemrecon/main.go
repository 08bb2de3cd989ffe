package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chemrecon/internal/config"
	"chemrecon/internal/logging"
)

type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"match":          runMatch,
	"analytes":       runAnalytes,
	"calibrate":      runCalibrate,
	"compare":        runCompare,
	"report":         runReport,
	"import:preview": runImportPreview,
	"import:apply":   runImportApply,
	"stats":          runStats,
	"fetch":          runFetch,
	"serve":          runServe,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	must(err)
	logger := logging.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(cmd(ctx, &app{cfg: cfg, logger: logger, out: os.Stdout}, os.Args[2:]))
}

func usage() {
	fmt.Println("usage: chemrecon <command>")
	fmt.Println("commands:")
	fmt.Println("  match --runs=<dir|file> [--out=results.xlsx] [--csv=results.csv] [--sqlite=results.db]")
	fmt.Println("  analytes --run=<file>")
	fmt.Println("  calibrate --run=<file> --analyte=Mg [--channel=<column>] [--exclude=0,3]")
	fmt.Println("  compare --run=<file> --analyte=Mg")
	fmt.Println("  report --run=<file> [--exclude='Mg:0,3;Ca:1'] [--out=<dir>] [--sqlite=report.db]")
	fmt.Println("  import:preview --run=<file> [--json]")
	fmt.Println("  import:apply --run=<file>")
	fmt.Println("  stats --file=<file> [--sheet=<name>] [--json] [--csv=<out>]")
	fmt.Println("  fetch [--label=INBOX] [--max=20]")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
