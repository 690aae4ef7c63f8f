package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list-rules":
		err = runListRules(context.Background(), args)
	case "show-rule":
		err = runShowRule(context.Background(), args)
	case "simulate":
		err = runSimulate(context.Background(), args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ruleflow-cli <list-rules|show-rule|simulate> [flags]")
}

func dsnFlag(fs *flag.FlagSet) *string {
	return fs.String("dsn", os.Getenv("RULEFLOW_POSTGRES_DSN"), "Postgres connection string")
}
