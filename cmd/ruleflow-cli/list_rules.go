package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/grafana/ruleflow/pkg/store/postgres"
)

// runListRules prints every persisted rule in a go-pretty table, modeled on
// BackendScheduler.StatusHandler's table output.
func runListRules(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list-rules", flag.ExitOnError)
	dsn := dsnFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewRuleStore(pool)
	rules, err := store.List(ctx)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"id", "name", "is_model", "has_json"})
	for _, r := range rules {
		t.AppendRow(table.Row{r.ID, r.Name, r.IsModel, r.RuleJSON != ""})
	}
	t.AppendSeparator()
	fmt.Println()
	t.Render()
	return nil
}
