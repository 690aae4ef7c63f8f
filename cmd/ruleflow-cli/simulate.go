package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grafana/ruleflow/pkg/engine"
	"github.com/grafana/ruleflow/pkg/store/postgres"
)

// runSimulate loads a rule by id, executes it against the live sample store,
// and always rolls back, letting an operator check what a rule would do
// without mutating his_valeur.
func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	dsn := dsnFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: simulate [-dsn ...] <id>")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rule id %q: %w", fs.Arg(0), err)
	}

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewRuleStore(pool)
	record, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("rule %d not found", id)
	}

	tx, err := postgres.BeginTx(ctx, pool)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	gw := postgres.NewGatewayTx(tx)
	summary, err := engine.Execute(ctx, gw, []byte(record.RuleJSON))
	if err != nil {
		return err
	}

	fmt.Printf("aligned_timestamps=%d output_samples=%d source_variables=%v\n",
		summary.AlignedTimestamps, summary.OutputSamples, summary.SourceVariables)
	fmt.Println("rolled back, no samples written")
	return nil
}
