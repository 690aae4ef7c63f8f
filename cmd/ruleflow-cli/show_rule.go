package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"

	"github.com/grafana/ruleflow/pkg/engine"
	"github.com/grafana/ruleflow/pkg/store/postgres"
)

// runShowRule dumps one rule's blocks and links with tablewriter, mirroring
// cmd-list-blocks.go's dump style (a distinct renderer from list-rules').
func runShowRule(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show-rule", flag.ExitOnError)
	dsn := dsnFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: show-rule [-dsn ...] <id>")
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

	rule, err := engine.ParseRule([]byte(record.RuleJSON))
	if err != nil {
		return fmt.Errorf("rule %d has malformed json: %w", id, err)
	}

	fmt.Printf("rule %d: %s\n\n", record.ID, record.Name)

	blockRows := make([][]string, 0, len(rule.Blocks))
	for i, b := range rule.Blocks {
		blockRows = append(blockRows, []string{
			strconv.Itoa(i + 1),
			string(b.Class),
		})
	}
	blockTable := tablewriter.NewWriter(os.Stdout)
	blockTable.SetHeader([]string{"block_id", "class"})
	blockTable.AppendBulk(blockRows)
	blockTable.Render()

	fmt.Println()

	linkRows := make([][]string, 0, len(rule.Links))
	for _, l := range rule.Links {
		linkRows = append(linkRows, []string{strconv.Itoa(int(l.Parent)), strconv.Itoa(int(l.Child))})
	}
	linkTable := tablewriter.NewWriter(os.Stdout)
	linkTable.SetHeader([]string{"parent", "child"})
	linkTable.AppendBulk(linkRows)
	linkTable.Render()
	return nil
}
