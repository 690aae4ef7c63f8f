package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/grafana/ruleflow/pkg/engine"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so a Gateway can run
// inside the caller's transaction instead of always going through the pool
// directly.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Gateway is the Postgres-backed implementation of engine.Gateway. It
// operates against his_valeur, one row per (variable, timestamp), matching
// the original schema's qualification column (0 unqualified, 1 qualified).
type Gateway struct {
	db querier
}

// NewGateway wraps a pool for untransacted use.
func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{db: pool}
}

// NewGatewayTx wraps an in-flight transaction. Commit/rollback remain the
// caller's responsibility; Execute never calls either.
func NewGatewayTx(tx pgx.Tx) *Gateway {
	return &Gateway{db: tx}
}

func (g *Gateway) LoadUnqualified(ctx context.Context, id engine.VariableID) ([]engine.Sample, error) {
	rows, err := g.db.Query(ctx, `
		SELECT date_acquisition, val_valide
		FROM his_valeur
		WHERE id_variable = $1 AND id_qualification = $2
	`, int64(id), qualificationUnqualified)
	if err != nil {
		return nil, errors.Wrapf(err, "querying unqualified samples for variable %d", id)
	}
	defer rows.Close()

	var out []engine.Sample
	for rows.Next() {
		var ts time.Time
		var val *float64
		if err := rows.Scan(&ts, &val); err != nil {
			return nil, errors.Wrapf(err, "scanning unqualified sample row for variable %d", id)
		}
		out = append(out, engine.Sample{Timestamp: ts, Value: val})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterating unqualified samples for variable %d", id)
	}
	return out, nil
}

// InsertIfAbsent mirrors the original's "IF NOT EXISTS ... INSERT" guard as a
// single statement: ON CONFLICT DO NOTHING against the (id_variable,
// date_acquisition) primary key. val_brute and val_valide are both set to
// value, matching the original (a computed output has no separate raw
// reading).
func (g *Gateway) InsertIfAbsent(ctx context.Context, id engine.VariableID, ts time.Time, value float64) error {
	_, err := g.db.Exec(ctx, `
		INSERT INTO his_valeur (id_variable, date_acquisition, id_qualification, val_brute, val_valide)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id_variable, date_acquisition) DO NOTHING
	`, int64(id), ts, qualificationQualified, value)
	if err != nil {
		return errors.Wrapf(err, "inserting variable %d at %s", id, ts)
	}
	return nil
}

func (g *Gateway) MarkQualified(ctx context.Context, id engine.VariableID, ts time.Time) error {
	_, err := g.db.Exec(ctx, `
		UPDATE his_valeur
		SET id_qualification = $3
		WHERE id_variable = $1 AND date_acquisition = $2 AND id_qualification = $4
	`, int64(id), ts, qualificationQualified, qualificationUnqualified)
	if err != nil {
		return errors.Wrapf(err, "marking variable %d qualified at %s", id, ts)
	}
	return nil
}

var _ engine.Gateway = (*Gateway)(nil)

// BeginTx starts a transaction the caller commits or rolls back; Execute
// itself never commits, matching the engine's documented contract.
func BeginTx(ctx context.Context, pool *pgxpool.Pool) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}
