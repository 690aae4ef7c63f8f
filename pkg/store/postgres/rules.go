package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// RuleRecord is one row of ref_regle.
type RuleRecord struct {
	ID       int64
	Name     string
	IsModel  bool
	RuleJSON string
}

// RuleStore is the ref_regle CRUD surface used by the HTTP API and the CLI.
type RuleStore struct {
	pool *pgxpool.Pool
}

func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{pool: pool}
}

func (s *RuleStore) List(ctx context.Context) ([]RuleRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id_regle, lib_nom, est_modele, text_json FROM ref_regle ORDER BY id_regle`)
	if err != nil {
		return nil, errors.Wrap(err, "listing rules")
	}
	defer rows.Close()

	var out []RuleRecord
	for rows.Next() {
		var r RuleRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.IsModel, &r.RuleJSON); err != nil {
			return nil, errors.Wrap(err, "scanning rule row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) Get(ctx context.Context, id int64) (*RuleRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT id_regle, lib_nom, est_modele, text_json FROM ref_regle WHERE id_regle = $1`, id)

	var r RuleRecord
	if err := row.Scan(&r.ID, &r.Name, &r.IsModel, &r.RuleJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "loading rule %d", id)
	}
	return &r, nil
}

// Upsert mirrors save_rule's three-way branch: id == 0 always inserts a new
// row; id != 0 first tries an UPDATE, and if that affects no row (no rule
// exists at that id yet) falls back to inserting a row at the caller's
// explicit id rather than silently doing nothing.
func (s *RuleStore) Upsert(ctx context.Context, r RuleRecord) (int64, error) {
	if r.ID == 0 {
		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO ref_regle (lib_nom, est_modele, text_json)
			VALUES ($1, $2, $3)
			RETURNING id_regle
		`, r.Name, r.IsModel, r.RuleJSON).Scan(&id)
		if err != nil {
			return 0, errors.Wrap(err, "inserting rule")
		}
		return id, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE ref_regle
		SET lib_nom = $2, est_modele = $3, text_json = $4
		WHERE id_regle = $1
	`, r.ID, r.Name, r.IsModel, r.RuleJSON)
	if err != nil {
		return 0, errors.Wrapf(err, "updating rule %d", r.ID)
	}

	if tag.RowsAffected() == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO ref_regle (id_regle, lib_nom, est_modele, text_json)
			VALUES ($1, $2, $3, $4)
		`, r.ID, r.Name, r.IsModel, r.RuleJSON)
		if err != nil {
			return 0, errors.Wrapf(err, "inserting rule %d", r.ID)
		}
	}
	return r.ID, nil
}
