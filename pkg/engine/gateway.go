package engine

import (
	"context"
	"time"
)

// Gateway is the narrow data-access surface the engine uses to read
// unqualified source samples, mark them qualified, and insert computed
// samples. All operations execute within the caller-provided transactional
// scope; Gateway does not commit or roll back.
type Gateway interface {
	// LoadUnqualified returns every sample of id whose qualification state
	// is unqualified. Order is unspecified; the Aligner sorts.
	LoadUnqualified(ctx context.Context, id VariableID) ([]Sample, error)

	// InsertIfAbsent inserts a qualified sample iff no sample exists at
	// (id, ts), regardless of the existing sample's qualification state.
	// Must be atomic against concurrent inserts at the same key.
	InsertIfAbsent(ctx context.Context, id VariableID, ts time.Time, value float64) error

	// MarkQualified transitions a sample from unqualified to qualified; a
	// no-op if the sample is already qualified or absent.
	MarkQualified(ctx context.Context, id VariableID, ts time.Time) error
}
