package engine

import (
	"context"
	"sort"
	"time"

	"github.com/go-kit/log/level"

	utillog "github.com/grafana/ruleflow/pkg/util/log"
)

// liveLogger defers to utillog.Logger at call time rather than capturing it
// at package-init time, since InitLogger replaces the process-global Logger
// after this package's variables are initialized.
type liveLogger struct{}

func (liveLogger) Log(keyvals ...interface{}) error {
	return level.Warn(utillog.Logger).Log(keyvals...)
}

// interpolationWarnLogger rate-limits the warnings resolve emits when a
// timestamp can't be filled by a clean interpolation between two stored
// values — a sparse source variable would otherwise log once per aligned
// timestamp.
var interpolationWarnLogger = utillog.NewRateLimitedLogger(1, liveLogger{})

// varTimeline is a single source variable's unqualified samples, sorted
// ascending by timestamp, with an index for interpolation lookups.
type varTimeline struct {
	id    VariableID
	times []time.Time
	vals  []*float64      // parallel to times; nil entries are verbatim stored nulls
	at    map[int64]*float64 // epoch seconds -> stored value, for O(1) exact hits
}

func newVarTimeline(id VariableID, samples []Sample) *varTimeline {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	vt := &varTimeline{
		id:    id,
		times: make([]time.Time, len(sorted)),
		vals:  make([]*float64, len(sorted)),
		at:    make(map[int64]*float64, len(sorted)),
	}
	for i, s := range sorted {
		vt.times[i] = s.Timestamp
		vt.vals[i] = s.Value
		vt.at[s.Timestamp.Unix()] = s.Value
	}
	return vt
}

// resolve implements the per-variable value resolution of spec §4.2: exact
// stored sample wins verbatim (even if null — the engine does not silently
// correct a stored null, matching the reference behavior); otherwise linear
// interpolation between the nearest neighbours, or hold-last/hold-first when
// only one side has data.
func (vt *varTimeline) resolve(t time.Time) *float64 {
	if v, ok := vt.at[t.Unix()]; ok {
		return v
	}

	// binary search for the insertion point among vt.times
	idx := sort.Search(len(vt.times), func(i int) bool { return !vt.times[i].Before(t) })

	var prevIdx, nextIdx int = -1, -1
	if idx > 0 {
		prevIdx = idx - 1
	}
	if idx < len(vt.times) {
		nextIdx = idx
	}

	switch {
	case prevIdx >= 0 && nextIdx >= 0:
		d1 := vt.times[prevIdx]
		d2 := vt.times[nextIdx]
		v1 := vt.vals[prevIdx]
		v2 := vt.vals[nextIdx]
		if v1 == nil || v2 == nil {
			// Cannot interpolate across a null neighbour; fall back to
			// whichever neighbour is non-null rather than propagating a null
			// into the frame.
			interpolationWarnLogger.Log("msg", "interpolation neighbour is a stored null, falling back to non-null side",
				"variable", vt.id, "timestamp", t)
			if v1 != nil {
				return v1
			}
			return v2
		}
		t1 := float64(d1.Unix())
		t2 := float64(d2.Unix())
		tt := float64(t.Unix())
		out := *v1 + (*v2-*v1)*(tt-t1)/(t2-t1)
		return &out
	case prevIdx >= 0:
		interpolationWarnLogger.Log("msg", "holding last known value, no newer sample available",
			"variable", vt.id, "timestamp", t)
		return vt.vals[prevIdx]
	case nextIdx >= 0:
		interpolationWarnLogger.Log("msg", "holding first known value, no older sample available",
			"variable", vt.id, "timestamp", t)
		return vt.vals[nextIdx]
	default:
		return nil
	}
}

// Align returns the union of timestamps observed across the given source
// variables, each row resolved to one non-null-when-possible value per
// column, in column order. Fails with NoSourceData if any variable has zero
// unqualified samples.
func Align(ctx context.Context, gw Gateway, vars []VariableID) (*AlignedFrame, error) {
	timelines := make(map[VariableID]*varTimeline, len(vars))
	seen := make(map[VariableID]bool, len(vars))
	var unique []VariableID

	for _, id := range vars {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)

		if ctx.Err() != nil {
			return nil, wrapErr(KindGatewayFailure, ctx.Err(), "alignment cancelled")
		}

		samples, err := gw.LoadUnqualified(ctx, id)
		if err != nil {
			return nil, wrapErr(KindGatewayFailure, err, "loading unqualified samples for variable %d", id)
		}
		if len(samples) == 0 {
			return nil, newErr(KindNoSourceData, "variable %d has no unqualified samples", id)
		}
		timelines[id] = newVarTimeline(id, samples)
	}

	allTimes := make(map[int64]time.Time)
	for _, vt := range timelines {
		for _, t := range vt.times {
			allTimes[t.Unix()] = t
		}
	}

	sortedKeys := make([]int64, 0, len(allTimes))
	for k := range allTimes {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Slice(sortedKeys, func(i, j int) bool { return sortedKeys[i] < sortedKeys[j] })

	frame := &AlignedFrame{Columns: vars, stored: make(map[VariableID][]time.Time, len(unique))}
	for _, id := range unique {
		frame.stored[id] = append([]time.Time(nil), timelines[id].times...)
	}
	frame.Rows = make([]Row, 0, len(sortedKeys))
	for _, k := range sortedKeys {
		t := allTimes[k]
		row := Row{Timestamp: t, Values: make([]float64, len(vars))}
		for i, id := range vars {
			vt := timelines[id]
			v := vt.resolve(t)
			if v != nil {
				row.Values[i] = *v
			}
		}
		frame.Rows = append(frame.Rows, row)
	}

	return frame, nil
}
