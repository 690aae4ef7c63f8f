package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// evaluator interprets the rule DAG bottom-up over the aligned frame. Each
// block's result is memoized so cost stays linear in DAG size rather than
// exponential in fan-out (spec §4.3 "Memoization"). Multiple WriteVar sinks
// may be evaluated concurrently by the orchestrator, so the cache is guarded
// by a mutex, a block currently being computed is tracked in inflight so a
// shared ancestor is only ever computed once, and the write counter is
// atomic, in the style of friggdb's FindMetrics counters shared across
// concurrent block reads.
type evaluator struct {
	ctx   context.Context
	rule  *Rule
	adj   *adjacency
	frame *AlignedFrame
	gw    Gateway

	mu       sync.Mutex
	cache    map[BlockID]Series
	cacheErr map[BlockID]error
	// inflight holds one channel per block currently being computed, closed
	// when that computation finishes. A block with side effects (WriteVar)
	// must run exactly once even when two sinks share it as an ancestor, so
	// a caller that finds a block already inflight waits on its channel
	// instead of racing to compute it a second time.
	inflight map[BlockID]chan struct{}
	// writes accumulates (variable, timestamp) pairs actually written, for
	// the orchestrator's output-sample count.
	writes *atomic.Int64
}

func newEvaluator(ctx context.Context, rule *Rule, adj *adjacency, frame *AlignedFrame, gw Gateway) *evaluator {
	return &evaluator{
		ctx:      ctx,
		rule:     rule,
		adj:      adj,
		frame:    frame,
		gw:       gw,
		cache:    make(map[BlockID]Series, len(rule.Blocks)),
		cacheErr: make(map[BlockID]error),
		inflight: make(map[BlockID]chan struct{}),
		writes:   atomic.NewInt64(0),
	}
}

// Evaluate computes (or returns the cached) time series for blockID. Only
// one goroutine ever runs a given block's body, even when multiple WriteVar
// sinks are being evaluated concurrently and share it as an ancestor.
func (e *evaluator) Evaluate(blockID BlockID) (Series, error) {
	for {
		e.mu.Lock()
		if s, ok := e.cache[blockID]; ok {
			e.mu.Unlock()
			return s, nil
		}
		if err, ok := e.cacheErr[blockID]; ok {
			e.mu.Unlock()
			return nil, err
		}
		if ch, ok := e.inflight[blockID]; ok {
			e.mu.Unlock()
			<-ch
			continue
		}
		ch := make(chan struct{})
		e.inflight[blockID] = ch
		e.mu.Unlock()

		result, err := e.computeBlock(blockID)

		e.mu.Lock()
		delete(e.inflight, blockID)
		if err != nil {
			e.cacheErr[blockID] = err
		} else {
			e.cache[blockID] = result
		}
		close(ch)
		e.mu.Unlock()

		return result, err
	}
}

func (e *evaluator) computeBlock(blockID BlockID) (Series, error) {
	block, ok := e.rule.blockByID(blockID)
	if !ok {
		return nil, newErr(KindUnknownBlock, "block %d does not exist", blockID)
	}

	switch {
	case block.Class == ClassReadVar:
		return e.evalReadVar(block)
	case isArithmetic(block.Class):
		return e.evalArithmetic(block)
	case block.Class == ClassPeriodicCalc:
		return e.evalPeriodicCalc(block)
	case block.Class == ClassWriteVar:
		return e.evalWriteVar(block)
	default:
		return nil, newErr(KindUnknownBlockClass, "block %d: unrecognized class %q", blockID, block.Class)
	}
}

func (e *evaluator) parentSeries(blockID BlockID) ([]Series, error) {
	parents := e.adj.inputs[blockID]
	out := make([]Series, len(parents))
	for i, p := range parents {
		s, err := e.Evaluate(p)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (e *evaluator) evalReadVar(b *Block) (Series, error) {
	idx := e.frame.ColumnIndex(b.ReadWrite.ID)
	if idx < 0 {
		return nil, newErr(KindUnknownVariable, "ReadVar block %d: variable %d is not a source of this rule", b.ID, b.ReadWrite.ID)
	}

	s := make(Series, len(e.frame.Rows))
	for i, row := range e.frame.Rows {
		v := row.Values[idx]
		s[i] = Point{Timestamp: row.Timestamp, Value: &v}
	}
	return s, nil
}

func (e *evaluator) evalArithmetic(b *Block) (Series, error) {
	parents := e.adj.inputs[b.ID]
	if len(parents) == 0 {
		return nil, newErr(KindMissingInput, "arithmetic block %d has no inputs", b.ID)
	}

	inputs, err := e.parentSeries(b.ID)
	if err != nil {
		return nil, err
	}

	minLen := len(inputs[0])
	for _, s := range inputs[1:] {
		if len(s) < minLen {
			minLen = len(s)
		}
	}

	out := make(Series, minLen)
	for i := 0; i < minLen; i++ {
		ts := inputs[0][i].Timestamp

		var vals []float64
		for _, s := range inputs {
			if s[i].Value != nil {
				vals = append(vals, *s[i].Value)
			}
		}

		if len(vals) == 0 {
			out[i] = Point{Timestamp: ts, Value: nil}
			continue
		}

		var res float64
		var null bool
		switch b.Class {
		case ClassAdd:
			for _, v := range vals {
				res += v
			}
		case ClassSub:
			res = vals[0]
			for _, v := range vals[1:] {
				res -= v
			}
		case ClassMul:
			res = 1
			for _, v := range vals {
				res *= v
			}
		case ClassDiv:
			res = vals[0]
			for _, v := range vals[1:] {
				if v == 0 {
					null = true
					break
				}
				res /= v
			}
		}

		if null {
			out[i] = Point{Timestamp: ts, Value: nil}
		} else {
			r := res
			out[i] = Point{Timestamp: ts, Value: &r}
		}
	}

	return out, nil
}

func (e *evaluator) evalPeriodicCalc(b *Block) (Series, error) {
	parents := e.adj.inputs[b.ID]
	if len(parents) == 0 {
		return nil, newErr(KindMissingInput, "PeriodicCalc block %d has no input", b.ID)
	}

	input, err := e.Evaluate(parents[0])
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return Series{}, nil
	}

	params := b.Periodic
	switch params.Operation {
	case OpMoyenne, OpSomme, OpMaximum, OpMinimum, OpPremiere, OpDerniere:
	default:
		return nil, newErr(KindUnknownOperation, "PeriodicCalc block %d: unrecognized operation %q", b.ID, params.Operation)
	}

	periodSeconds := params.PeriodMin * 60

	type bucket struct {
		points []Point
	}
	buckets := make(map[int64]*bucket)
	var order []int64
	for _, p := range input {
		idx := int64(math.Floor(float64(p.Timestamp.Unix()) / periodSeconds))
		bk, ok := buckets[idx]
		if !ok {
			bk = &bucket{}
			buckets[idx] = bk
			order = append(order, idx)
		}
		bk.points = append(bk.points, p)
	}

	out := make(Series, 0, len(order))
	for _, idx := range order {
		bk := buckets[idx]

		total := len(bk.points)
		var valid []float64
		earliest := bk.points[0].Timestamp
		for _, p := range bk.points {
			if p.Timestamp.Before(earliest) {
				earliest = p.Timestamp
			}
			if p.Value != nil {
				valid = append(valid, *p.Value)
			}
		}

		if total == 0 {
			continue
		}
		percentage := (float64(len(valid)) / float64(total)) * 100
		if percentage < params.ValidityRate {
			continue
		}
		if len(valid) == 0 {
			continue
		}

		var res float64
		switch params.Operation {
		case OpMoyenne:
			var sum float64
			for _, v := range valid {
				sum += v
			}
			res = sum / float64(len(valid))
		case OpSomme:
			for _, v := range valid {
				res += v
			}
		case OpMaximum:
			res = valid[0]
			for _, v := range valid[1:] {
				if v > res {
					res = v
				}
			}
		case OpMinimum:
			res = valid[0]
			for _, v := range valid[1:] {
				if v < res {
					res = v
				}
			}
		case OpPremiere:
			res = valid[0]
		case OpDerniere:
			res = valid[len(valid)-1]
		}

		aligned := earliest.Truncate(time.Hour)
		r := res
		out = append(out, Point{Timestamp: aligned, Value: &r})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (e *evaluator) evalWriteVar(b *Block) (Series, error) {
	parents := e.adj.inputs[b.ID]
	if len(parents) == 0 {
		return nil, newErr(KindMissingInput, "WriteVar block %d has no input", b.ID)
	}

	input, err := e.Evaluate(parents[0])
	if err != nil {
		return nil, err
	}

	for _, p := range input {
		if p.Value == nil {
			continue
		}
		if e.ctx.Err() != nil {
			return nil, wrapErr(KindGatewayFailure, e.ctx.Err(), "execution cancelled while writing variable %d", b.ReadWrite.ID)
		}
		if err := e.gw.InsertIfAbsent(e.ctx, b.ReadWrite.ID, p.Timestamp, *p.Value); err != nil {
			return nil, wrapErr(KindGatewayFailure, err, "writing variable %d at %s", b.ReadWrite.ID, p.Timestamp)
		}
		e.writes.Inc()
	}

	return input, nil
}
