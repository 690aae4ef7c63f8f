package engine

import (
	"context"
	"sync"
	"time"
)

// Execute parses ruleJSON, aligns its source variables, evaluates every
// WriteVar sink, and sweeps qualification over the samples that contributed
// to alignment. It is the engine's sole entry point (spec §6, "Engine-level
// execution API"). Commit vs. rollback of the Gateway's transactional scope
// is entirely the caller's decision — execute and simulate are the same call.
func Execute(ctx context.Context, gw Gateway, ruleJSON []byte) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		metricExecutionDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metricExecutionsTotal.WithLabelValues("failure").Inc()
		} else {
			metricExecutionsTotal.WithLabelValues("success").Inc()
		}
	}()

	rule, err := ParseRule(ruleJSON)
	if err != nil {
		return Summary{}, err
	}

	adj := buildAdjacency(rule)

	if err = checkAcyclic(rule, adj); err != nil {
		return Summary{}, err
	}

	sourceVars := rule.sourceVariables()
	if len(sourceVars) == 0 {
		err = newErr(KindNoReadVars, "rule contains no ReadVar blocks")
		return Summary{}, err
	}

	var frame *AlignedFrame
	frame, err = Align(ctx, gw, sourceVars)
	if err != nil {
		return Summary{}, err
	}

	sinks := rule.sinks()

	ev := newEvaluator(ctx, rule, adj, frame, gw)
	if err = evaluateSinksConcurrently(ev, sinks); err != nil {
		return Summary{}, err
	}

	if err = qualifySweep(ctx, gw, frame); err != nil {
		return Summary{}, err
	}

	metricBlocksEvaluatedTotal.Add(float64(len(ev.cache)))

	return Summary{
		AlignedTimestamps: len(frame.Rows),
		OutputSamples:     int(ev.writes.Load()),
		SourceVariables:   dedupeVars(sourceVars),
	}, nil
}

// evaluateSinksConcurrently evaluates every WriteVar sink in its own
// goroutine. Shared ancestors are only computed once thanks to the
// evaluator's mutex-guarded memoization cache; the first error observed
// across sinks wins.
func evaluateSinksConcurrently(ev *evaluator, sinks []BlockID) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, sinkID := range sinks {
		wg.Add(1)
		go func(id BlockID) {
			defer wg.Done()
			if _, err := ev.Evaluate(id); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(sinkID)
	}
	wg.Wait()
	return firstErr
}

// qualifySweep marks qualified every (source variable, aligned timestamp)
// pair that had a stored sample in the unqualified set. Interpolated-only
// timestamps are not marked (spec §4.4 step 7). This runs after every sink
// has been evaluated, per the ordering guarantee in spec §5.
func qualifySweep(ctx context.Context, gw Gateway, frame *AlignedFrame) error {
	for col, timestamps := range frame.stored {
		for _, ts := range timestamps {
			if ctx.Err() != nil {
				return wrapErr(KindGatewayFailure, ctx.Err(), "execution cancelled during qualification sweep")
			}
			if err := gw.MarkQualified(ctx, col, ts); err != nil {
				return wrapErr(KindGatewayFailure, err, "marking variable %d qualified at %s", col, ts)
			}
		}
	}
	return nil
}

func dedupeVars(vars []VariableID) []VariableID {
	seen := make(map[VariableID]bool, len(vars))
	out := make([]VariableID, 0, len(vars))
	for _, v := range vars {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
