package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(minutesFromEpoch int) time.Time {
	return time.Unix(0, 0).UTC().Add(time.Duration(minutesFromEpoch) * time.Minute)
}

func readVar(id int, variable VariableID) string {
	return fmt.Sprintf(`{"class":"ReadVar","parameters":{"Id":%d}}`, variable)
}

func writeVar(variable VariableID) string {
	return fmt.Sprintf(`{"class":"WriteVar","parameters":{"Id":%d}}`, variable)
}

func periodicCalc(op string, periodMin, validityRate float64) string {
	return fmt.Sprintf(`{"class":"PeriodicCalc","parameters":{"operation":%q,"period":%g,"validity_rate":%g}}`, op, periodMin, validityRate)
}

func arithmetic(class string) string {
	return fmt.Sprintf(`{"class":%q}`, class)
}

func buildRule(blocks []string, links [][2]int) []byte {
	out := `{"id":1,"name":"test","description":"","blocks":[`
	for i, b := range blocks {
		if i > 0 {
			out += ","
		}
		out += b
	}
	out += `],"links":[`
	for i, l := range links {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"parent":%d,"child":%d}`, l[0], l[1])
	}
	out += `]}`
	return []byte(out)
}

// Two ReadVars feed a subtraction into a WriteVar. Exercises interpolation:
// variable 2 only has samples at minute 0 and minute 20, so the value at
// minute 10 (aligned because variable 1 has a sample there) is linearly
// interpolated.
func TestExecute_InterpolationAndSubtractionOrder(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(10))
	gw.seed(1, ts(10), f(20))
	gw.seed(1, ts(20), f(30))
	gw.seed(2, ts(0), f(1))
	gw.seed(2, ts(20), f(3))

	rule := buildRule([]string{
		readVar(1, 1),
		readVar(2, 2),
		arithmetic("-"),
		writeVar(99),
	}, [][2]int{{1, 3}, {2, 3}, {3, 4}})

	summary, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.AlignedTimestamps)
	assert.Equal(t, 3, summary.OutputSamples)

	written := gw.writtenValues(99)
	assert.Equal(t, float64(10-1), written[ts(0).Unix()])
	assert.Equal(t, float64(20-2), written[ts(10).Unix()]) // variable 2 interpolated to 2 at minute 10
	assert.Equal(t, float64(30-3), written[ts(20).Unix()])
}

// A PeriodicCalc(moyenne) over a 60 minute bucket drops the bucket when the
// fraction of non-null samples falls below validity_rate.
func TestExecute_PeriodicCalcValidityGate(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(10))
	gw.seed(1, ts(15), nil)
	gw.seed(1, ts(30), nil)
	gw.seed(1, ts(45), f(20))

	rule := buildRule([]string{
		readVar(1, 1),
		periodicCalc("moyenne", 60, 60),
		writeVar(99),
	}, [][2]int{{1, 2}, {2, 3}})

	summary, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	// 2 of 4 samples are valid: 50% < validity_rate 60, bucket dropped entirely.
	assert.Equal(t, 0, summary.OutputSamples)

	written := gw.writtenValues(99)
	assert.Empty(t, written)
}

func TestExecute_PeriodicCalcAverageAboveGatePasses(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(10))
	gw.seed(1, ts(15), f(20))
	gw.seed(1, ts(30), nil)
	gw.seed(1, ts(45), f(30))

	rule := buildRule([]string{
		readVar(1, 1),
		periodicCalc("moyenne", 60, 50),
		writeVar(99),
	}, [][2]int{{1, 2}, {2, 3}})

	summary, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OutputSamples)

	written := gw.writtenValues(99)
	// bucket output timestamp truncated to the hour of the earliest sample.
	assert.Equal(t, 20.0, written[ts(0).Truncate(time.Hour).Unix()])
}

// Division by zero produces a null cell, which a downstream WriteVar simply
// never writes (nulls are never persisted, spec §4.3).
func TestExecute_DivisionByZeroProducesNull(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(10))
	gw.seed(2, ts(0), f(0))

	rule := buildRule([]string{
		readVar(1, 1),
		readVar(2, 2),
		arithmetic("/"),
		writeVar(99),
	}, [][2]int{{1, 3}, {2, 3}, {3, 4}})

	summary, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.OutputSamples)
	assert.Empty(t, gw.writtenValues(99))
}

// Re-executing the same rule against the same unqualified samples is a
// no-op the second time: InsertIfAbsent skips existing keys and the
// qualification sweep has already frozen the sources.
func TestExecute_IdempotentReexecution(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(5))
	gw.seed(1, ts(10), f(7))

	rule := buildRule([]string{
		readVar(1, 1),
		writeVar(99),
	}, [][2]int{{1, 2}})

	_, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.qualifiedCount(1))

	gw.seed(1, ts(0), f(5))
	gw.seed(1, ts(10), f(7))

	summary, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.OutputSamples, "both timestamps already exist in the store")
}

func TestExecute_NoSourceDataFails(t *testing.T) {
	gw := newMemGateway()

	rule := buildRule([]string{
		readVar(1, 1),
		writeVar(99),
	}, [][2]int{{1, 2}})

	_, err := Execute(context.Background(), gw, rule)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindNoSourceData, engErr.Kind)
}

func TestExecute_NoReadVarsFails(t *testing.T) {
	gw := newMemGateway()

	rule := buildRule([]string{
		writeVar(99),
	}, nil)

	_, err := Execute(context.Background(), gw, rule)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindNoReadVars, engErr.Kind)
}

func TestExecute_CyclicRuleFails(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(1))

	rule := buildRule([]string{
		readVar(1, 1),
		arithmetic("+"),
		writeVar(99),
	}, [][2]int{{1, 2}, {2, 2}, {2, 3}})

	_, err := Execute(context.Background(), gw, rule)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindCyclicRule, engErr.Kind)
}

func TestExecute_MultiplicationAcrossThreeParents(t *testing.T) {
	gw := newMemGateway()
	gw.seed(1, ts(0), f(2))
	gw.seed(2, ts(0), f(3))
	gw.seed(3, ts(0), f(4))

	rule := buildRule([]string{
		readVar(1, 1),
		readVar(2, 2),
		readVar(3, 3),
		arithmetic("*"),
		writeVar(99),
	}, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 5}})

	_, err := Execute(context.Background(), gw, rule)
	require.NoError(t, err)
	written := gw.writtenValues(99)
	assert.Equal(t, 24.0, written[ts(0).Unix()])
}
