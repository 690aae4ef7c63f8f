package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule_DefaultsPeriodAndValidityRate(t *testing.T) {
	raw := buildRule([]string{
		readVar(1, 1),
		`{"class":"PeriodicCalc","parameters":{"operation":"somme"}}`,
		writeVar(99),
	}, [][2]int{{1, 2}, {2, 3}})

	rule, err := ParseRule(raw)
	require.NoError(t, err)

	block, ok := rule.blockByID(2)
	require.True(t, ok)
	assert.Equal(t, float64(defaultPeriodMinutes), block.Periodic.PeriodMin)
	assert.Equal(t, float64(defaultValidityRate), block.Periodic.ValidityRate)
	assert.Equal(t, OpSomme, block.Periodic.Operation)
}

func TestParseRule_MalformedJSONFails(t *testing.T) {
	_, err := ParseRule([]byte(`{not json`))
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindMalformedRule, engErr.Kind)
}

func TestParseRule_UnknownBlockClassFails(t *testing.T) {
	raw := buildRule([]string{`{"class":"Frobnicate"}`}, nil)
	_, err := ParseRule(raw)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindUnknownBlockClass, engErr.Kind)
}

func TestParseRule_LinkOutOfRangeFails(t *testing.T) {
	raw := buildRule([]string{readVar(1, 1)}, [][2]int{{1, 5}})
	_, err := ParseRule(raw)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindUnknownBlock, engErr.Kind)
}

func TestRule_SourceVariablesPreservesOrderAndDuplicates(t *testing.T) {
	raw := buildRule([]string{
		readVar(1, 7),
		readVar(2, 3),
		readVar(3, 7),
	}, nil)

	rule, err := ParseRule(raw)
	require.NoError(t, err)

	assert.Equal(t, []VariableID{7, 3, 7}, rule.sourceVariables())
}

func TestCheckAcyclic_AcceptsDAG(t *testing.T) {
	raw := buildRule([]string{
		readVar(1, 1),
		readVar(2, 2),
		arithmetic("+"),
		writeVar(99),
	}, [][2]int{{1, 3}, {2, 3}, {3, 4}})

	rule, err := ParseRule(raw)
	require.NoError(t, err)

	adj := buildAdjacency(rule)
	assert.NoError(t, checkAcyclic(rule, adj))
}
