package engine

import (
	"encoding/json"
	"strings"
)

// ruleDoc mirrors the rule JSON's top-level shape before it is checked and
// converted into the typed Rule the rest of the engine works with.
type ruleDoc struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Blocks      []blockDoc `json:"blocks"`
	Links       []linkDoc  `json:"links"`
}

type blockDoc struct {
	Class      string          `json:"class"`
	Parameters json.RawMessage `json:"parameters"`
}

type linkDoc struct {
	Parent BlockID `json:"parent"`
	Child  BlockID `json:"child"`
}

type readWriteParamsDoc struct {
	ID int64 `json:"Id"`
}

type periodicCalcParamsDoc struct {
	Operation    string   `json:"operation"`
	Period       *float64 `json:"period"`
	ValidityRate *float64 `json:"validity_rate"`
}

const (
	defaultPeriodMinutes = 60
	defaultValidityRate  = 0
)

// ParseRule converts raw rule JSON into a checked Rule, reporting
// MalformedRule at parse time rather than during evaluation, per the design
// notes on duck-typed JSON vs. a typed schema.
func ParseRule(raw []byte) (*Rule, error) {
	var doc ruleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, wrapErr(KindMalformedRule, err, "rule JSON did not parse")
	}

	blocks := make([]Block, len(doc.Blocks))
	for i, bd := range doc.Blocks {
		b := Block{ID: BlockID(i + 1), Class: BlockClass(bd.Class)}

		switch b.Class {
		case ClassReadVar, ClassWriteVar:
			var p readWriteParamsDoc
			if len(bd.Parameters) > 0 {
				if err := json.Unmarshal(bd.Parameters, &p); err != nil {
					return nil, wrapErr(KindMalformedRule, err, "block %d: invalid parameters for %s", b.ID, b.Class)
				}
			}
			b.ReadWrite = &ReadWriteParams{ID: VariableID(p.ID)}
		case ClassPeriodicCalc:
			var p periodicCalcParamsDoc
			if len(bd.Parameters) > 0 {
				if err := json.Unmarshal(bd.Parameters, &p); err != nil {
					return nil, wrapErr(KindMalformedRule, err, "block %d: invalid parameters for PeriodicCalc", b.ID)
				}
			}
			period := float64(defaultPeriodMinutes)
			if p.Period != nil {
				period = *p.Period
			}
			validity := float64(defaultValidityRate)
			if p.ValidityRate != nil {
				validity = *p.ValidityRate
			}
			b.Periodic = &PeriodicCalcParams{
				Operation:    PeriodicCalcOperation(strings.ToLower(strings.TrimSpace(p.Operation))),
				PeriodMin:    period,
				ValidityRate: validity,
			}
		case ClassAdd, ClassSub, ClassMul, ClassDiv:
			// no parameters consumed
		default:
			return nil, newErr(KindUnknownBlockClass, "block %d: unrecognized class %q", b.ID, bd.Class)
		}

		blocks[i] = b
	}

	links := make([]Link, len(doc.Links))
	for i, ld := range doc.Links {
		if int(ld.Parent) < 1 || int(ld.Parent) > len(blocks) || int(ld.Child) < 1 || int(ld.Child) > len(blocks) {
			return nil, newErr(KindUnknownBlock, "link %d references a block id outside 1..%d", i, len(blocks))
		}
		links[i] = Link{Parent: ld.Parent, Child: ld.Child}
	}

	return &Rule{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Blocks:      blocks,
		Links:       links,
	}, nil
}

// adjacency holds the input/output maps the Orchestrator derives from a
// Rule's link list. inputs(b) preserves link-list order, which is load
// bearing for arithmetic parent ordering (spec §9, "Parent ordering").
type adjacency struct {
	inputs  map[BlockID][]BlockID
	outputs map[BlockID][]BlockID
}

func buildAdjacency(r *Rule) *adjacency {
	a := &adjacency{
		inputs:  make(map[BlockID][]BlockID, len(r.Blocks)),
		outputs: make(map[BlockID][]BlockID, len(r.Blocks)),
	}
	for _, l := range r.Links {
		a.inputs[l.Child] = append(a.inputs[l.Child], l.Parent)
		a.outputs[l.Parent] = append(a.outputs[l.Parent], l.Child)
	}
	return a
}

func (r *Rule) blockByID(id BlockID) (*Block, bool) {
	if int(id) < 1 || int(id) > len(r.Blocks) {
		return nil, false
	}
	return &r.Blocks[id-1], true
}

// sourceVariables collects ReadVar variable ids in block order, duplicates
// preserved (spec §4.4 step 3).
func (r *Rule) sourceVariables() []VariableID {
	var vars []VariableID
	for _, b := range r.Blocks {
		if b.Class == ClassReadVar {
			vars = append(vars, b.ReadWrite.ID)
		}
	}
	return vars
}

// sinks returns every WriteVar block id, in block order.
func (r *Rule) sinks() []BlockID {
	var out []BlockID
	for _, b := range r.Blocks {
		if b.Class == ClassWriteVar {
			out = append(out, b.ID)
		}
	}
	return out
}
