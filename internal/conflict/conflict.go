// Package conflict compares newly observed field values with a product's
// current values and reports disagreements. It never resolves them.
package conflict

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// DefaultTolerances lists numeric fields that allow some drift. Numeric fields
// not listed must match exactly.
func DefaultTolerances() map[string]float64 {
	return map[string]float64{
		discovery.FieldABV:          0.5,
		discovery.FieldFinishLength: 1,
	}
}

// Detector flags conflicts using per-field numeric tolerances.
type Detector struct {
	tolerances map[string]float64
}

// NewDetector builds a Detector. Nil tolerances use DefaultTolerances.
func NewDetector(tolerances map[string]float64) *Detector {
	if tolerances == nil {
		tolerances = DefaultTolerances()
	}
	return &Detector{tolerances: tolerances}
}

// DetectConflicts compares each observed field with the product. List fields
// are additive and never conflict. Numbers conflict when they differ by more
// than the field tolerance, text when both values are non-empty and differ
// ignoring case. Empty current values never conflict. Results are sorted by field.
func (d *Detector) DetectConflicts(p *discovery.Product, obs discovery.Observation) []discovery.Conflict {
	if p == nil {
		return nil
	}
	fields := make([]string, 0, len(obs.Fields))
	for f := range obs.Fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	var out []discovery.Conflict
	for _, field := range fields {
		newValue := obs.Fields[field]
		current, known := p.FieldValue(field)
		if !known {
			continue
		}
		kind, _ := discovery.KindOf(field)
		if d.conflicts(field, kind, current, newValue) {
			out = append(out, discovery.Conflict{
				Field:        field,
				CurrentValue: current,
				NewValue:     newValue,
				Source:       obs.SourceURL,
			})
		}
	}
	return out
}

func (d *Detector) conflicts(field string, kind discovery.FieldKind, current, newValue any) bool {
	switch kind {
	case discovery.KindList:
		return false
	case discovery.KindNumber:
		cur, ok1 := discovery.ToFloat(current)
		nv, ok2 := discovery.ToFloat(newValue)
		if !ok1 || !ok2 || cur == 0 || nv == 0 {
			return false
		}
		return math.Abs(cur-nv) > d.tolerances[field]
	default:
		cur := strings.TrimSpace(fmt.Sprint(current))
		nv, ok := newValue.(string)
		if !ok {
			nv = fmt.Sprint(newValue)
		}
		nv = strings.TrimSpace(nv)
		if cur == "" || nv == "" {
			return false
		}
		return !strings.EqualFold(cur, nv)
	}
}
