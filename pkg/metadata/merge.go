// Package metadata implements the merge engine that folds adapter results
// into a work item's merged record with per-field source attribution.
package metadata

import (
	"math"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/sources"
)

// Engine applies the per-field merge rule. It is pure: Merge never mutates
// its inputs, and re-applying the same result is a no-op.
type Engine struct {
	// Epsilon keeps near-equal confidences from thrashing a field back and
	// forth between two sources.
	Epsilon float64

	// Pinned maps fields to the one source trusted for them outright.
	Pinned map[string]string

	// Priority breaks near-equal confidence ties (lower wins).
	Priority map[string]int
}

func NewEngine(epsilon float64) *Engine {
	return &Engine{
		Epsilon:  epsilon,
		Pinned:   models.PinnedFieldSource,
		Priority: models.SourcePriority,
	}
}

// Merge folds one acquisition result into the existing record and returns
// the new record plus a correction entry for every overwritten field.
// WorkItemID on the corrections is left for the caller to fill.
func (e *Engine) Merge(existing models.MergedRecord, incoming sources.AcquisitionResult) (models.MergedRecord, []models.Correction) {
	out := existing.Clone()
	var corrections []models.Correction

	for _, field := range models.TrackedFields {
		value := incoming.Fields[field]
		if value == "" {
			continue
		}

		cur, has := out.Get(field)
		if !has {
			out[field] = models.FieldValue{Value: value, Source: incoming.Source, Confidence: incoming.Confidence}
			continue
		}
		if cur.Value == value {
			continue
		}
		if !e.allowOverwrite(field, cur, incoming) {
			continue
		}

		old := cur.Value
		out[field] = models.FieldValue{Value: value, Source: incoming.Source, Confidence: incoming.Confidence}
		corrections = append(corrections, models.Correction{
			Field:    field,
			OldValue: &old,
			NewValue: value,
			Source:   incoming.Source,
		})
	}

	return out, corrections
}

func (e *Engine) allowOverwrite(field string, cur models.FieldValue, incoming sources.AcquisitionResult) bool {
	if pinned, ok := e.Pinned[field]; ok {
		switch {
		case cur.Source == pinned && incoming.Source != pinned:
			return false
		case incoming.Source == pinned && cur.Source != pinned:
			return true
		}
		// Same source on both sides: fall through to confidence.
	}

	if math.Abs(incoming.Confidence-cur.Confidence) <= e.Epsilon {
		return e.Priority[incoming.Source] < e.Priority[cur.Source]
	}
	return incoming.Confidence > cur.Confidence+e.Epsilon
}
