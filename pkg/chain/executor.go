// Package chain implements the fallback chain executor: try adapters in
// order for one work item, merging partial results, until the kind-specific
// sufficiency predicate is satisfied or the chain is exhausted.
package chain

import (
	"context"

	"github.com/listenarr/listenarr/pkg/metadata"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/sources"
)

const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient"
	OutcomePermanent    = "permanent"
)

// Attempt records what happened with one adapter in one chain execution.
type Attempt struct {
	Adapter    string
	ErrorKind  string
	Detail     string
	Candidates int
}

// Outcome is the result of one chain execution. Adapter errors never escape
// as Go errors; they are folded in here. Persistence is the caller's job.
type Outcome struct {
	Status      string
	Merged      models.MergedRecord
	Corrections []models.Correction
	Attempts    []Attempt
	ErrorKind   string
	ErrorDetail string
}

// Executor is pure: it owns no persistence and no shared state, so a single
// instance serves every worker.
type Executor struct {
	Engine                *metadata.Engine
	ConfidenceFloor       float64
	CompletenessThreshold float64
}

func NewExecutor(engine *metadata.Engine, confidenceFloor, completenessThreshold float64) *Executor {
	return &Executor{
		Engine:                engine,
		ConfidenceFloor:       confidenceFloor,
		CompletenessThreshold: completenessThreshold,
	}
}

// Execute runs the adapter chain for one work item. A transient or
// not-found failure moves on to the next adapter; a permanent failure
// aborts the chain. Once the sufficiency predicate passes, no further
// adapter is invoked.
func (e *Executor) Execute(ctx context.Context, item *models.WorkItem, adapters []sources.Adapter) Outcome {
	merged := item.MergedParsed.Clone()
	target := DescriptorFor(item)

	var attempts []Attempt
	var corrections []models.Correction

	for _, adapter := range adapters {
		if e.Sufficient(item.Kind, merged) {
			break
		}

		results, err := adapter.Find(ctx, target)
		if err != nil {
			kind := sources.KindOf(err)
			attempts = append(attempts, Attempt{
				Adapter:   adapter.Name(),
				ErrorKind: kind,
				Detail:    sources.DetailOf(err),
			})
			if kind == models.ErrorKindPermanent {
				return Outcome{
					Status:      OutcomePermanent,
					Merged:      merged,
					Corrections: corrections,
					Attempts:    attempts,
					ErrorKind:   models.ErrorKindPermanent,
					ErrorDetail: sources.DetailOf(err),
				}
			}
			continue
		}

		best, ok := bestCandidate(results, e.ConfidenceFloor)
		if !ok {
			// Everything under the confidence floor is treated as no match.
			attempts = append(attempts, Attempt{
				Adapter:    adapter.Name(),
				ErrorKind:  models.ErrorKindNotFound,
				Detail:     "no candidate above confidence floor",
				Candidates: len(results),
			})
			continue
		}

		var corrs []models.Correction
		merged, corrs = e.Engine.Merge(merged, best)
		for i := range corrs {
			corrs[i].WorkItemID = item.ID
		}
		corrections = append(corrections, corrs...)
		attempts = append(attempts, Attempt{Adapter: adapter.Name(), Candidates: len(results)})
	}

	if e.Sufficient(item.Kind, merged) {
		return Outcome{
			Status:      OutcomeSuccess,
			Merged:      merged,
			Corrections: corrections,
			Attempts:    attempts,
		}
	}

	kind, detail := summarizeFailure(attempts)
	return Outcome{
		Status:      OutcomeInsufficient,
		Merged:      merged,
		Corrections: corrections,
		Attempts:    attempts,
		ErrorKind:   kind,
		ErrorDetail: detail,
	}
}

// Sufficient is the kind-specific predicate deciding whether accumulated
// results are good enough to stop the chain.
func (e *Executor) Sufficient(kind string, merged models.MergedRecord) bool {
	switch kind {
	case models.WorkItemKindDownload:
		return merged.HasLink()
	case models.WorkItemKindMetadataRefresh:
		return merged.Completeness() >= e.CompletenessThreshold
	default:
		_, hasTitle := merged.Get(models.FieldTitle)
		_, hasAuthor := merged.Get(models.FieldAuthor)
		return hasTitle && hasAuthor && merged.HasLink()
	}
}

// DescriptorFor converts a work item's target descriptor for adapter calls.
func DescriptorFor(item *models.WorkItem) sources.TargetDescriptor {
	target := sources.TargetDescriptor{
		Title:        item.Title,
		Author:       item.Author,
		SeriesNumber: item.SeriesNumber,
	}
	if item.SeriesName != nil {
		target.SeriesName = *item.SeriesName
	}
	if item.ISBN != nil {
		target.ISBN = *item.ISBN
	}
	if item.ASIN != nil {
		target.ASIN = *item.ASIN
	}
	if item.BiblioID != nil {
		target.BiblioID = *item.BiblioID
	}
	return target
}

func bestCandidate(results []sources.AcquisitionResult, floor float64) (sources.AcquisitionResult, bool) {
	var best sources.AcquisitionResult
	found := false
	for _, r := range results {
		if r.Confidence < floor {
			continue
		}
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	}
	return best, found
}

// summarizeFailure classifies an exhausted chain: not_found only when every
// adapter reported not-found, otherwise transient.
func summarizeFailure(attempts []Attempt) (string, string) {
	if len(attempts) == 0 {
		return models.ErrorKindTransient, "no adapters configured for kind"
	}

	allNotFound := true
	detail := "chain exhausted without sufficiency"
	for _, a := range attempts {
		if a.ErrorKind == "" {
			// The adapter produced a merge but sufficiency never passed.
			allNotFound = false
			continue
		}
		if a.ErrorKind != models.ErrorKindNotFound {
			allNotFound = false
		}
		detail = a.Adapter + ": " + a.Detail
	}
	if allNotFound {
		return models.ErrorKindNotFound, "not found by any source"
	}
	return models.ErrorKindTransient, detail
}
