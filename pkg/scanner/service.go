// Package scanner computes the gap between externally-known catalogs and
// the local library, emitting gap-fill work items in bounded batches.
package scanner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/listenarr/listenarr/pkg/config"
	"github.com/listenarr/listenarr/pkg/library"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/sources"
	"github.com/listenarr/listenarr/pkg/targets"
	"github.com/listenarr/listenarr/pkg/titles"
	"github.com/listenarr/listenarr/pkg/workitems"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type Service struct {
	config *config.Config

	workItemService *workitems.Service
	libraryService  *library.Service
	targetService   *targets.Service
	chains          *sources.ChainSet
}

func NewService(cfg *config.Config, workItemService *workitems.Service, libraryService *library.Service, targetService *targets.Service, chains *sources.ChainSet) *Service {
	return &Service{
		config:          cfg,
		workItemService: workItemService,
		libraryService:  libraryService,
		targetService:   targetService,
		chains:          chains,
	}
}

// gapCandidate is one externally-known book the library might be missing.
type gapCandidate struct {
	title        string
	author       string
	seriesName   *string
	seriesNumber *float64
	isbn         *string
}

// ScanSeries queries the bibliographic source for the full ordered book
// list, diffs it against owned books by position and title similarity, and
// emits series_gap_fill work items for the missing entries.
func (svc *Service) ScanSeries(ctx context.Context, target *models.CompletionTarget) ([]*models.WorkItem, error) {
	biblio := svc.chains.Biblio()
	if biblio == nil {
		return nil, errors.New("no bibliographic adapter configured")
	}

	results, err := biblio.Find(ctx, sources.TargetDescriptor{SeriesName: target.Name})
	if err != nil {
		if sources.KindOf(err) == models.ErrorKindNotFound {
			// Unknown series; record the pass with what we know.
			return nil, svc.targetService.RecordScan(ctx, target, 0, 0, time.Now())
		}
		return nil, err
	}

	owned, err := svc.libraryService.ListBooks(ctx, library.ListBooksOptions{SeriesName: &target.Name})
	if err != nil {
		return nil, err
	}

	var missing []gapCandidate
	matched := 0
	for _, r := range results {
		title := r.Fields[models.FieldTitle]
		if title == "" {
			continue
		}
		var number *float64
		if n, ok := r.SeriesNumber(); ok {
			number = &n
		}
		if library.Owns(owned, title, number) {
			matched++
			continue
		}
		name := target.Name
		missing = append(missing, gapCandidate{
			title:        title,
			author:       r.Fields[models.FieldAuthor],
			seriesName:   &name,
			seriesNumber: number,
			isbn:         optional(r.Fields[models.FieldISBN]),
		})
	}

	items, err := svc.emit(ctx, models.WorkItemKindSeriesGapFill, missing)
	if err != nil {
		return nil, err
	}

	if err := svc.targetService.RecordScan(ctx, target, len(results), matched, time.Now()); err != nil {
		return nil, err
	}

	return items, nil
}

// ScanAuthor unions candidate titles across every adapter, since no single
// source carries a complete audiobook bibliography, then diffs against the
// owned shelf and emits author_gap_fill work items.
func (svc *Service) ScanAuthor(ctx context.Context, target *models.CompletionTarget) ([]*models.WorkItem, error) {
	log := logger.FromContext(ctx)

	seen := map[string]gapCandidate{}
	var order []string
	for _, adapter := range svc.chains.All() {
		results, err := adapter.Find(ctx, sources.TargetDescriptor{Author: target.Name})
		if err != nil {
			// One source failing must not sink the union; the others still
			// contribute.
			log.Warn("author scan source failed", logger.Data{
				"adapter": adapter.Name(),
				"error":   err.Error(),
			})
			continue
		}
		for _, r := range results {
			title := r.Fields[models.FieldTitle]
			if title == "" {
				continue
			}
			// Union by the normalized title form, never the identifier:
			// sources disagree on whether they carry an ISBN for the same
			// book, and an identifier-based key would let both through.
			key := titles.Key(title, target.Name, nil, "")
			if existing, ok := seen[key]; ok {
				if existing.isbn == nil {
					existing.isbn = optional(r.Fields[models.FieldISBN])
					seen[key] = existing
				}
				continue
			}
			seen[key] = gapCandidate{
				title:  title,
				author: target.Name,
				isbn:   optional(r.Fields[models.FieldISBN]),
			}
			order = append(order, key)
		}
	}

	owned, err := svc.libraryService.ListBooks(ctx, library.ListBooksOptions{Author: &target.Name})
	if err != nil {
		return nil, err
	}

	var missing []gapCandidate
	matched := 0
	for _, key := range order {
		candidate := seen[key]
		if library.Owns(owned, candidate.title, nil) {
			matched++
			continue
		}
		missing = append(missing, candidate)
	}

	items, err := svc.emit(ctx, models.WorkItemKindAuthorGapFill, missing)
	if err != nil {
		return nil, err
	}

	if err := svc.targetService.RecordScan(ctx, target, len(seen), matched, time.Now()); err != nil {
		return nil, err
	}

	return items, nil
}

// emit creates work items for the missing candidates, deduplicated against
// any existing non-abandoned item for the same target, grouped into
// fixed-size batches so downstream acquisition is never flooded.
func (svc *Service) emit(ctx context.Context, kind string, missing []gapCandidate) ([]*models.WorkItem, error) {
	var items []*models.WorkItem
	var batchID string

	for _, candidate := range missing {
		item := &models.WorkItem{
			Kind:         kind,
			Title:        candidate.title,
			Author:       candidate.author,
			SeriesName:   candidate.seriesName,
			SeriesNumber: candidate.seriesNumber,
			ISBN:         candidate.isbn,
			MaxRetries:   svc.config.MaxRetries,
		}
		// Gap items key on the title form so that a rescan where a source
		// gains or loses an ISBN still collapses onto the same target. The
		// identifier key is checked too, to avoid racing an item queued
		// under it elsewhere.
		item.TargetKey = titles.Key(item.Title, item.Author, item.SeriesNumber, "")

		active, err := svc.workItemService.HasActiveForTarget(ctx, item.TargetKey)
		if err != nil {
			return nil, err
		}
		if !active {
			if idKey := item.ComputeTargetKey(); idKey != item.TargetKey {
				active, err = svc.workItemService.HasActiveForTarget(ctx, idKey)
				if err != nil {
					return nil, err
				}
			}
		}
		if active {
			continue
		}

		if len(items)%svc.config.ScanBatchSize == 0 {
			batchID = uuid.NewString()
		}
		id := batchID
		item.BatchID = &id

		if err := svc.workItemService.CreateWorkItem(ctx, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
