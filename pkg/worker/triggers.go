package worker

import (
	"context"
	"time"

	"github.com/listenarr/listenarr/pkg/library"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/targets"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
)

// runDiscovery seeds completion targets from the owned library and queues
// discover items for books that still lack a stable external identifier.
// Everything downstream (scans, gap fills) keys off the targets created
// here.
func (w *Worker) runDiscovery(ctx context.Context) (processed, failed int, err error) {
	books, err := w.libraryService.ListBooks(ctx, library.ListBooksOptions{})
	if err != nil {
		return 0, 0, err
	}

	seenAuthors := map[string]bool{}
	seenSeries := map[string]bool{}

	for _, book := range books {
		if book.Author != "" && !seenAuthors[book.Author] {
			seenAuthors[book.Author] = true
			if _, err := w.targetService.UpsertTarget(ctx, models.CompletionTargetKindAuthor, book.Author); err != nil {
				return processed, failed, err
			}
		}
		if book.SeriesName != nil && *book.SeriesName != "" && !seenSeries[*book.SeriesName] {
			seenSeries[*book.SeriesName] = true
			if _, err := w.targetService.UpsertTarget(ctx, models.CompletionTargetKindSeries, *book.SeriesName); err != nil {
				return processed, failed, err
			}
		}

		if book.ISBN != nil || book.ASIN != nil {
			continue
		}
		created, err := w.queueItem(ctx, models.WorkItemKindDiscover, book)
		if err != nil {
			return processed, failed, err
		}
		if created {
			processed++
		}
	}

	return processed, failed, nil
}

// runTopNScan refreshes metadata for the most recently acquired books.
func (w *Worker) runTopNScan(ctx context.Context) (processed, failed int, err error) {
	books, err := w.libraryService.ListBooks(ctx, library.ListBooksOptions{
		Limit:         pointerutil.Int(w.config.TopNPerCategory),
		OrderByRecent: true,
	})
	if err != nil {
		return 0, 0, err
	}
	return w.queueRefresh(ctx, books)
}

// runFullRefresh queues a metadata refresh for every owned book.
func (w *Worker) runFullRefresh(ctx context.Context) (processed, failed int, err error) {
	books, err := w.libraryService.ListBooks(ctx, library.ListBooksOptions{})
	if err != nil {
		return 0, 0, err
	}
	return w.queueRefresh(ctx, books)
}

// runPartialRefresh queues a metadata refresh for books acquired in the
// last week, where external metadata is still settling.
func (w *Worker) runPartialRefresh(ctx context.Context) (processed, failed int, err error) {
	cutoff := time.Now().AddDate(0, 0, -7)
	books, err := w.libraryService.ListBooks(ctx, library.ListBooksOptions{
		AcquiredAfter: &cutoff,
	})
	if err != nil {
		return 0, 0, err
	}
	return w.queueRefresh(ctx, books)
}

// runSeriesScan runs a completeness pass over every series target. One
// target's failure doesn't abort the rest of the pass, but it does count
// against the run.
func (w *Worker) runSeriesScan(ctx context.Context) (processed, failed int, err error) {
	log := logger.FromContext(ctx)

	list, err := w.targetService.ListTargets(ctx, targets.ListTargetsOptions{
		Kind: pointerutil.String(models.CompletionTargetKindSeries),
	})
	if err != nil {
		return 0, 0, err
	}

	for _, target := range list {
		items, err := w.scanService.ScanSeries(ctx, target)
		if err != nil {
			log.Err(err).Error("series scan error", logger.Data{"series": target.Name})
			failed++
			continue
		}
		processed += len(items)
	}
	return processed, failed, nil
}

// runAuthorScan runs a completeness pass over every author target.
func (w *Worker) runAuthorScan(ctx context.Context) (processed, failed int, err error) {
	log := logger.FromContext(ctx)

	list, err := w.targetService.ListTargets(ctx, targets.ListTargetsOptions{
		Kind: pointerutil.String(models.CompletionTargetKindAuthor),
	})
	if err != nil {
		return 0, 0, err
	}

	for _, target := range list {
		items, err := w.scanService.ScanAuthor(ctx, target)
		if err != nil {
			log.Err(err).Error("author scan error", logger.Data{"author": target.Name})
			failed++
			continue
		}
		processed += len(items)
	}
	return processed, failed, nil
}

// runCorrectionsSweep deletes corrections past the retention window.
func (w *Worker) runCorrectionsSweep(ctx context.Context) (processed, failed int, err error) {
	cutoff := time.Now().Add(-w.config.CorrectionRetention)
	swept, err := w.workItemService.SweepCorrections(ctx, cutoff)
	return swept, 0, err
}

func (w *Worker) queueRefresh(ctx context.Context, books []*models.Book) (int, int, error) {
	processed := 0
	for _, book := range books {
		created, err := w.queueItem(ctx, models.WorkItemKindMetadataRefresh, book)
		if err != nil {
			return processed, 0, err
		}
		if created {
			processed++
		}
	}
	return processed, 0, nil
}

// queueItem creates a work item for a book unless a non-abandoned item for
// the same target already exists.
func (w *Worker) queueItem(ctx context.Context, kind string, book *models.Book) (bool, error) {
	item := &models.WorkItem{
		Kind:         kind,
		Title:        book.Title,
		Author:       book.Author,
		SeriesName:   book.SeriesName,
		SeriesNumber: book.SeriesNumber,
		ISBN:         book.ISBN,
		ASIN:         book.ASIN,
		MaxRetries:   w.config.MaxRetries,
	}
	item.TargetKey = item.ComputeTargetKey()

	active, err := w.workItemService.HasActiveForTarget(ctx, item.TargetKey)
	if err != nil {
		return false, err
	}
	if active {
		return false, nil
	}

	if err := w.workItemService.CreateWorkItem(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}
