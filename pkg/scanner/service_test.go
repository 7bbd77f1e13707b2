package scanner

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/listenarr/listenarr/pkg/config"
	"github.com/listenarr/listenarr/pkg/library"
	"github.com/listenarr/listenarr/pkg/migrations"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/sources"
	"github.com/listenarr/listenarr/pkg/targets"
	"github.com/listenarr/listenarr/pkg/titles"
	"github.com/listenarr/listenarr/pkg/workitems"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type fakeAdapter struct {
	name    string
	results []sources.AcquisitionResult
	err     error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Find(_ context.Context, _ sources.TargetDescriptor) ([]sources.AcquisitionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type testContext struct {
	ctx context.Context
	db  *bun.DB

	workItemService *workitems.Service
	libraryService  *library.Service
	targetService   *targets.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	// One connection so the in-memory database is shared.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return &testContext{
		ctx:             logger.New().WithContext(context.Background()),
		db:              db,
		workItemService: workitems.NewService(db),
		libraryService:  library.NewService(db),
		targetService:   targets.NewService(db),
	}
}

func newScanner(t *testing.T, tc *testContext, biblio, torrent, scraper sources.Adapter) (*Service, *config.Config) {
	t.Helper()

	cfg := config.NewForTest()
	if torrent == nil {
		torrent = &fakeAdapter{name: models.SourceTorrentTracker, err: sources.NotFound("no torrents matched")}
	}
	if scraper == nil {
		scraper = &fakeAdapter{name: models.SourceCommunityScraper, err: sources.NotFound("no results")}
	}
	chains := sources.NewChainSet(torrent, biblio, scraper)
	return NewService(cfg, tc.workItemService, tc.libraryService, tc.targetService, chains), cfg
}

func seriesResult(title string, position float64) sources.AcquisitionResult {
	return sources.AcquisitionResult{
		Source:     models.SourceBiblioAPI,
		Confidence: 0.8,
		Fields: map[string]string{
			models.FieldTitle:        title,
			models.FieldAuthor:       "Frank Herbert",
			models.FieldSeriesName:   "Dune",
			models.FieldSeriesNumber: fmt.Sprintf("%g", position),
		},
	}
}

func ownBook(t *testing.T, tc *testContext, title string, position float64) {
	t.Helper()
	err := tc.libraryService.CreateBook(tc.ctx, &models.Book{
		Title:        title,
		Author:       "Frank Herbert",
		SeriesName:   pointerutil.String("Dune"),
		SeriesNumber: pointerutil.Float64(position),
	})
	require.NoError(t, err)
}

func TestScanSeries_EmitsGapFillItems(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, results: []sources.AcquisitionResult{
		seriesResult("Dune", 1),
		seriesResult("Dune Messiah", 2),
		seriesResult("Children of Dune", 3),
		seriesResult("God Emperor of Dune", 4),
		seriesResult("Heretics of Dune", 5),
	}}
	svc, _ := newScanner(t, tc, biblio, nil, nil)

	ownBook(t, tc, "Dune", 1)
	ownBook(t, tc, "Dune Messiah", 2)
	ownBook(t, tc, "God Emperor of Dune", 4)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindSeries, "Dune")
	require.NoError(t, err)

	items, err := svc.ScanSeries(tc.ctx, target)
	require.NoError(t, err)

	require.Len(t, items, 2)
	titles := []string{items[0].Title, items[1].Title}
	assert.ElementsMatch(t, []string{"Children of Dune", "Heretics of Dune"}, titles)
	for _, item := range items {
		assert.Equal(t, models.WorkItemKindSeriesGapFill, item.Kind)
		assert.Equal(t, models.WorkItemStateQueued, item.State)
		require.NotNil(t, item.BatchID)
	}

	// The target reflects the pass: 5 known, 3 owned, gap 2.
	target, err = tc.targetService.RetrieveTarget(tc.ctx, models.CompletionTargetKindSeries, "Dune")
	require.NoError(t, err)
	assert.Equal(t, 5, target.ExternalTotal)
	assert.Equal(t, 3, target.OwnedCount)
	assert.Equal(t, 2, target.Gap)
	assert.True(t, target.Scanned())
}

func TestScanSeries_RescanDoesNotDuplicate(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, results: []sources.AcquisitionResult{
		seriesResult("Dune", 1),
		seriesResult("Dune Messiah", 2),
	}}
	svc, _ := newScanner(t, tc, biblio, nil, nil)

	ownBook(t, tc, "Dune", 1)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindSeries, "Dune")
	require.NoError(t, err)

	first, err := svc.ScanSeries(tc.ctx, target)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := svc.ScanSeries(tc.ctx, target)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestScanSeries_BatchesBySize(t *testing.T) {
	tc := newTestContext(t)

	results := []sources.AcquisitionResult{}
	for i := 1; i <= 5; i++ {
		results = append(results, seriesResult(fmt.Sprintf("Book %d", i), float64(i)))
	}
	biblio := &fakeAdapter{name: models.SourceBiblioAPI, results: results}
	svc, cfg := newScanner(t, tc, biblio, nil, nil)
	cfg.ScanBatchSize = 2

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindSeries, "Dune")
	require.NoError(t, err)

	items, err := svc.ScanSeries(tc.ctx, target)
	require.NoError(t, err)
	require.Len(t, items, 5)

	batches := map[string]int{}
	for _, item := range items {
		require.NotNil(t, item.BatchID)
		batches[*item.BatchID]++
	}
	assert.Len(t, batches, 3)
	for _, size := range batches {
		assert.LessOrEqual(t, size, 2)
	}
}

func TestScanSeries_UnknownSeriesRecordsScan(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, err: sources.NotFound("no volumes matched")}
	svc, _ := newScanner(t, tc, biblio, nil, nil)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindSeries, "Obscure")
	require.NoError(t, err)

	items, err := svc.ScanSeries(tc.ctx, target)
	require.NoError(t, err)
	assert.Empty(t, items)

	target, err = tc.targetService.RetrieveTarget(tc.ctx, models.CompletionTargetKindSeries, "Obscure")
	require.NoError(t, err)
	assert.True(t, target.Scanned())
	assert.Equal(t, 0, target.Gap)
}

func TestScanAuthor_UnionsAcrossSources(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceBiblioAPI,
			Confidence: 0.8,
			Fields:     map[string]string{models.FieldTitle: "Dune", models.FieldAuthor: "Frank Herbert"},
		},
	}}
	scraper := &fakeAdapter{name: models.SourceCommunityScraper, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceCommunityScraper,
			Confidence: 0.7,
			// Same book under a different article form: must dedupe.
			Fields: map[string]string{models.FieldTitle: "The Dune", models.FieldAuthor: "Frank Herbert"},
		},
		{
			Source:     models.SourceCommunityScraper,
			Confidence: 0.7,
			Fields:     map[string]string{models.FieldTitle: "The Santaroga Barrier", models.FieldAuthor: "Frank Herbert"},
		},
	}}
	svc, _ := newScanner(t, tc, biblio, nil, scraper)

	err := tc.libraryService.CreateBook(tc.ctx, &models.Book{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindAuthor, "Frank Herbert")
	require.NoError(t, err)

	items, err := svc.ScanAuthor(tc.ctx, target)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "The Santaroga Barrier", items[0].Title)
	assert.Equal(t, models.WorkItemKindAuthorGapFill, items[0].Kind)
}

func TestScanAuthor_OneSourceFailingDoesNotSinkUnion(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, err: sources.Transient(nil, "rate limited")}
	scraper := &fakeAdapter{name: models.SourceCommunityScraper, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceCommunityScraper,
			Confidence: 0.7,
			Fields:     map[string]string{models.FieldTitle: "Hellstrom's Hive", models.FieldAuthor: "Frank Herbert"},
		},
	}}
	svc, _ := newScanner(t, tc, biblio, nil, scraper)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindAuthor, "Frank Herbert")
	require.NoError(t, err)

	items, err := svc.ScanAuthor(tc.ctx, target)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hellstrom's Hive", items[0].Title)
}

func TestScanAuthor_IdentifierDisagreementStillDedupes(t *testing.T) {
	tc := newTestContext(t)

	biblio := &fakeAdapter{name: models.SourceBiblioAPI, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceBiblioAPI,
			Confidence: 0.85,
			Fields: map[string]string{
				models.FieldTitle:  "Whipping Star",
				models.FieldAuthor: "Frank Herbert",
				models.FieldISBN:   "9780765317759",
			},
		},
	}}
	// The scraper knows the same book but carries no identifier.
	scraper := &fakeAdapter{name: models.SourceCommunityScraper, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceCommunityScraper,
			Confidence: 0.7,
			Fields:     map[string]string{models.FieldTitle: "Whipping Star", models.FieldAuthor: "Frank Herbert"},
		},
	}}
	svc, _ := newScanner(t, tc, biblio, nil, scraper)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindAuthor, "Frank Herbert")
	require.NoError(t, err)

	items, err := svc.ScanAuthor(tc.ctx, target)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Whipping Star", items[0].Title)
	require.NotNil(t, items[0].ISBN)
	assert.Equal(t, "9780765317759", *items[0].ISBN)
	assert.Equal(t, titles.Key("Whipping Star", "Frank Herbert", nil, ""), items[0].TargetKey)

	// A rescan while the item is still active must not emit it again,
	// whichever source answers first.
	items, err = svc.ScanAuthor(tc.ctx, target)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScanAuthor_ActiveIdentifierItemSuppressesGapFill(t *testing.T) {
	tc := newTestContext(t)

	isbn := "9780765317759"
	queued := &models.WorkItem{
		Kind:       models.WorkItemKindDownload,
		Title:      "Whipping Star",
		Author:     "Frank Herbert",
		ISBN:       &isbn,
		MaxRetries: 3,
	}
	queued.TargetKey = queued.ComputeTargetKey()
	require.NoError(t, tc.workItemService.CreateWorkItem(tc.ctx, queued))

	scraper := &fakeAdapter{name: models.SourceCommunityScraper, results: []sources.AcquisitionResult{
		{
			Source:     models.SourceCommunityScraper,
			Confidence: 0.7,
			Fields: map[string]string{
				models.FieldTitle:  "Whipping Star",
				models.FieldAuthor: "Frank Herbert",
				models.FieldISBN:   isbn,
			},
		},
	}}
	svc, _ := newScanner(t, tc, &fakeAdapter{name: models.SourceBiblioAPI}, nil, scraper)

	target, err := tc.targetService.UpsertTarget(tc.ctx, models.CompletionTargetKindAuthor, "Frank Herbert")
	require.NoError(t, err)

	items, err := svc.ScanAuthor(tc.ctx, target)
	require.NoError(t, err)
	assert.Empty(t, items)
}
