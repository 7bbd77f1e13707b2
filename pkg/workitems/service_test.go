package workitems

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/listenarr/listenarr/pkg/errcodes"
	"github.com/listenarr/listenarr/pkg/migrations"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
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

	return db
}

func newItem(kind, title string) *models.WorkItem {
	return &models.WorkItem{
		Kind:       kind,
		Title:      title,
		Author:     "Frank Herbert",
		MaxRetries: 3,
	}
}

func TestCreateWorkItem(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	err := svc.CreateWorkItem(ctx, item)
	require.NoError(t, err)

	assert.NotZero(t, item.ID)
	assert.Equal(t, models.WorkItemStateQueued, item.State)
	assert.Equal(t, "dune|frank herbert", item.TargetKey)

	got, err := svc.RetrieveWorkItem(ctx, RetrieveWorkItemOptions{ID: &item.ID})
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.NotNil(t, got.MergedParsed)
}

func TestCreateWorkItem_EmptyTarget(t *testing.T) {
	svc := NewService(newTestDB(t))

	err := svc.CreateWorkItem(context.Background(), &models.WorkItem{Kind: models.WorkItemKindDownload})
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeInvalidTarget))
}

func TestRetrieveWorkItem_NotFound(t *testing.T) {
	svc := NewService(newTestDB(t))

	_, err := svc.RetrieveWorkItem(context.Background(), RetrieveWorkItemOptions{ID: pointerutil.Int(99)})
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
}

func TestClaim(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	require.NoError(t, svc.CreateWorkItem(ctx, item))

	err := svc.Claim(ctx, item, "proc-a")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStateInProgress, item.State)
	require.NotNil(t, item.ProcessID)
	assert.Equal(t, "proc-a", *item.ProcessID)
}

func TestClaim_SecondClaimerLoses(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	require.NoError(t, svc.CreateWorkItem(ctx, item))

	require.NoError(t, svc.Claim(ctx, item, "proc-a"))

	err := svc.Claim(ctx, item, "proc-b")
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeAlreadyClaimed))
}

func TestClaim_TerminalStateNotClaimable(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	item.State = models.WorkItemStateAbandoned
	require.NoError(t, svc.CreateWorkItem(ctx, item))

	err := svc.Claim(ctx, item, "proc-a")
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeAlreadyClaimed))
}

func TestUnclaim(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	require.NoError(t, svc.CreateWorkItem(ctx, item))
	require.NoError(t, svc.Claim(ctx, item, "proc-a"))

	require.NoError(t, svc.Unclaim(ctx, item))
	assert.Equal(t, models.WorkItemStateQueued, item.State)
	assert.Nil(t, item.ProcessID)

	// And the item is claimable again.
	require.NoError(t, svc.Claim(ctx, item, "proc-b"))
}

func TestUnclaim_WithRetriesGoesBackToFailedRetryable(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	item.RetryCount = 1
	require.NoError(t, svc.CreateWorkItem(ctx, item))
	require.NoError(t, svc.Claim(ctx, item, "proc-a"))

	require.NoError(t, svc.Unclaim(ctx, item))
	assert.Equal(t, models.WorkItemStateFailedRetryable, item.State)
}

func TestListDue(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()
	now := time.Now()

	queued := newItem(models.WorkItemKindDownload, "Queued")
	require.NoError(t, svc.CreateWorkItem(ctx, queued))

	eligible := newItem(models.WorkItemKindDownload, "Eligible")
	eligible.State = models.WorkItemStateFailedRetryable
	eligible.RetryCount = 1
	eligible.NextEligibleAt = pointerutil.Time(now.Add(-time.Hour))
	require.NoError(t, svc.CreateWorkItem(ctx, eligible))

	backedOff := newItem(models.WorkItemKindDownload, "Backed Off")
	backedOff.State = models.WorkItemStateFailedRetryable
	backedOff.RetryCount = 1
	backedOff.NextEligibleAt = pointerutil.Time(now.Add(24 * time.Hour))
	require.NoError(t, svc.CreateWorkItem(ctx, backedOff))

	done := newItem(models.WorkItemKindDownload, "Done")
	done.State = models.WorkItemStateSucceeded
	require.NoError(t, svc.CreateWorkItem(ctx, done))

	due, err := svc.ListDue(ctx, now, 10)
	require.NoError(t, err)

	titles := []string{}
	for _, item := range due {
		titles = append(titles, item.Title)
	}
	assert.ElementsMatch(t, []string{"Queued", "Eligible"}, titles)
}

func TestListWorkItems_Filters(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	a := newItem(models.WorkItemKindDownload, "Dune")
	a.BatchID = pointerutil.String("batch-1")
	require.NoError(t, svc.CreateWorkItem(ctx, a))

	b := newItem(models.WorkItemKindMetadataRefresh, "Dune Messiah")
	require.NoError(t, svc.CreateWorkItem(ctx, b))

	byKind, err := svc.ListWorkItems(ctx, ListWorkItemsOptions{Kinds: []string{models.WorkItemKindDownload}})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "Dune", byKind[0].Title)

	byBatch, err := svc.ListWorkItems(ctx, ListWorkItemsOptions{BatchID: pointerutil.String("batch-1")})
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, "Dune", byBatch[0].Title)

	byTarget, err := svc.ListWorkItems(ctx, ListWorkItemsOptions{TargetKey: &b.TargetKey})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, "Dune Messiah", byTarget[0].Title)
}

func TestHasActiveForTarget(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	require.NoError(t, svc.CreateWorkItem(ctx, item))

	active, err := svc.HasActiveForTarget(ctx, item.TargetKey)
	require.NoError(t, err)
	assert.True(t, active)

	// Abandoned items don't block re-creation.
	item.State = models.WorkItemStateAbandoned
	require.NoError(t, svc.UpdateWorkItem(ctx, item, UpdateWorkItemOptions{Columns: []string{"state"}}))

	active, err = svc.HasActiveForTarget(ctx, item.TargetKey)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestReleaseByProcess(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	fresh := newItem(models.WorkItemKindDownload, "Fresh")
	require.NoError(t, svc.CreateWorkItem(ctx, fresh))
	require.NoError(t, svc.Claim(ctx, fresh, "proc-a"))

	retried := newItem(models.WorkItemKindDownload, "Retried")
	retried.State = models.WorkItemStateFailedRetryable
	retried.RetryCount = 2
	retried.NextEligibleAt = pointerutil.Time(time.Now().Add(-time.Hour))
	require.NoError(t, svc.CreateWorkItem(ctx, retried))
	require.NoError(t, svc.Claim(ctx, retried, "proc-a"))

	other := newItem(models.WorkItemKindDownload, "Other")
	require.NoError(t, svc.CreateWorkItem(ctx, other))
	require.NoError(t, svc.Claim(ctx, other, "proc-b"))

	released, err := svc.ReleaseByProcess(ctx, "proc-a")
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	got, err := svc.RetrieveWorkItem(ctx, RetrieveWorkItemOptions{ID: &fresh.ID})
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStateQueued, got.State)
	assert.Nil(t, got.ProcessID)

	got, err = svc.RetrieveWorkItem(ctx, RetrieveWorkItemOptions{ID: &retried.ID})
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStateFailedRetryable, got.State)

	got, err = svc.RetrieveWorkItem(ctx, RetrieveWorkItemOptions{ID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStateInProgress, got.State)
}

func TestSaveAttempt_RoundTripsMergedRecord(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	item := newItem(models.WorkItemKindDownload, "Dune")
	require.NoError(t, svc.CreateWorkItem(ctx, item))

	item.State = models.WorkItemStateSucceeded
	item.MergedParsed = models.MergedRecord{
		models.FieldLink: {Value: "https://tracker.example/tor/download.php/1", Source: models.SourceTorrentTracker, Confidence: 0.9},
	}
	require.NoError(t, svc.SaveAttempt(ctx, item))

	got, err := svc.RetrieveWorkItem(ctx, RetrieveWorkItemOptions{ID: &item.ID})
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStateSucceeded, got.State)
	assert.True(t, got.MergedParsed.HasLink())
}

func TestCountActiveInBatch(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	batchID := "batch-1"
	states := []string{
		models.WorkItemStateQueued,
		models.WorkItemStateInProgress,
		models.WorkItemStateSucceeded,
		models.WorkItemStateAbandoned,
	}
	for i, state := range states {
		item := newItem(models.WorkItemKindSeriesGapFill, "Book")
		item.SeriesNumber = pointerutil.Float64(float64(i + 1))
		item.State = state
		item.BatchID = &batchID
		require.NoError(t, svc.CreateWorkItem(ctx, item))
	}

	count, err := svc.CountActiveInBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
