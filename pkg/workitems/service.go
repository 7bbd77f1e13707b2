// Package workitems is the durable job store: every unit of acquisition
// work, its state machine, its claim token, and the permanent failure and
// correction trails that outlive it.
package workitems

import (
	"context"
	"database/sql"
	"time"

	"github.com/listenarr/listenarr/pkg/errcodes"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveWorkItemOptions struct {
	ID *int
}

type ListWorkItemsOptions struct {
	Limit     *int
	Offset    *int
	Kinds     []string
	States    []string
	BatchID   *string
	TargetKey *string

	// DueAt restricts to items eligible to run at the given time: queued, or
	// failed_retryable past its next_eligible_at.
	DueAt *time.Time
}

type UpdateWorkItemOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// CreateWorkItem inserts a new queued item. The target key is derived from
// the descriptor when the caller didn't set one.
func (svc *Service) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	if item.Title == "" && item.Author == "" {
		return errcodes.InvalidTarget("a work item needs at least a title or an author")
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	if item.State == "" {
		item.State = models.WorkItemStateQueued
	}
	if item.TargetKey == "" {
		item.TargetKey = item.ComputeTargetKey()
	}
	if err := item.MarshalMerged(); err != nil {
		return err
	}

	_, err := svc.db.
		NewInsert().
		Model(item).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveWorkItem(ctx context.Context, opts RetrieveWorkItemOptions) (*models.WorkItem, error) {
	item := &models.WorkItem{}

	q := svc.db.
		NewSelect().
		Model(item)

	if opts.ID != nil {
		q = q.Where("wi.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Work item")
		}
		return nil, errors.WithStack(err)
	}

	if err := item.UnmarshalMerged(); err != nil {
		return nil, err
	}

	return item, nil
}

func (svc *Service) ListWorkItems(ctx context.Context, opts ListWorkItemsOptions) ([]*models.WorkItem, error) {
	items := []*models.WorkItem{}

	q := svc.db.
		NewSelect().
		Model(&items).
		Order("wi.created_at ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Kinds != nil {
		q = q.Where("wi.kind IN (?)", bun.In(opts.Kinds))
	}
	if opts.States != nil {
		q = q.Where("wi.state IN (?)", bun.In(opts.States))
	}
	if opts.BatchID != nil {
		q = q.Where("wi.batch_id = ?", *opts.BatchID)
	}
	if opts.TargetKey != nil {
		q = q.Where("wi.target_key = ?", *opts.TargetKey)
	}
	if opts.DueAt != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("wi.state = ?", models.WorkItemStateQueued).
				WhereGroup(" OR ", func(ssq *bun.SelectQuery) *bun.SelectQuery {
					return ssq.
						Where("wi.state = ?", models.WorkItemStateFailedRetryable).
						Where("wi.next_eligible_at <= ?", *opts.DueAt)
				})
		})
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, item := range items {
		if err := item.UnmarshalMerged(); err != nil {
			return nil, err
		}
	}

	return items, nil
}

// ListDue returns items eligible to run at now, oldest first.
func (svc *Service) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.WorkItem, error) {
	return svc.ListWorkItems(ctx, ListWorkItemsOptions{
		Limit: &limit,
		DueAt: &now,
	})
}

// HasActiveForTarget reports whether any non-abandoned work item exists for
// the target key. Used to deduplicate scanner output.
func (svc *Service) HasActiveForTarget(ctx context.Context, targetKey string) (bool, error) {
	count, err := svc.db.NewSelect().
		Model((*models.WorkItem)(nil)).
		Where("wi.target_key = ?", targetKey).
		Where("wi.state != ?", models.WorkItemStateAbandoned).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// Claim atomically transitions an eligible item to in_progress on behalf of
// processID. This conditional update is the one cross-worker
// synchronization point: exactly one claimer wins, everyone else gets
// errcodes.AlreadyClaimed.
func (svc *Service) Claim(ctx context.Context, item *models.WorkItem, processID string) error {
	now := time.Now()

	res, err := svc.db.NewUpdate().
		Model((*models.WorkItem)(nil)).
		Set("state = ?", models.WorkItemStateInProgress).
		Set("process_id = ?", processID).
		Set("updated_at = ?", now).
		Where("wi.id = ?", item.ID).
		Where("wi.state IN (?)", bun.In([]string{models.WorkItemStateQueued, models.WorkItemStateFailedRetryable})).
		Where("wi.process_id IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return errcodes.AlreadyClaimed(item.ID)
	}

	item.State = models.WorkItemStateInProgress
	item.ProcessID = &processID
	item.UpdatedAt = now
	return nil
}

// Unclaim releases a claimed item back to its pre-claim state without
// touching its retry budget.
func (svc *Service) Unclaim(ctx context.Context, item *models.WorkItem) error {
	state := models.WorkItemStateQueued
	if item.RetryCount > 0 {
		state = models.WorkItemStateFailedRetryable
	}

	_, err := svc.db.NewUpdate().
		Model((*models.WorkItem)(nil)).
		Set("state = ?", state).
		Set("process_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("wi.id = ?", item.ID).
		Where("wi.state = ?", models.WorkItemStateInProgress).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	item.State = state
	item.ProcessID = nil
	return nil
}

// ReleaseByProcess releases every item still claimed by processID. Called
// on shutdown so nothing is left stuck in_progress.
func (svc *Service) ReleaseByProcess(ctx context.Context, processID string) (int, error) {
	res, err := svc.db.NewUpdate().
		Model((*models.WorkItem)(nil)).
		Set("state = CASE WHEN retry_count > 0 THEN ? ELSE ? END",
			models.WorkItemStateFailedRetryable, models.WorkItemStateQueued).
		Set("process_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("wi.state = ?", models.WorkItemStateInProgress).
		Where("wi.process_id = ?", processID).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(affected), nil
}

func (svc *Service) UpdateWorkItem(ctx context.Context, item *models.WorkItem, opts UpdateWorkItemOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if err := item.MarshalMerged(); err != nil {
		return err
	}

	// Update updated_at.
	now := time.Now()
	item.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(item).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Work item")
		}
		return errors.WithStack(err)
	}

	return nil
}

// SaveAttempt persists the full post-attempt state of an item in one write.
func (svc *Service) SaveAttempt(ctx context.Context, item *models.WorkItem) error {
	return svc.UpdateWorkItem(ctx, item, UpdateWorkItemOptions{
		Columns: []string{
			"state",
			"retry_count",
			"next_eligible_at",
			"last_error_kind",
			"last_error_detail",
			"process_id",
			"merged",
		},
	})
}

// CountActiveInBatch counts batch members not yet in a terminal state. A
// batch's all-complete signal fires when this reaches zero.
func (svc *Service) CountActiveInBatch(ctx context.Context, batchID string) (int, error) {
	count, err := svc.db.NewSelect().
		Model((*models.WorkItem)(nil)).
		Where("wi.batch_id = ?", batchID).
		Where("wi.state NOT IN (?)", bun.In([]string{models.WorkItemStateSucceeded, models.WorkItemStateAbandoned})).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
