// Package runs persists one record per trigger execution so operators can
// see what the scheduler has been doing. Purely informational.
package runs

import (
	"context"
	"time"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListRunsOptions struct {
	Trigger *string
	Limit   *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) StartRun(ctx context.Context, trigger string) (*models.Run, error) {
	now := time.Now()
	run := &models.Run{
		CreatedAt: now,
		Trigger:   trigger,
		StartedAt: now,
	}

	_, err := svc.db.
		NewInsert().
		Model(run).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return run, nil
}

func (svc *Service) FinishRun(ctx context.Context, run *models.Run, processed, succeeded, failed int, runErr error) error {
	now := time.Now()
	run.FinishedAt = &now
	run.Processed = processed
	run.Succeeded = succeeded
	run.Failed = failed
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}

	_, err := svc.db.
		NewUpdate().
		Model(run).
		Column("finished_at", "processed", "succeeded", "failed", "error").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) ListRuns(ctx context.Context, opts ListRunsOptions) ([]*models.Run, error) {
	runs := []*models.Run{}

	q := svc.db.
		NewSelect().
		Model(&runs).
		Order("r.started_at DESC")

	if opts.Trigger != nil {
		q = q.Where("r.trigger_name = ?", *opts.Trigger)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return runs, nil
}
