package workitems

import (
	"context"
	"time"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
)

type ListCorrectionsOptions struct {
	WorkItemID *int
	Limit      *int
}

// AppendCorrections writes merge-overwrite audit entries. The log is
// append-only; nothing in the orchestrator ever updates a correction.
func (svc *Service) AppendCorrections(ctx context.Context, corrections []*models.Correction) error {
	if len(corrections) == 0 {
		return nil
	}

	now := time.Now()
	for _, c := range corrections {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}

	_, err := svc.db.
		NewInsert().
		Model(&corrections).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) ListCorrections(ctx context.Context, opts ListCorrectionsOptions) ([]*models.Correction, error) {
	corrections := []*models.Correction{}

	q := svc.db.
		NewSelect().
		Model(&corrections).
		Order("c.created_at DESC")

	if opts.WorkItemID != nil {
		q = q.Where("c.work_item_id = ?", *opts.WorkItemID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return corrections, nil
}

// SweepCorrections deletes audit entries older than the cutoff, enforcing
// the 30-day retention window.
func (svc *Service) SweepCorrections(ctx context.Context, before time.Time) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Correction)(nil)).
		Where("c.created_at < ?", before).
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
