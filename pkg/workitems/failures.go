package workitems

import (
	"context"
	"database/sql"
	"time"

	"github.com/listenarr/listenarr/pkg/errcodes"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
)

// RecordFailure upserts the permanent failure trail for a target: one row
// per target key, attempts accumulating across the work item's whole
// lifetime, even across re-creation. Rows are never pruned. The permanent
// flag is sticky once set.
func (svc *Service) RecordFailure(ctx context.Context, targetKey, errorKind string, detail *string, permanent bool) error {
	now := time.Now()
	record := &models.FailureRecord{
		CreatedAt:       now,
		UpdatedAt:       now,
		TargetKey:       targetKey,
		Attempts:        1,
		LastErrorKind:   errorKind,
		LastErrorDetail: detail,
		Permanent:       permanent,
	}

	_, err := svc.db.NewInsert().
		Model(record).
		On("CONFLICT (target_key) DO UPDATE").
		Set("attempts = attempts + 1").
		Set("last_error_kind = EXCLUDED.last_error_kind").
		Set("last_error_detail = EXCLUDED.last_error_detail").
		Set("permanent = permanent OR EXCLUDED.permanent").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveFailureRecord(ctx context.Context, targetKey string) (*models.FailureRecord, error) {
	record := &models.FailureRecord{}

	err := svc.db.
		NewSelect().
		Model(record).
		Where("fr.target_key = ?", targetKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Failure record")
		}
		return nil, errors.WithStack(err)
	}

	return record, nil
}

func (svc *Service) ListFailureRecords(ctx context.Context) ([]*models.FailureRecord, error) {
	records := []*models.FailureRecord{}

	err := svc.db.
		NewSelect().
		Model(&records).
		Order("fr.updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return records, nil
}
