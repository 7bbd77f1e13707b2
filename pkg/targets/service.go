// Package targets tracks series and authors against their externally-known
// catalogs. Targets are created on first discovery and never deleted; the
// gap history is long-run trend data.
package targets

import (
	"context"
	"database/sql"
	"time"

	"github.com/listenarr/listenarr/pkg/errcodes"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListTargetsOptions struct {
	Kind  *string
	Limit *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// UpsertTarget creates the target on first discovery and returns the stored
// row either way.
func (svc *Service) UpsertTarget(ctx context.Context, kind, name string) (*models.CompletionTarget, error) {
	now := time.Now()
	target := &models.CompletionTarget{
		CreatedAt: now,
		UpdatedAt: now,
		Kind:      kind,
		Name:      name,
	}

	_, err := svc.db.NewInsert().
		Model(target).
		On("CONFLICT (kind, name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.RetrieveTarget(ctx, kind, name)
}

func (svc *Service) RetrieveTarget(ctx context.Context, kind, name string) (*models.CompletionTarget, error) {
	target := &models.CompletionTarget{}

	err := svc.db.
		NewSelect().
		Model(target).
		Where("ct.kind = ?", kind).
		Where("ct.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Completion target")
		}
		return nil, errors.WithStack(err)
	}

	return target, nil
}

func (svc *Service) ListTargets(ctx context.Context, opts ListTargetsOptions) ([]*models.CompletionTarget, error) {
	targets := []*models.CompletionTarget{}

	q := svc.db.
		NewSelect().
		Model(&targets).
		Order("ct.name ASC")

	if opts.Kind != nil {
		q = q.Where("ct.kind = ?", *opts.Kind)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return targets, nil
}

// RecordScan stores the result of one completeness pass.
func (svc *Service) RecordScan(ctx context.Context, target *models.CompletionTarget, externalTotal, ownedCount int, scannedAt time.Time) error {
	target.ExternalTotal = externalTotal
	target.OwnedCount = ownedCount
	target.Gap = externalTotal - ownedCount
	if target.Gap < 0 {
		target.Gap = 0
	}
	target.LastScannedAt = &scannedAt
	target.UpdatedAt = time.Now()

	_, err := svc.db.
		NewUpdate().
		Model(target).
		Column("external_total", "owned_count", "gap", "last_scanned_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}
