package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	CompletionTargetKindSeries = "series"
	CompletionTargetKindAuthor = "author"
)

// CompletionTarget tracks a series or author against its externally-known
// catalog. Targets are refreshed on every scanner pass and never deleted, so
// the gap column doubles as long-run trend data.
type CompletionTarget struct {
	bun.BaseModel `bun:"table:completion_targets,alias:ct"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind          string     `bun:",nullzero" json:"kind"`
	Name          string     `bun:",nullzero" json:"name"`
	ExternalTotal int        `json:"external_total"`
	OwnedCount    int        `json:"owned_count"`
	Gap           int        `json:"gap"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
}

// Scanned reports whether the target has been through at least one pass.
func (ct *CompletionTarget) Scanned() bool {
	return ct.LastScannedAt != nil
}

// Complete reports whether the last scan found no gap.
func (ct *CompletionTarget) Complete() bool {
	return ct.Scanned() && ct.Gap == 0
}
