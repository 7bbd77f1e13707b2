package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Correction records one field overwrite in a merged record. The log is
// append-only and swept on a 30-day retention window; it exists for audit,
// not control flow.
type Correction struct {
	bun.BaseModel `bun:"table:corrections,alias:c"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WorkItemID int     `bun:",nullzero" json:"work_item_id"`
	Field      string  `bun:",nullzero" json:"field"`
	OldValue   *string `json:"old_value,omitempty"`
	NewValue   string  `json:"new_value"`
	Source     string  `bun:",nullzero" json:"source"`
}
