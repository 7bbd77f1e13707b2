package models

import (
	"time"

	"github.com/uptrace/bun"
)

// FailureRecord is the permanent failure trail for one target, keyed by the
// work item's target key so attempts accumulate even when the item is
// re-created. Rows are never pruned. The Permanent flag distinguishes "this
// will never work, fix the input" from "nothing found yet, keep retrying".
type FailureRecord struct {
	bun.BaseModel `bun:"table:failure_records,alias:fr"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TargetKey       string  `bun:",nullzero" json:"target_key"`
	Attempts        int     `json:"attempts"`
	LastErrorKind   string  `bun:",nullzero" json:"last_error_kind"`
	LastErrorDetail *string `json:"last_error_detail,omitempty"`
	Permanent       bool    `json:"permanent"`
}
