package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Run is an informational record of one trigger execution. It feeds
// observability surfaces and has no role in control logic.
type Run struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Trigger    string     `bun:"trigger_name,nullzero" json:"trigger"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Processed  int        `json:"processed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      *string    `json:"error,omitempty"`
}
