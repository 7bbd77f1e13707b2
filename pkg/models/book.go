package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is the locally-owned library mirror the completeness scanner diffs
// against. The actual library import pipeline lives outside the
// orchestrator; this table only needs enough shape to answer "do we already
// own this".
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title        string   `bun:",nullzero" json:"title"`
	Author       string   `json:"author"`
	SeriesName   *string  `json:"series_name,omitempty"`
	SeriesNumber *float64 `json:"series_number,omitempty"`
	ISBN         *string  `json:"isbn,omitempty"`
	ASIN         *string  `json:"asin,omitempty"`

	AcquiredAt time.Time `json:"acquired_at"`
}
