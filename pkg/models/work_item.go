package models

import (
	"time"

	"github.com/listenarr/listenarr/pkg/titles"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	WorkItemKindDiscover        = "discover"
	WorkItemKindDownload        = "download"
	WorkItemKindMetadataRefresh = "metadata_refresh"
	WorkItemKindSeriesGapFill   = "series_gap_fill"
	WorkItemKindAuthorGapFill   = "author_gap_fill"
)

const (
	WorkItemStateQueued          = "queued"
	WorkItemStateInProgress      = "in_progress"
	WorkItemStateSucceeded       = "succeeded"
	WorkItemStateFailedRetryable = "failed_retryable"
	WorkItemStateAbandoned       = "abandoned"
)

const (
	ErrorKindTransient = "transient"
	ErrorKindNotFound  = "not_found"
	ErrorKindPermanent = "permanent"
)

type WorkItem struct {
	bun.BaseModel `bun:"table:work_items,alias:wi"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind         string   `bun:",nullzero" json:"kind"`
	Title        string   `bun:",nullzero" json:"title"`
	Author       string   `json:"author"`
	SeriesName   *string  `json:"series_name,omitempty"`
	SeriesNumber *float64 `json:"series_number,omitempty"`
	ISBN         *string  `json:"isbn,omitempty"`
	ASIN         *string  `json:"asin,omitempty"`
	BiblioID     *string  `json:"biblio_id,omitempty"`

	// TargetKey is the normalized dedupe key; failure records accumulate on
	// it across re-creation of the work item.
	TargetKey string `bun:",nullzero" json:"target_key"`

	State           string     `bun:",nullzero" json:"state"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextEligibleAt  *time.Time `json:"next_eligible_at,omitempty"`
	LastErrorKind   *string    `json:"last_error_kind,omitempty"`
	LastErrorDetail *string    `json:"last_error_detail,omitempty"`

	// ProcessID is the claim token of the worker currently processing the
	// item. NULL unless state is in_progress.
	ProcessID *string `json:"process_id,omitempty"`

	// BatchID groups gap-fill items emitted by one completeness scan.
	BatchID *string `json:"batch_id,omitempty"`

	Merged       string       `json:"-"`
	MergedParsed MergedRecord `bun:"-" json:"merged"`
}

// Terminal reports whether the item has reached a terminal state.
func (wi *WorkItem) Terminal() bool {
	return wi.State == WorkItemStateSucceeded || wi.State == WorkItemStateAbandoned
}

// Identifier returns the most stable external identifier present, if any.
func (wi *WorkItem) Identifier() string {
	switch {
	case wi.ISBN != nil && *wi.ISBN != "":
		return "isbn:" + *wi.ISBN
	case wi.ASIN != nil && *wi.ASIN != "":
		return "asin:" + *wi.ASIN
	case wi.BiblioID != nil && *wi.BiblioID != "":
		return "biblio:" + *wi.BiblioID
	}
	return ""
}

// ComputeTargetKey derives the dedupe/failure key from the target descriptor.
func (wi *WorkItem) ComputeTargetKey() string {
	return titles.Key(wi.Title, wi.Author, wi.SeriesNumber, wi.Identifier())
}

// UnmarshalMerged populates MergedParsed from the stored JSON column.
func (wi *WorkItem) UnmarshalMerged() error {
	wi.MergedParsed = MergedRecord{}
	if wi.Merged == "" {
		return nil
	}
	err := json.Unmarshal([]byte(wi.Merged), &wi.MergedParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// MarshalMerged serializes MergedParsed into the stored JSON column.
func (wi *WorkItem) MarshalMerged() error {
	if wi.MergedParsed == nil {
		wi.Merged = ""
		return nil
	}
	data, err := json.Marshal(wi.MergedParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	wi.Merged = string(data)
	return nil
}
