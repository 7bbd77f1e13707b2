// Package sources defines the capability contract every external source
// implements and the error taxonomy the orchestrator branches on. The
// fallback chain executor only ever sees the Adapter interface; concrete
// adapters are swappable and testable through fakes.
package sources

import (
	"context"
	"strconv"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
)

// TargetDescriptor identifies what an adapter should look for. Any subset of
// fields may be set; adapters use what they understand.
type TargetDescriptor struct {
	Title        string
	Author       string
	SeriesName   string
	SeriesNumber *float64
	ISBN         string
	ASIN         string
	BiblioID     string
}

// AcquisitionResult is one candidate match from one adapter attempt. It is
// immutable once produced; the merge engine consumes it field by field.
type AcquisitionResult struct {
	Fields     map[string]string
	Confidence float64
	Source     string
}

// Link returns the acquisition link field, if the adapter provided one.
func (r AcquisitionResult) Link() string {
	return r.Fields[models.FieldLink]
}

// SeriesNumber parses the series position field, if present.
func (r AcquisitionResult) SeriesNumber() (float64, bool) {
	raw, ok := r.Fields[models.FieldSeriesNumber]
	if !ok || raw == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Adapter is the single capability interface over external sources: given a
// target descriptor, return zero or more candidate matches, or fail with a
// classified error.
type Adapter interface {
	Name() string
	Find(ctx context.Context, target TargetDescriptor) ([]AcquisitionResult, error)
}

// AdapterError classifies a failed adapter call. Kind is one of the
// models.ErrorKind* values.
type AdapterError struct {
	Kind   string
	Detail string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Transient wraps timeouts, rate limits, and temporary unavailability. These
// always stay retryable.
func Transient(err error, detail string) error {
	return &AdapterError{Kind: models.ErrorKindTransient, Detail: detail, Err: err}
}

// NotFound means the source has no match for the target. The chain continues
// to the next adapter.
func NotFound(detail string) error {
	return &AdapterError{Kind: models.ErrorKindNotFound, Detail: detail}
}

// Permanent wraps malformed targets, auth failures, and programming errors.
// These abandon the work item without consuming retry budget.
func Permanent(err error, detail string) error {
	return &AdapterError{Kind: models.ErrorKindPermanent, Detail: detail, Err: err}
}

// KindOf returns the classified kind of an adapter error. An error an
// adapter failed to classify is a programming error, which is permanent.
func KindOf(err error) string {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return models.ErrorKindPermanent
}

// DetailOf returns the human detail of an adapter error.
func DetailOf(err error) string {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return err.Error()
}
