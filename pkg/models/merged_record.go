package models

// Tracked metadata fields. Completeness is measured against this list, and
// only these fields are accepted into a merged record.
const (
	FieldTitle        = "title"
	FieldSubtitle     = "subtitle"
	FieldAuthor       = "author"
	FieldNarrator     = "narrator"
	FieldSeriesName   = "series_name"
	FieldSeriesNumber = "series_number"
	FieldDescription  = "description"
	FieldISBN         = "isbn"
	FieldASIN         = "asin"
	FieldLanguage     = "language"
	FieldDuration     = "duration"
	FieldLink         = "link"
)

var TrackedFields = []string{
	FieldTitle,
	FieldSubtitle,
	FieldAuthor,
	FieldNarrator,
	FieldSeriesName,
	FieldSeriesNumber,
	FieldDescription,
	FieldISBN,
	FieldASIN,
	FieldLanguage,
	FieldDuration,
	FieldLink,
}

// FieldValue is one field of a merged record together with the source that
// supplied it and the confidence that source reported.
type FieldValue struct {
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// MergedRecord is the accumulated, source-attributed result of a work item
// across all adapter attempts. Each field has at most one authoritative
// value at a time.
type MergedRecord map[string]FieldValue

// Clone returns a copy so that merge stays free of aliasing surprises.
func (r MergedRecord) Clone() MergedRecord {
	out := make(MergedRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the field value and whether a non-empty value is present.
func (r MergedRecord) Get(field string) (FieldValue, bool) {
	fv, ok := r[field]
	return fv, ok && fv.Value != ""
}

// Completeness returns the percentage of tracked fields with a value.
func (r MergedRecord) Completeness() float64 {
	if len(TrackedFields) == 0 {
		return 0
	}
	filled := 0
	for _, field := range TrackedFields {
		if _, ok := r.Get(field); ok {
			filled++
		}
	}
	return float64(filled) / float64(len(TrackedFields)) * 100
}

// HasLink reports whether an acquisition link has been merged in.
func (r MergedRecord) HasLink() bool {
	_, ok := r.Get(FieldLink)
	return ok
}
