// Package retry owns the state transition applied to a work item after each
// chain execution: when a failure becomes eligible again, and when it is
// abandoned for good.
package retry

import (
	"math"
	"time"

	"github.com/listenarr/listenarr/pkg/chain"
	"github.com/listenarr/listenarr/pkg/models"
	"github.com/robinjoseph08/golib/pointerutil"
)

// Manager is a pure state-transition function plus its backoff schedule.
// Retries are driven by the scheduler re-discovering failed_retryable items,
// never by loops inside the call path, so they survive process restarts.
type Manager struct {
	// MaxRetries applies when the item doesn't carry its own budget.
	MaxRetries int

	// Backoff is exponential over days, not seconds. External catalogs
	// refresh infrequently; retrying a missing audiobook in milliseconds is
	// pointless.
	BaseDays     float64
	GrowthFactor float64
}

func NewManager(maxRetries int, baseDays, growthFactor float64) *Manager {
	return &Manager{MaxRetries: maxRetries, BaseDays: baseDays, GrowthFactor: growthFactor}
}

// Backoff returns the delay before a retry numbered retryCount (1-based)
// becomes eligible. Monotonically non-decreasing in retryCount.
func (m *Manager) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	days := m.BaseDays * math.Pow(m.GrowthFactor, float64(retryCount-1))
	return time.Duration(days * 24 * float64(time.Hour))
}

// OnOutcome applies the outcome of one chain execution to a copy of the
// work item and returns it. The function is total and side-effect-free;
// persistence and failure-record bookkeeping belong to the caller.
func (m *Manager) OnOutcome(item models.WorkItem, outcome chain.Outcome, now time.Time) models.WorkItem {
	item.MergedParsed = outcome.Merged
	item.ProcessID = nil

	switch outcome.Status {
	case chain.OutcomeSuccess:
		item.State = models.WorkItemStateSucceeded
		item.NextEligibleAt = nil
		item.LastErrorKind = nil
		item.LastErrorDetail = nil

	case chain.OutcomePermanent:
		// Permanent errors don't consume retry budget; the input is broken
		// and no amount of waiting fixes it.
		item.State = models.WorkItemStateAbandoned
		item.NextEligibleAt = nil
		item.LastErrorKind = pointerutil.String(models.ErrorKindPermanent)
		item.LastErrorDetail = pointerutil.String(outcome.ErrorDetail)

	case chain.OutcomeInsufficient:
		item.LastErrorKind = pointerutil.String(outcome.ErrorKind)
		item.LastErrorDetail = pointerutil.String(outcome.ErrorDetail)

		if item.RetryCount < m.maxRetriesFor(item) {
			item.RetryCount++
		}
		if item.RetryCount >= m.maxRetriesFor(item) {
			item.State = models.WorkItemStateAbandoned
			item.NextEligibleAt = nil
		} else {
			item.State = models.WorkItemStateFailedRetryable
			item.NextEligibleAt = pointerutil.Time(now.Add(m.Backoff(item.RetryCount)))
		}
	}

	return item
}

func (m *Manager) maxRetriesFor(item models.WorkItem) int {
	if item.MaxRetries > 0 {
		return item.MaxRetries
	}
	return m.MaxRetries
}
