package engine

import (
	"myndis-engine/src/models"
	"time"
)

const maxProjection = 100 * 365 * 24 * time.Hour

// Projector computes a linear depletion date from the recent spend rate of a
// category. It is a straight-line extrapolation, not a forecast, and is
// recomputed on every call.
type Projector struct {
	// Window is the number of most recent transactions averaged.
	Window int
}

// Project returns when cat's remaining allocation reaches zero at the
// average rate of the last Window transactions in history for that
// category, or nil when no depletion can be predicted: fewer than two
// transactions, no elapsed time between them, a non-positive rate, or a date
// further out than a century. history must be chronological.
func (p Projector) Project(cat models.BudgetCategory, history []models.Transaction, now time.Time) *time.Time {
	var recent []models.Transaction
	for _, t := range history {
		if t.Category == cat.Name {
			recent = append(recent, t)
		}
	}
	if len(recent) < 2 {
		return nil
	}
	if p.Window >= 2 && len(recent) > p.Window {
		recent = recent[len(recent)-p.Window:]
	}

	n := len(recent)
	spanDays := recent[n-1].OccurredAt.Sub(recent[0].OccurredAt).Hours() / 24
	if spanDays <= 0 {
		return nil
	}
	var sum int64
	for _, t := range recent {
		sum += t.Amount
	}
	meanAmount := float64(sum) / float64(n)
	meanIntervalDays := spanDays / float64(n-1)
	ratePerDay := meanAmount / meanIntervalDays
	if ratePerDay <= 0 {
		return nil
	}

	remaining := cat.Remaining()
	if remaining <= 0 {
		at := now
		return &at
	}
	nanos := float64(remaining) / ratePerDay * 24 * float64(time.Hour)
	if nanos > float64(maxProjection) {
		return nil
	}
	at := now.Add(time.Duration(nanos))
	return &at
}
