// Package metrics tracks how well the engine's verdicts agree with operator
// feedback. The feedback log is the source of truth: every rate is derived
// from it and can be rebuilt from the Journal.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"myndis-engine/src/models"
	"sync"
	"time"
)

var (
	ErrUnknownTransaction = errors.New("no recorded decision for transaction")
	ErrAccountMismatch    = errors.New("transaction belongs to another account")
)

// Journal persists decisions and feedback in the order they were recorded.
type Journal interface {
	SaveDecision(ctx context.Context, d models.Decision) error
	SaveFeedback(ctx context.Context, f models.Feedback) error
	// LoadDecisions returns the most recent limit decisions, oldest first.
	LoadDecisions(ctx context.Context, limit int) ([]models.Decision, error)
	// Decision returns nil, nil when no decision was journaled for the id.
	Decision(ctx context.Context, transactionID string) (*models.Decision, error)
	CountDecisions(ctx context.Context) (int, error)
	LoadFeedback(ctx context.Context) ([]models.Feedback, error)
}

type tally struct {
	total, matches, falsePositives, falseNegatives int
}

func (t *tally) add(f models.Feedback) {
	t.total++
	switch {
	case f.Approved == f.Verdict:
		t.matches++
	case f.Verdict && !f.Approved:
		t.falsePositives++
	default:
		t.falseNegatives++
	}
}

type Aggregator struct {
	mu       sync.RWMutex
	journal  Journal
	window   int
	capacity int

	// recent decisions by transaction id, evicted oldest first
	recent      map[string]models.Decision
	order       []string
	recorded    int
	tally       tally
	durations   []time.Duration
	confidences []float64
}

// NewAggregator keeps the last window durations and confidence scores and
// the last capacity decisions in memory. Feedback on older decisions is
// resolved through the journal.
func NewAggregator(journal Journal, window, capacity int) *Aggregator {
	if window < 1 {
		window = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Aggregator{
		journal:  journal,
		window:   window,
		capacity: capacity,
		recent:   make(map[string]models.Decision),
	}
}

// Restore replays the journal into an empty aggregator.
func (a *Aggregator) Restore(ctx context.Context) error {
	total, err := a.journal.CountDecisions(ctx)
	if err != nil {
		return fmt.Errorf("counting decisions: %w", err)
	}
	decisions, err := a.journal.LoadDecisions(ctx, max(a.window, a.capacity))
	if err != nil {
		return fmt.Errorf("loading decisions: %w", err)
	}
	feedback, err := a.journal.LoadFeedback(ctx)
	if err != nil {
		return fmt.Errorf("loading feedback: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range decisions {
		a.addDecision(d)
	}
	a.recorded = total
	for _, f := range feedback {
		a.tally.add(f)
	}
	return nil
}

// RecordDecision stores a pending verdict for later feedback. The decision
// is usable in memory even when journaling fails; the journal error is
// returned so the caller can log it.
func (a *Aggregator) RecordDecision(ctx context.Context, d models.Decision) error {
	a.mu.Lock()
	a.addDecision(d)
	a.mu.Unlock()

	if err := a.journal.SaveDecision(ctx, d); err != nil {
		return fmt.Errorf("journaling decision %s: %w", d.TransactionID, err)
	}
	return nil
}

func (a *Aggregator) addDecision(d models.Decision) {
	if _, ok := a.recent[d.TransactionID]; !ok {
		a.order = append(a.order, d.TransactionID)
	}
	a.recent[d.TransactionID] = d
	for len(a.order) > a.capacity {
		delete(a.recent, a.order[0])
		a.order = a.order[1:]
	}
	a.recorded++
	a.durations = pushBounded(a.durations, d.Duration, a.window)
	a.confidences = pushBounded(a.confidences, d.Confidence, a.window)
}

func pushBounded[T any](buf []T, v T, limit int) []T {
	buf = append(buf, v)
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}
	return buf
}

// RecordFeedback appends operator feedback on a recorded decision. Nothing
// is counted unless the journal accepted the record.
func (a *Aggregator) RecordFeedback(ctx context.Context, accountID, transactionID string, approved bool, reason string, at time.Time) (models.Feedback, error) {
	d, err := a.lookup(ctx, transactionID)
	if err != nil {
		return models.Feedback{}, err
	}
	if d.AccountID != accountID {
		return models.Feedback{}, fmt.Errorf("%w: %s", ErrAccountMismatch, transactionID)
	}

	f := models.Feedback{
		AccountID:     accountID,
		TransactionID: transactionID,
		Verdict:       d.Valid,
		Approved:      approved,
		Reason:        reason,
		RecordedAt:    at,
	}
	if err := a.journal.SaveFeedback(ctx, f); err != nil {
		return models.Feedback{}, fmt.Errorf("journaling feedback for %s: %w", transactionID, err)
	}

	a.mu.Lock()
	a.tally.add(f)
	a.mu.Unlock()
	return f, nil
}

func (a *Aggregator) lookup(ctx context.Context, transactionID string) (models.Decision, error) {
	if d, ok := a.Decision(transactionID); ok {
		return d, nil
	}
	d, err := a.journal.Decision(ctx, transactionID)
	if err != nil {
		return models.Decision{}, fmt.Errorf("looking up decision %s: %w", transactionID, err)
	}
	if d == nil {
		return models.Decision{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}
	return *d, nil
}

// Decision looks up a verdict among the decisions still held in memory.
func (a *Aggregator) Decision(transactionID string) (models.Decision, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.recent[transactionID]
	return d, ok
}

func (a *Aggregator) Metrics() models.Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := models.Metrics{
		ConfidenceScores: append([]float64{}, a.confidences...),
		TotalFeedback:    a.tally.total,
		TotalDecisions:   a.recorded,
	}
	if t := a.tally; t.total > 0 {
		n := float64(t.total)
		m.ValidationAccuracy = float64(t.matches) / n
		m.FalsePositiveRate = float64(t.falsePositives) / n
		m.FalseNegativeRate = float64(t.falseNegatives) / n
	}
	if len(a.durations) > 0 {
		var sum time.Duration
		for _, d := range a.durations {
			sum += d
		}
		m.AverageProcessingTime = sum / time.Duration(len(a.durations))
	}
	if len(a.confidences) > 0 {
		var sum float64
		for _, c := range a.confidences {
			sum += c
		}
		m.AverageConfidence = sum / float64(len(a.confidences))
	}
	return m
}

// MemoryJournal implements Journal in memory.
type MemoryJournal struct {
	mu        sync.RWMutex
	decisions []models.Decision
	feedback  []models.Feedback
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) SaveDecision(ctx context.Context, d models.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *MemoryJournal) SaveFeedback(ctx context.Context, f models.Feedback) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.feedback = append(j.feedback, f)
	return nil
}

func (j *MemoryJournal) LoadDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	from := max(len(j.decisions)-limit, 0)
	return append([]models.Decision(nil), j.decisions[from:]...), nil
}

func (j *MemoryJournal) Decision(ctx context.Context, transactionID string) (*models.Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.decisions) - 1; i >= 0; i-- {
		if j.decisions[i].TransactionID == transactionID {
			d := j.decisions[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (j *MemoryJournal) CountDecisions(ctx context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.decisions), nil
}

func (j *MemoryJournal) LoadFeedback(ctx context.Context) ([]models.Feedback, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]models.Feedback(nil), j.feedback...), nil
}
