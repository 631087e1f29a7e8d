// Package engine decides whether spends are allowed against an account's
// funding plan and derives alerts, anomalies and health from plan state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"myndis-engine/src/config"
	"myndis-engine/src/events"
	"myndis-engine/src/logger"
	"myndis-engine/src/metrics"
	"myndis-engine/src/models"
	"myndis-engine/src/store"
	"myndis-engine/src/thresholds"
	"myndis-engine/src/util"
	"time"

	"github.com/google/uuid"
)

type Engine struct {
	store      store.PlanStore
	thresholds *thresholds.Store
	metrics    *metrics.Aggregator
	events     events.Publisher
	cfg        config.EngineConfig
	log        *logger.Logger
	locks      *accountLocks
	now        func() time.Time
	newID      func() string
}

type Option func(*Engine)

// WithClock replaces time.Now for timestamps and projections.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid transaction id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(st store.PlanStore, th *thresholds.Store, agg *metrics.Aggregator, pub events.Publisher, cfg config.EngineConfig, log *logger.Logger, opts ...Option) *Engine {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	e := &Engine{
		store:      st,
		thresholds: th,
		metrics:    agg,
		events:     pub,
		cfg:        cfg,
		log:        log,
		locks:      newAccountLocks(),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func checkRequest(req models.TransactionRequest) error {
	if !util.ValidateAccountID(req.AccountID) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, req.AccountID)
	}
	if !util.ValidateCategoryName(req.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	return nil
}

func checkAccount(accountID string) error {
	if !util.ValidateAccountID(accountID) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, accountID)
	}
	return nil
}

// activePlan returns nil, nil when the account has no active plan.
func (e *Engine) activePlan(ctx context.Context, accountID string) (*models.Plan, error) {
	plan, err := e.store.ActivePlan(ctx, accountID)
	if errors.Is(err, store.ErrPlanNotFound) {
		return nil, nil
	}
	return plan, err
}

func (e *Engine) assess(ctx context.Context, req models.TransactionRequest, snap *thresholds.Snapshot, now time.Time) (assessment, error) {
	plan, err := e.activePlan(ctx, req.AccountID)
	if err != nil {
		return assessment{}, err
	}
	var history []models.Transaction
	if plan != nil {
		if _, _, ok := plan.Category(req.Category); ok {
			history, err = e.store.History(ctx, req.AccountID)
			if err != nil {
				return assessment{}, err
			}
		}
	}
	return evaluate(plan, snap, req, history, Projector{Window: e.cfg.ProjectionWindow}, now), nil
}

// Validate evaluates a proposed spend without applying it. A refused spend
// is a normal result with Valid false; errors are reserved for malformed
// requests and an unreachable plan store.
func (e *Engine) Validate(ctx context.Context, req models.TransactionRequest) (models.ValidationResult, error) {
	start := time.Now()
	if err := checkRequest(req); err != nil {
		return models.ValidationResult{}, err
	}
	now := e.now()
	a, err := e.assess(ctx, req, e.thresholds.Current(), now)
	if err != nil {
		return models.ValidationResult{}, err
	}
	a.result.TransactionID = e.newID()
	e.record(ctx, req, a, now, time.Since(start))
	return a.result, nil
}

// RecordSpend validates req and applies it when valid. Validation and
// application run under the account lock, so concurrent spends against one
// account are linearized and can never jointly overshoot an allocation.
// Decisions and events are recorded after the lock is released.
func (e *Engine) RecordSpend(ctx context.Context, req models.TransactionRequest) (models.SpendResult, error) {
	start := time.Now()
	if err := checkRequest(req); err != nil {
		return models.SpendResult{}, err
	}

	now := e.now()
	out, a, err := e.spend(ctx, req, now)
	if err != nil {
		return models.SpendResult{}, err
	}
	e.record(ctx, req, a, now, time.Since(start))

	if len(out.CrossedThresholds) > 0 {
		e.publish(ctx, events.Event{
			Type:      events.TypeThresholdCrossed,
			AccountID: req.AccountID,
			Payload: map[string]any{
				"category":   req.Category,
				"thresholds": out.CrossedThresholds,
				"spent":      out.Spent,
			},
			At: now,
		})
	}
	return out, nil
}

func (e *Engine) spend(ctx context.Context, req models.TransactionRequest, now time.Time) (models.SpendResult, assessment, error) {
	unlock := e.locks.lock(req.AccountID)
	defer unlock()

	snap := e.thresholds.Current()
	a, err := e.assess(ctx, req, snap, now)
	if err != nil {
		return models.SpendResult{}, assessment{}, err
	}
	a.result.TransactionID = e.newID()

	out := models.SpendResult{Spent: a.category.Spent, CrossedThresholds: []string{}}
	if a.result.Valid {
		occurred := req.SubmittedAt
		if occurred.IsZero() {
			occurred = now
		}
		after, err := e.store.ApplySpend(ctx, models.Transaction{
			ID:         a.result.TransactionID,
			AccountID:  req.AccountID,
			Category:   req.Category,
			Amount:     req.Amount,
			OccurredAt: occurred,
		})
		switch {
		case errors.Is(err, store.ErrWouldOverspend), errors.Is(err, store.ErrCategoryNotFound), errors.Is(err, store.ErrPlanNotFound):
			// plan changed outside this engine between read and write
			a.result.Valid = false
			a.result.Reasons = append(a.result.Reasons, fmt.Sprintf("plan state changed before the spend could be applied: %v", err))
			a.result.PredictedDepletionDate = nil
		case err != nil:
			return models.SpendResult{}, assessment{}, err
		default:
			out.Applied = true
			out.Spent = after.Spent
			out.CrossedThresholds = newlyCrossed(snap, a.category, after)
		}
	}
	out.Validation = a.result
	return out, a, nil
}

func (e *Engine) record(ctx context.Context, req models.TransactionRequest, a assessment, now time.Time, elapsed time.Duration) {
	d := models.Decision{
		TransactionID: a.result.TransactionID,
		AccountID:     req.AccountID,
		Category:      req.Category,
		Valid:         a.result.Valid,
		Confidence:    a.confidence,
		Duration:      elapsed,
		DecidedAt:     now,
	}
	if err := e.metrics.RecordDecision(ctx, d); err != nil {
		e.log.Error("Failed to journal decision", "account_id", req.AccountID, "transaction_id", d.TransactionID, "error", err)
	}
	e.publish(ctx, events.Event{Type: events.TypeVerdict, AccountID: req.AccountID, Payload: a.result, At: now})
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.Warn("Failed to publish event", "type", ev.Type, "account_id", ev.AccountID, "error", err)
	}
}

// AlertsFor derives the account's current threshold alerts. An account
// without an active plan has none.
func (e *Engine) AlertsFor(ctx context.Context, accountID string) ([]models.ThresholdAlert, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	snap := e.thresholds.Current()
	plan, err := e.activePlan(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return alertsFor(plan, snap), nil
}

func (e *Engine) anomalyRules(snap *thresholds.Snapshot) AnomalyRules {
	return AnomalyRules{
		Sensitivity:     snap.AnomalySensitivity(),
		MinHistory:      e.cfg.AnomalyMinHistory,
		SpikeCount:      e.cfg.FrequencySpikeCount,
		SpikeWindow:     e.cfg.FrequencySpikeWindow,
		ShiftMinHistory: e.cfg.CategoryShiftMinHistory,
	}
}

// DetectAnomalies scans the account's whole transaction history.
func (e *Engine) DetectAnomalies(ctx context.Context, accountID string) ([]string, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	rules := e.anomalyRules(e.thresholds.Current())
	history, err := e.store.History(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return detectAnomalies(history, rules), nil
}

func (e *Engine) Health(ctx context.Context, accountID string) (models.BudgetHealth, error) {
	if err := checkAccount(accountID); err != nil {
		return models.BudgetHealth{}, err
	}
	snap := e.thresholds.Current()
	plan, err := e.store.ActivePlan(ctx, accountID)
	if err != nil {
		return models.BudgetHealth{}, err
	}
	return healthOf(plan, snap), nil
}

func (e *Engine) RecordFeedback(ctx context.Context, accountID, transactionID string, approved bool, reason string) (models.Feedback, error) {
	if err := checkAccount(accountID); err != nil {
		return models.Feedback{}, err
	}
	return e.metrics.RecordFeedback(ctx, accountID, transactionID, approved, reason, e.now())
}

func (e *Engine) Metrics() models.Metrics {
	return e.metrics.Metrics()
}

// UpdateThresholds replaces the active configuration. Past feedback is not
// reinterpreted.
func (e *Engine) UpdateThresholds(ctx context.Context, pairs []models.ThresholdPair) (models.ThresholdVersion, error) {
	snap, err := e.thresholds.Update(ctx, pairs)
	if err != nil {
		return models.ThresholdVersion{}, err
	}
	return snap.ToVersion(), nil
}

// ThresholdConfiguration returns the given version, or the active one when
// version is 0.
func (e *Engine) ThresholdConfiguration(ctx context.Context, version int64) (models.ThresholdVersion, error) {
	if version == 0 {
		return e.thresholds.Current().ToVersion(), nil
	}
	v, err := e.thresholds.Version(ctx, version)
	if err != nil {
		return models.ThresholdVersion{}, err
	}
	return *v, nil
}

func (e *Engine) ActivePlan(ctx context.Context, accountID string) (*models.Plan, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	return e.store.ActivePlan(ctx, accountID)
}

// SavePlan stores a new or corrected plan. It waits for in-flight spends of
// the account.
func (e *Engine) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := store.ValidatePlan(plan); err != nil {
		return err
	}
	unlock := e.locks.lock(plan.AccountID)
	defer unlock()
	plan.UpdatedAt = e.now()
	return e.store.SavePlan(ctx, plan)
}

// ImportHistory appends past transactions of one account without touching
// spent totals.
func (e *Engine) ImportHistory(ctx context.Context, accountID string, txns []models.Transaction) error {
	if err := checkAccount(accountID); err != nil {
		return err
	}
	for i := range txns {
		t := &txns[i]
		if t.AccountID == "" {
			t.AccountID = accountID
		}
		if t.AccountID != accountID {
			return fmt.Errorf("%w: transaction %s belongs to %s", ErrInvalidAccount, t.ID, t.AccountID)
		}
		if !util.ValidateCategoryName(t.Category) {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, t.Category)
		}
		if t.Amount <= 0 {
			return fmt.Errorf("%w: transaction %s", ErrInvalidAmount, t.ID)
		}
		if t.ID == "" {
			t.ID = e.newID()
		}
		if t.OccurredAt.IsZero() {
			t.OccurredAt = e.now()
		}
	}
	return e.store.AppendHistory(ctx, txns)
}
