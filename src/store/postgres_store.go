package store

import (
	"context"
	"errors"
	"myndis-engine/src/db"
	sqldb "myndis-engine/src/db/sql"
	"myndis-engine/src/models"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements PlanStore on top of the plan tables. History
// reads go through the ristretto history cache.
type PostgresStore struct {
	pool     *pgxpool.Pool
	cacheTTL time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, cacheTTL time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, cacheTTL: cacheTTL}
}

func (s *PostgresStore) ActivePlan(ctx context.Context, accountID string) (*models.Plan, error) {
	plan, err := sqldb.GetActivePlan(ctx, s.pool, accountID)
	if errors.Is(err, sqldb.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, &UnavailableError{Op: "active plan", Err: err}
	}
	return plan, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID string) ([]models.Transaction, error) {
	cacheKey := db.HistoryCacheKey(accountID)
	if cached, ok := db.GetHistoryCache(cacheKey); ok {
		return append([]models.Transaction{}, cached...), nil
	}

	gen := db.HistoryGeneration()
	txns, err := sqldb.GetTransactionHistory(ctx, s.pool, accountID)
	if err != nil {
		return nil, &UnavailableError{Op: "history", Err: err}
	}
	db.SetHistoryCache(cacheKey, txns, s.cacheTTL, gen)
	return append([]models.Transaction{}, txns...), nil
}

func (s *PostgresStore) ApplySpend(ctx context.Context, txn models.Transaction) (models.BudgetCategory, error) {
	cat, err := sqldb.ApplySpend(ctx, s.pool, txn)
	switch {
	case errors.Is(err, sqldb.ErrConditionFailed):
		return models.BudgetCategory{}, ErrWouldOverspend
	case errors.Is(err, sqldb.ErrNotFound):
		if _, perr := s.ActivePlan(ctx, txn.AccountID); errors.Is(perr, ErrPlanNotFound) {
			return models.BudgetCategory{}, ErrPlanNotFound
		}
		return models.BudgetCategory{}, ErrCategoryNotFound
	case err != nil:
		return models.BudgetCategory{}, &UnavailableError{Op: "apply spend", Err: err}
	}
	db.DelHistoryCache(db.HistoryCacheKey(txn.AccountID))
	return *cat, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, txns []models.Transaction) error {
	if err := sqldb.InsertTransactions(ctx, s.pool, txns); err != nil {
		return &UnavailableError{Op: "append history", Err: err}
	}
	seen := make(map[string]struct{})
	for _, t := range txns {
		if _, ok := seen[t.AccountID]; ok {
			continue
		}
		seen[t.AccountID] = struct{}{}
		db.DelHistoryCache(db.HistoryCacheKey(t.AccountID))
	}
	return nil
}

func (s *PostgresStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}
	if plan.Status == models.PlanStatusActive {
		current, err := s.ActivePlan(ctx, plan.AccountID)
		switch {
		case errors.Is(err, ErrPlanNotFound):
		case err != nil:
			return err
		case current.ID != plan.ID:
			return ErrActivePlanExists
		}
	}
	if err := sqldb.UpsertPlan(ctx, s.pool, plan); err != nil {
		return &UnavailableError{Op: "save plan", Err: err}
	}
	return nil
}
