// Package store is the engine's view of the plan collaborator: current plan
// state per account and the account's transaction history.
package store

import (
	"context"
	"errors"
	"fmt"
	"myndis-engine/src/models"
	"myndis-engine/src/util"
)

var (
	ErrPlanNotFound     = errors.New("no active plan for account")
	ErrCategoryNotFound = errors.New("category not found in active plan")
	ErrWouldOverspend   = errors.New("spend would exceed category allocation")
	ErrActivePlanExists = errors.New("account already has a different active plan")
	ErrInvalidPlan      = errors.New("invalid plan")
)

// PlanStore is implemented by MemoryStore and PostgresStore.
type PlanStore interface {
	// ActivePlan returns a private copy of the account's active plan or
	// ErrPlanNotFound.
	ActivePlan(ctx context.Context, accountID string) (*models.Plan, error)
	// History returns the account's transactions in chronological order.
	History(ctx context.Context, accountID string) ([]models.Transaction, error)
	// ApplySpend adds txn.Amount to the category's spent total and appends
	// txn to the history. It refuses with ErrWouldOverspend instead of
	// letting spent pass the allocation.
	ApplySpend(ctx context.Context, txn models.Transaction) (models.BudgetCategory, error)
	// AppendHistory imports historical transactions without touching spent.
	AppendHistory(ctx context.Context, txns []models.Transaction) error
	// SavePlan creates or administratively corrects a plan.
	SavePlan(ctx context.Context, plan *models.Plan) error
}

// UnavailableError marks a failure to reach the plan collaborator. Callers
// may retry.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("plan store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Retryable() bool {
	return true
}

func IsUnavailable(err error) bool {
	var u *UnavailableError
	return errors.As(err, &u)
}

// ValidatePlan checks the structural rules every stored plan must satisfy.
func ValidatePlan(p *models.Plan) error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPlan)
	}
	if !util.ValidateAccountID(p.AccountID) {
		return fmt.Errorf("%w: invalid account id %q", ErrInvalidPlan, p.AccountID)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPlan, p.Status)
	}
	if !p.End.IsZero() && p.End.Before(p.Start) {
		return fmt.Errorf("%w: end before start", ErrInvalidPlan)
	}
	seen := make(map[string]struct{}, len(p.Categories))
	for _, c := range p.Categories {
		if !util.ValidateCategoryName(c.Name) {
			return fmt.Errorf("%w: invalid category name %q", ErrInvalidPlan, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidPlan, c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Amount < 0 || c.Spent < 0 {
			return fmt.Errorf("%w: category %q has negative amount or spent", ErrInvalidPlan, c.Name)
		}
	}
	return nil
}
