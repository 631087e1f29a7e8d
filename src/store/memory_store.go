package store

import (
	"context"
	"fmt"
	"myndis-engine/src/models"
	"sort"
	"sync"
)

// MemoryStore implements PlanStore in memory. Thread-safe via RWMutex;
// everything handed out is a copy.
type MemoryStore struct {
	mu      sync.RWMutex
	plans   map[string]*models.Plan // by plan id
	active  map[string]string       // account id -> plan id
	history map[string][]models.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:   make(map[string]*models.Plan),
		active:  make(map[string]string),
		history: make(map[string][]models.Transaction),
	}
}

func (s *MemoryStore) ActivePlan(ctx context.Context, accountID string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[accountID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return s.plans[id].Clone(), nil
}

func (s *MemoryStore) History(ctx context.Context, accountID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Transaction{}, s.history[accountID]...), nil
}

func (s *MemoryStore) ApplySpend(ctx context.Context, txn models.Transaction) (models.BudgetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[txn.AccountID]
	if !ok {
		return models.BudgetCategory{}, ErrPlanNotFound
	}
	plan := s.plans[id]
	cat, idx, ok := plan.Category(txn.Category)
	if !ok {
		return models.BudgetCategory{}, ErrCategoryNotFound
	}
	if txn.Amount > cat.Remaining() {
		return cat, ErrWouldOverspend
	}
	cat.Spent += txn.Amount
	plan.Categories[idx] = cat
	if txn.OccurredAt.After(plan.UpdatedAt) {
		plan.UpdatedAt = txn.OccurredAt
	}
	s.insertHistory(txn)
	return cat, nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, txns []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range txns {
		if txn.AccountID == "" {
			return fmt.Errorf("transaction %s has no account", txn.ID)
		}
		if s.hasTransaction(txn.AccountID, txn.ID) {
			continue
		}
		s.insertHistory(txn)
	}
	return nil
}

func (s *MemoryStore) hasTransaction(accountID, id string) bool {
	for _, t := range s.history[accountID] {
		if t.ID == id {
			return true
		}
	}
	return false
}

// insertHistory keeps each account's history sorted by time; the caller
// holds the write lock.
func (s *MemoryStore) insertHistory(txn models.Transaction) {
	h := s.history[txn.AccountID]
	i := sort.Search(len(h), func(i int) bool { return h[i].OccurredAt.After(txn.OccurredAt) })
	h = append(h, models.Transaction{})
	copy(h[i+1:], h[i:])
	h[i] = txn
	s.history[txn.AccountID] = h
}

func (s *MemoryStore) SavePlan(ctx context.Context, plan *models.Plan) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.plans[plan.ID]; ok && prev.AccountID != plan.AccountID {
		return fmt.Errorf("%w: plan %s belongs to another account", ErrInvalidPlan, plan.ID)
	}
	activeID, hasActive := s.active[plan.AccountID]
	if plan.Status == models.PlanStatusActive && hasActive && activeID != plan.ID {
		return ErrActivePlanExists
	}

	s.plans[plan.ID] = plan.Clone()
	switch {
	case plan.Status == models.PlanStatusActive:
		s.active[plan.AccountID] = plan.ID
	case hasActive && activeID == plan.ID:
		delete(s.active, plan.AccountID)
	}
	return nil
}
