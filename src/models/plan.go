package models

import "time"

type PlanStatus string

const (
	PlanStatusActive          PlanStatus = "active"
	PlanStatusExpired         PlanStatus = "expired"
	PlanStatusPendingApproval PlanStatus = "pendingApproval"
)

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusActive, PlanStatusExpired, PlanStatusPendingApproval:
		return true
	}
	return false
}

// BudgetCategory is one funding bucket of a plan. Spent may exceed Amount
// after an administrative correction; that is reported, never clamped.
type BudgetCategory struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Spent  int64  `json:"spent"`
}

// Remaining is the unspent allocation, negative when overspent.
func (c BudgetCategory) Remaining() int64 {
	return c.Amount - c.Spent
}

// Utilization returns Spent/Amount. ok is false for a zero allocation.
func (c BudgetCategory) Utilization() (u float64, ok bool) {
	if c.Amount <= 0 {
		return 0, false
	}
	return float64(c.Spent) / float64(c.Amount), true
}

type Plan struct {
	ID         string           `json:"id"`
	AccountID  string           `json:"account_id"`
	Status     PlanStatus       `json:"status"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Categories []BudgetCategory `json:"categories"` // insertion order
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Category returns the named category and its index.
func (p *Plan) Category(name string) (BudgetCategory, int, bool) {
	for i, c := range p.Categories {
		if c.Name == name {
			return c, i, true
		}
	}
	return BudgetCategory{}, -1, false
}

// Clone returns a deep copy so callers can never mutate store state.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Categories = append([]BudgetCategory(nil), p.Categories...)
	return &cp
}
