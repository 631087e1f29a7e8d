package engine

import (
	"myndis-engine/src/models"
	"myndis-engine/src/thresholds"
)

// healthOf summarizes overall plan utilization. The status is warning from
// the lowest utilization threshold and critical from the highest warning
// threshold above it, or from any critical threshold.
func healthOf(plan *models.Plan, snap *thresholds.Snapshot) models.BudgetHealth {
	h := models.BudgetHealth{
		AccountID:  plan.AccountID,
		Status:     models.HealthHealthy,
		Categories: []models.CategoryHealth{},
	}

	var amount, spent int64
	for _, c := range plan.Categories {
		u, _ := c.Utilization()
		h.Categories = append(h.Categories, models.CategoryHealth{
			Category:    c.Name,
			Amount:      c.Amount,
			Spent:       c.Spent,
			Utilization: u,
		})
		amount += c.Amount
		spent += c.Spent
	}
	if amount > 0 {
		h.Utilization = float64(spent) / float64(amount)
	}

	warning, critical, ok := healthLevels(snap.Budget())
	switch {
	case !ok:
	case h.Utilization >= critical:
		h.Status = models.HealthCritical
	case h.Utilization >= warning:
		h.Status = models.HealthWarning
	}
	return h
}

func healthLevels(budget []thresholds.Threshold) (warning, critical float64, ok bool) {
	if len(budget) == 0 {
		return 0, 0, false
	}
	warning = budget[0].Value
	critical = 2 // unreachable unless a level is found below
	var warnings []thresholds.Threshold
	for _, t := range budget {
		if t.Critical {
			critical = min(critical, t.Value)
		} else {
			warnings = append(warnings, t)
		}
	}
	if len(warnings) >= 2 {
		critical = min(critical, warnings[len(warnings)-1].Value)
	}
	return warning, critical, true
}
