package engine

import (
	"myndis-engine/src/models"
	"myndis-engine/src/thresholds"
)

// alertsFor derives the threshold alerts of a plan: one per category and
// crossed threshold, in category order then ascending threshold value. The
// result depends only on its inputs.
func alertsFor(plan *models.Plan, snap *thresholds.Snapshot) []models.ThresholdAlert {
	alerts := []models.ThresholdAlert{}
	if plan == nil {
		return alerts
	}
	budget := snap.Budget()
	for _, c := range plan.Categories {
		u, ok := c.Utilization()
		if !ok {
			continue
		}
		for _, t := range budget {
			if u < t.Value {
				break
			}
			alerts = append(alerts, models.ThresholdAlert{
				AccountID: plan.AccountID,
				Category:  c.Name,
				Name:      t.Name,
				Threshold: t.Value,
				Utilized:  c.Spent,
				Timestamp: plan.UpdatedAt,
			})
		}
	}
	return alerts
}

// newlyCrossed returns the thresholds a category passed when spent moved
// from before to after.
func newlyCrossed(snap *thresholds.Snapshot, before, after models.BudgetCategory) []string {
	crossed := []string{}
	ub, okb := before.Utilization()
	ua, oka := after.Utilization()
	if !oka {
		return crossed
	}
	for _, t := range snap.Budget() {
		if ua >= t.Value && (!okb || ub < t.Value) {
			crossed = append(crossed, t.Name)
		}
	}
	return crossed
}
