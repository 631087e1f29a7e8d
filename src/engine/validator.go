package engine

import (
	"fmt"
	"myndis-engine/src/models"
	"myndis-engine/src/thresholds"
	"sort"
	"time"
)

// assessment is the outcome of evaluating one request against a plan.
type assessment struct {
	result     models.ValidationResult
	category   models.BudgetCategory
	found      bool
	crossed    []thresholds.Threshold
	confidence float64
}

func newResult() models.ValidationResult {
	return models.ValidationResult{
		Reasons:                []string{},
		Warnings:               []string{},
		RecommendedAdjustments: []models.Adjustment{},
	}
}

// evaluate applies the hard cap, threshold warnings and projection to req.
// plan is nil when the account has no active plan. history is the account's
// chronological transaction history.
func evaluate(plan *models.Plan, snap *thresholds.Snapshot, req models.TransactionRequest, history []models.Transaction, proj Projector, now time.Time) assessment {
	a := assessment{result: newResult(), confidence: 1}
	res := &a.result

	if plan == nil {
		res.Reasons = append(res.Reasons, fmt.Sprintf("account %s has no active plan", req.AccountID))
		return a
	}
	cat, _, ok := plan.Category(req.Category)
	if !ok {
		res.Reasons = append(res.Reasons, fmt.Sprintf("category %s does not exist in the active plan", req.Category))
		return a
	}
	a.category, a.found = cat, true

	headroom := cat.Remaining()
	if req.Amount > headroom {
		over := req.Amount - headroom
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("would exceed allocated budget for category %s by %d", cat.Name, over))
		res.RecommendedAdjustments = recommend(plan, snap, cat, over)
	}
	res.Valid = len(res.Reasons) == 0

	budget := snap.Budget()
	if cat.Amount == 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("category %s has no allocation, utilization is undefined", cat.Name))
	} else {
		// float sum: an invalid amount may not fit next to spent in int64
		utilization := (float64(cat.Spent) + float64(req.Amount)) / float64(cat.Amount)
		for _, t := range budget {
			if utilization >= t.Value {
				a.crossed = append(a.crossed, t)
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("threshold %s (%.0f%%) crossed: category %s would be at %.1f%% utilization",
						t.Name, t.Percent(), cat.Name, utilization*100))
			}
		}
		if crit, ok := snap.HighestCritical(); ok && res.Valid && utilization >= crit.Value {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("critical: category %s is near exhaustion with %d of %d remaining after this transaction",
					cat.Name, headroom-req.Amount, cat.Amount))
		}
	}

	if total := len(snap.Pairs()); total > 0 {
		a.confidence = clamp01(1 - float64(len(a.crossed))/float64(total))
	}

	after := cat
	if res.Valid {
		after.Spent += req.Amount
	}
	res.PredictedDepletionDate = proj.Project(after, history, now)
	return a
}

// recommend suggests shrinking the request to the category's headroom, then
// moving funds from categories still below the lowest threshold, largest
// surplus first, until over is covered.
func recommend(plan *models.Plan, snap *thresholds.Snapshot, cat models.BudgetCategory, over int64) []models.Adjustment {
	adjustments := []models.Adjustment{}
	if headroom := cat.Remaining(); headroom > 0 {
		adjustments = append(adjustments, models.Adjustment{
			Category: cat.Name,
			Amount:   headroom,
			Kind:     models.AdjustmentReduce,
		})
	}

	limit := 1.0
	if lowest, ok := snap.LowestBudget(); ok {
		limit = lowest.Value
	}
	var donors []models.BudgetCategory
	for _, c := range plan.Categories {
		if c.Name == cat.Name || c.Remaining() <= 0 {
			continue
		}
		if u, ok := c.Utilization(); ok && u < limit {
			donors = append(donors, c)
		}
	}
	sort.SliceStable(donors, func(i, j int) bool {
		return donors[i].Remaining() > donors[j].Remaining()
	})

	needed := over
	for _, d := range donors {
		if needed <= 0 {
			break
		}
		move := min(d.Remaining(), needed)
		adjustments = append(adjustments, models.Adjustment{
			Category: d.Name,
			Amount:   move,
			Kind:     models.AdjustmentReallocate,
		})
		needed -= move
	}
	return adjustments
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
