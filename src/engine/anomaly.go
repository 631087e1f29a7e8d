package engine

import (
	"fmt"
	"math"
	"myndis-engine/src/models"
	"sort"
	"time"
)

// AnomalyRules holds the tunables of the anomaly detector.
type AnomalyRules struct {
	// Sensitivity in [0,1]; higher flags smaller deviations.
	Sensitivity float64
	// MinHistory is the number of other transactions an amount is compared
	// against before it can be an outlier.
	MinHistory int
	// SpikeCount transactions within SpikeWindow form a frequency spike.
	SpikeCount  int
	SpikeWindow time.Duration
	// ShiftMinHistory is how many earlier transactions make a pattern
	// established for category-shift detection.
	ShiftMinHistory int
}

// K maps sensitivity to the stddev multiplier: 0.5 at sensitivity 1, 5.5 at
// sensitivity 0.
func (r AnomalyRules) K() float64 {
	return 0.5 + 5*(1-clamp01(r.Sensitivity))
}

// detectAnomalies reports amount outliers, then frequency spikes, then
// category shifts, each group in chronological order. It never returns nil.
func detectAnomalies(history []models.Transaction, rules AnomalyRules) []string {
	txns := append([]models.Transaction(nil), history...)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].OccurredAt.Before(txns[j].OccurredAt)
	})

	out := []string{}
	out = append(out, amountOutliers(txns, rules)...)
	out = append(out, frequencySpikes(txns, rules)...)
	out = append(out, categoryShifts(txns, rules)...)
	return out
}

// amountOutliers compares every transaction with the mean and population
// stddev of all the other ones.
func amountOutliers(txns []models.Transaction, rules AnomalyRules) []string {
	n := len(txns)
	if n-1 < max(rules.MinHistory, 1) {
		return nil
	}

	var sum, sumSq float64
	for _, t := range txns {
		a := float64(t.Amount)
		sum += a
		sumSq += a * a
	}

	k := rules.K()
	var out []string
	for _, t := range txns {
		a := float64(t.Amount)
		m := float64(n - 1)
		mean := (sum - a) / m
		variance := (sumSq-a*a)/m - mean*mean
		stddev := math.Sqrt(math.Max(variance, 0))
		limit := mean + k*stddev
		if a <= limit {
			continue
		}
		// floating point noise around a constant baseline
		if stddev < 1e-9 && a-mean < 1e-9 {
			continue
		}
		deviation := "constant baseline"
		if stddev >= 1e-9 {
			deviation = fmt.Sprintf("%.1f standard deviations", (a-mean)/stddev)
		}
		out = append(out, fmt.Sprintf(
			"amount outlier: transaction %s of %d in category %s on %s is %.2f above the account mean of %.2f (%s, limit %.2f)",
			t.ID, t.Amount, t.Category, t.OccurredAt.UTC().Format(time.RFC3339), a-mean, mean, deviation, limit))
	}
	return out
}

type burst struct {
	start, end int
	peak       int
}

// frequencySpikes reports each burst of at least SpikeCount transactions
// within SpikeWindow once, provided there was activity before the burst and
// the earlier rate per window was lower than the burst's peak.
func frequencySpikes(txns []models.Transaction, rules AnomalyRules) []string {
	if rules.SpikeCount < 1 || rules.SpikeWindow <= 0 || len(txns) < rules.SpikeCount {
		return nil
	}

	var bursts []burst
	var cur *burst
	left := 0
	for right := range txns {
		for txns[right].OccurredAt.Sub(txns[left].OccurredAt) > rules.SpikeWindow {
			left++
		}
		count := right - left + 1
		switch {
		case count >= rules.SpikeCount && cur == nil:
			cur = &burst{start: left, end: right, peak: count}
		case count >= rules.SpikeCount:
			cur.end = right
			cur.peak = max(cur.peak, count)
		case cur != nil:
			bursts = append(bursts, *cur)
			cur = nil
		}
	}
	if cur != nil {
		bursts = append(bursts, *cur)
	}

	var out []string
	for _, b := range bursts {
		prior := b.start
		if prior == 0 {
			continue
		}
		span := txns[b.start].OccurredAt.Sub(txns[0].OccurredAt)
		baseline := float64(prior) * float64(rules.SpikeWindow) / float64(max(span, rules.SpikeWindow))
		if baseline >= float64(b.peak) {
			continue
		}
		out = append(out, fmt.Sprintf(
			"frequency spike: %d transactions within %s between %s and %s (transactions %s to %s), baseline %.2f per window",
			b.peak, rules.SpikeWindow, txns[b.start].OccurredAt.UTC().Format(time.RFC3339),
			txns[b.end].OccurredAt.UTC().Format(time.RFC3339), txns[b.start].ID, txns[b.end].ID, baseline))
	}
	return out
}

// categoryShifts flags the first transaction in a category once the account
// already has ShiftMinHistory transactions elsewhere.
func categoryShifts(txns []models.Transaction, rules AnomalyRules) []string {
	var out []string
	seen := make(map[string]struct{})
	for i, t := range txns {
		if _, ok := seen[t.Category]; !ok && rules.ShiftMinHistory > 0 && i >= rules.ShiftMinHistory {
			out = append(out, fmt.Sprintf(
				"category shift: transaction %s of %d on %s is the first in category %s after %d transactions across %d other categories",
				t.ID, t.Amount, t.OccurredAt.UTC().Format(time.RFC3339), t.Category, i, len(seen)))
		}
		seen[t.Category] = struct{}{}
	}
	return out
}
