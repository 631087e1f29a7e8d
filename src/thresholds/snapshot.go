// Package thresholds holds the process-wide threshold configuration. Every
// update publishes a new immutable Snapshot; readers grab the current
// snapshot once at the start of an operation and never see a partial update.
package thresholds

import (
	"fmt"
	"math"
	"myndis-engine/src/models"
	"sort"
	"strings"
	"time"
)

const (
	BudgetPrefix         = "budget_"
	AnomalySensitivity   = "anomaly_sensitivity"
	ComplianceStrictness = "compliance_strictness"

	defaultAnomalySensitivity = 0.70
)

func Defaults() []models.ThresholdPair {
	return []models.ThresholdPair{
		{Name: "budget_warning_75", Value: 0.75},
		{Name: "budget_warning_90", Value: 0.90},
		{Name: "budget_critical", Value: 1.00},
		{Name: AnomalySensitivity, Value: defaultAnomalySensitivity},
		{Name: ComplianceStrictness, Value: 0.85},
	}
}

// Threshold is a utilization threshold, one whose name starts with "budget_".
type Threshold struct {
	Name     string
	Value    float64
	Critical bool
}

func (t Threshold) Percent() float64 {
	return t.Value * 100
}

type Snapshot struct {
	version   int64
	createdAt time.Time
	pairs     []models.ThresholdPair
	values    map[string]float64
	budget    []Threshold
	issues    []string
}

// newSnapshot normalizes a stored version. It never fails: out-of-range
// values are clamped, duplicates keep the last value and utilization
// thresholds are sorted ascending. Anything it had to fix is returned in
// Issues.
func newSnapshot(v models.ThresholdVersion) *Snapshot {
	s := &Snapshot{
		version:   v.Version,
		createdAt: v.CreatedAt,
		values:    make(map[string]float64, len(v.Thresholds)),
	}

	var order []string
	for _, p := range v.Thresholds {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			s.issues = append(s.issues, "threshold with empty name ignored")
			continue
		}
		val := p.Value
		switch {
		case math.IsNaN(val):
			s.issues = append(s.issues, fmt.Sprintf("threshold %s is NaN, treated as 0", name))
			val = 0
		case val < 0:
			s.issues = append(s.issues, fmt.Sprintf("threshold %s=%.4f clamped to 0", name, val))
			val = 0
		case val > 1:
			s.issues = append(s.issues, fmt.Sprintf("threshold %s=%.4f clamped to 1", name, val))
			val = 1
		}
		if _, dup := s.values[name]; dup {
			s.issues = append(s.issues, fmt.Sprintf("threshold %s listed more than once, last value kept", name))
		} else {
			order = append(order, name)
		}
		s.values[name] = val
	}

	for _, name := range order {
		s.pairs = append(s.pairs, models.ThresholdPair{Name: name, Value: s.values[name]})
		if strings.HasPrefix(name, BudgetPrefix) {
			s.budget = append(s.budget, Threshold{
				Name:     name,
				Value:    s.values[name],
				Critical: strings.Contains(name, "critical"),
			})
		}
	}

	for i := 1; i < len(s.budget); i++ {
		if s.budget[i].Value < s.budget[i-1].Value {
			s.issues = append(s.issues, fmt.Sprintf("non-monotonic thresholds: %s=%.2f follows %s=%.2f",
				s.budget[i].Name, s.budget[i].Value, s.budget[i-1].Name, s.budget[i-1].Value))
		}
	}
	sort.SliceStable(s.budget, func(i, j int) bool {
		if s.budget[i].Value == s.budget[j].Value {
			return s.budget[i].Name < s.budget[j].Name
		}
		return s.budget[i].Value < s.budget[j].Value
	})

	var maxWarning float64
	for _, t := range s.budget {
		if !t.Critical && t.Value > maxWarning {
			maxWarning = t.Value
		}
	}
	for _, t := range s.budget {
		if t.Critical && t.Value < maxWarning {
			s.issues = append(s.issues, fmt.Sprintf("critical threshold %s=%.2f is below warning level %.2f", t.Name, t.Value, maxWarning))
		}
	}
	return s
}

func (s *Snapshot) Version() int64 { return s.version }
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Issues lists the integrity problems fixed while building the snapshot.
func (s *Snapshot) Issues() []string {
	return append([]string(nil), s.issues...)
}

func (s *Snapshot) Pairs() []models.ThresholdPair {
	return append([]models.ThresholdPair(nil), s.pairs...)
}

func (s *Snapshot) Value(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Budget returns the utilization thresholds in ascending order.
func (s *Snapshot) Budget() []Threshold {
	return append([]Threshold(nil), s.budget...)
}

// LowestBudget is the first warning level, used to decide which categories
// have surplus.
func (s *Snapshot) LowestBudget() (Threshold, bool) {
	if len(s.budget) == 0 {
		return Threshold{}, false
	}
	return s.budget[0], true
}

func (s *Snapshot) HighestCritical() (Threshold, bool) {
	for i := len(s.budget) - 1; i >= 0; i-- {
		if s.budget[i].Critical {
			return s.budget[i], true
		}
	}
	return Threshold{}, false
}

func (s *Snapshot) AnomalySensitivity() float64 {
	if v, ok := s.values[AnomalySensitivity]; ok {
		return v
	}
	return defaultAnomalySensitivity
}

func (s *Snapshot) ToVersion() models.ThresholdVersion {
	return models.ThresholdVersion{
		Version:    s.version,
		Thresholds: s.Pairs(),
		CreatedAt:  s.createdAt,
	}
}
