package models

import "time"

type AdjustmentKind string

const (
	AdjustmentReduce     AdjustmentKind = "reduce"
	AdjustmentReallocate AdjustmentKind = "reallocate"
)

// Adjustment suggests either shrinking the request to the remaining headroom
// of its own category or moving Amount from a category with surplus.
type Adjustment struct {
	Category string         `json:"category"`
	Amount   int64          `json:"amount"`
	Kind     AdjustmentKind `json:"kind"`
}

type ValidationResult struct {
	TransactionID          string       `json:"transaction_id"`
	Valid                  bool         `json:"valid"`
	Reasons                []string     `json:"reasons"`
	Warnings               []string     `json:"warnings"`
	RecommendedAdjustments []Adjustment `json:"recommended_adjustments"`
	PredictedDepletionDate *time.Time   `json:"predicted_depletion_date,omitempty"`
}

// SpendResult is returned when a spend is validated and, if valid, applied.
type SpendResult struct {
	Validation        ValidationResult `json:"validation"`
	Applied           bool             `json:"applied"`
	Spent             int64            `json:"spent"`
	CrossedThresholds []string         `json:"crossed_thresholds"`
}
