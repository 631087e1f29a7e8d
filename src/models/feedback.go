package models

import "time"

// Decision is a verdict recorded for later feedback correlation.
type Decision struct {
	TransactionID string        `json:"transaction_id"`
	AccountID     string        `json:"account_id"`
	Category      string        `json:"category"`
	Valid         bool          `json:"valid"`
	Confidence    float64       `json:"confidence"`
	Duration      time.Duration `json:"duration"`
	DecidedAt     time.Time     `json:"decided_at"`
}

type Feedback struct {
	AccountID     string    `json:"account_id"`
	TransactionID string    `json:"transaction_id"`
	Verdict       bool      `json:"verdict"`
	Approved      bool      `json:"approved"`
	Reason        string    `json:"reason"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type Metrics struct {
	ValidationAccuracy    float64       `json:"validation_accuracy"`
	FalsePositiveRate     float64       `json:"false_positive_rate"`
	FalseNegativeRate     float64       `json:"false_negative_rate"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	ConfidenceScores      []float64     `json:"confidence_scores"`
	AverageConfidence     float64       `json:"average_confidence"`
	TotalFeedback         int           `json:"total_feedback"`
	TotalDecisions        int           `json:"total_decisions"`
}

// AccountOverview bundles the read-derived views of one account.
type AccountOverview struct {
	AccountID string           `json:"account_id"`
	Alerts    []ThresholdAlert `json:"alerts"`
	Anomalies []string         `json:"anomalies"`
	Health    *BudgetHealth    `json:"health,omitempty"`
}
