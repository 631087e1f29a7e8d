package models

import "time"

type ThresholdPair struct {
	Name  string  `json:"name" toml:"name"`
	Value float64 `json:"value" toml:"value"`
}

// ThresholdVersion is one audited configuration in update order.
type ThresholdVersion struct {
	Version    int64           `json:"version"`
	Thresholds []ThresholdPair `json:"thresholds"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ThresholdAlert is derived on read from plan state and the active
// configuration; it is never stored.
type ThresholdAlert struct {
	AccountID string    `json:"account_id"`
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	Threshold float64   `json:"threshold"`
	Utilized  int64     `json:"utilized"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

type CategoryHealth struct {
	Category    string  `json:"category"`
	Amount      int64   `json:"amount"`
	Spent       int64   `json:"spent"`
	Utilization float64 `json:"utilization"`
}

type BudgetHealth struct {
	AccountID   string           `json:"account_id"`
	Utilization float64          `json:"utilization"`
	Status      HealthStatus     `json:"status"`
	Categories  []CategoryHealth `json:"categories"`
}
