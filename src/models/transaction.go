package models

import "time"

// Transaction is a recorded spend against a plan category.
type Transaction struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	Category   string    `json:"category"`
	Amount     int64     `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TransactionRequest struct {
	AccountID   string    `json:"account_id"`
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
}
