package engine

import "errors"

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidAccount  = errors.New("invalid account id")
	ErrInvalidCategory = errors.New("invalid category name")
)
