package engine

import (
	"myndis-engine/src/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjector_Project(t *testing.T) {
	daily := func(n int, amount int64) []models.Transaction {
		var out []models.Transaction
		for i := 0; i < n; i++ {
			out = append(out, txnAt("t", "therapy", amount, testNow.AddDate(0, 0, i-n)))
		}
		return out
	}

	tests := []struct {
		name    string
		cat     models.BudgetCategory
		history []models.Transaction
		want    *time.Time
	}{
		{"no history", cat("therapy", 1000, 0), nil, nil},
		{"single transaction", cat("therapy", 1000, 0), daily(1, 100), nil},
		{"same instant", cat("therapy", 1000, 0), []models.Transaction{
			txnAt("a", "therapy", 100, testNow), txnAt("b", "therapy", 100, testNow),
		}, nil},
		{"other categories ignored", cat("therapy", 1000, 0), append(daily(1, 100), txnAt("x", "travel", 50, testNow)), nil},
		{"linear", cat("therapy", 1000, 600), daily(3, 50), ptr(testNow.Add(8 * 24 * time.Hour))},
		{"exhausted", cat("therapy", 1000, 1000), daily(3, 50), ptr(testNow)},
		{"overspent", cat("therapy", 1000, 1200), daily(3, 50), ptr(testNow)},
		{"beyond a century", cat("therapy", 1<<50, 0), daily(3, 1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Projector{Window: 5}.Project(tt.cat, tt.history, testNow)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestProjector_UsesRecentWindow(t *testing.T) {
	var history []models.Transaction
	// an old slow period followed by five fast days
	for i := 0; i < 5; i++ {
		history = append(history, txnAt("old", "therapy", 10, testNow.AddDate(0, 0, -100+10*i)))
	}
	for i := 0; i < 5; i++ {
		history = append(history, txnAt("new", "therapy", 100, testNow.AddDate(0, 0, i-5)))
	}

	got := Projector{Window: 5}.Project(cat("therapy", 2000, 1000), history, testNow)
	require.NotNil(t, got)
	assert.Equal(t, testNow.Add(10*24*time.Hour), *got)
}

func ptr(t time.Time) *time.Time {
	return &t
}
