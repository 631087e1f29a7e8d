package db

import (
	"context"
	"errors"
	"fmt"
	"myndis-engine/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConditionFailed = errors.New("conditional update matched no row")
)

func GetActivePlan(ctx context.Context, pool *pgxpool.Pool, accountID string) (*models.Plan, error) {
	query := `
		SELECT id, account_id, status, start_date, end_date, updated_at
		FROM plans WHERE account_id = $1 AND status = 'active'
	`
	var p models.Plan
	err := pool.QueryRow(ctx, query, accountID).
		Scan(&p.ID, &p.AccountID, &p.Status, &p.Start, &p.End, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT name, amount, spent
		FROM plan_categories WHERE plan_id = $1
		ORDER BY position
	`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.BudgetCategory
		if err := rows.Scan(&c.Name, &c.Amount, &c.Spent); err != nil {
			return nil, err
		}
		p.Categories = append(p.Categories, c)
	}
	return &p, rows.Err()
}

func GetTransactionHistory(ctx context.Context, pool *pgxpool.Pool, accountID string) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, category, amount, occurred_at
		FROM plan_transactions WHERE account_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Category, &t.Amount, &t.OccurredAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ApplySpend increments spent with a guarded UPDATE so the database itself
// refuses an overshoot, then records the transaction, all in one tx.
// ErrConditionFailed means the category exists but the spend does not fit;
// ErrNotFound means there is no such active category.
func ApplySpend(ctx context.Context, pool *pgxpool.Pool, txn models.Transaction) (*models.BudgetCategory, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var planID string
	var c models.BudgetCategory
	err = tx.QueryRow(ctx, `
		UPDATE plan_categories c
		SET spent = c.spent + $1
		FROM plans p
		WHERE c.plan_id = p.id AND p.account_id = $2 AND p.status = 'active'
			AND c.name = $3 AND $1 <= c.amount - c.spent
		RETURNING p.id, c.name, c.amount, c.spent
	`, txn.Amount, txn.AccountID, txn.Category).Scan(&planID, &c.Name, &c.Amount, &c.Spent)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM plan_categories c JOIN plans p ON c.plan_id = p.id
				WHERE p.account_id = $1 AND p.status = 'active' AND c.name = $2
			)
		`, txn.AccountID, txn.Category).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrConditionFailed
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO plan_transactions (id, account_id, category, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, txn.ID, txn.AccountID, txn.Category, txn.Amount, txn.OccurredAt); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE plans SET updated_at = GREATEST(updated_at, $1) WHERE id = $2
	`, txn.OccurredAt, planID); err != nil {
		return nil, fmt.Errorf("touch plan: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &c, nil
}

func InsertTransactions(ctx context.Context, pool *pgxpool.Pool, txns []models.Transaction) error {
	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO plan_transactions (id, account_id, category, amount, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.AccountID, t.Category, t.Amount, t.OccurredAt)
	}
	return pool.SendBatch(ctx, batch).Close()
}

// UpsertPlan replaces the plan row and its categories in one tx.
func UpsertPlan(ctx context.Context, pool *pgxpool.Pool, plan *models.Plan) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	err = tx.QueryRow(ctx, `SELECT account_id FROM plans WHERE id = $1`, plan.ID).Scan(&owner)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return err
	case owner != plan.AccountID:
		return fmt.Errorf("plan %s belongs to another account", plan.ID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO plans (id, account_id, status, start_date, end_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, updated_at = EXCLUDED.updated_at
	`, plan.ID, plan.AccountID, plan.Status, plan.Start, plan.End, plan.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM plan_categories WHERE plan_id = $1`, plan.ID); err != nil {
		return err
	}
	for i, c := range plan.Categories {
		if _, err := tx.Exec(ctx, `
			INSERT INTO plan_categories (plan_id, position, name, amount, spent)
			VALUES ($1, $2, $3, $4, $5)
		`, plan.ID, i, c.Name, c.Amount, c.Spent); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
