package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Entitlements reads the premium flag from the profiles table.
type Entitlements struct {
	pool *pgxpool.Pool
}

func NewEntitlements(pool *pgxpool.Pool) *Entitlements {
	return &Entitlements{pool: pool}
}

// IsPremium reports false for users without a profile row.
func (e *Entitlements) IsPremium(ctx context.Context, userID string) (bool, error) {
	var premium bool
	err := e.pool.QueryRow(ctx, `SELECT is_premium FROM profiles WHERE user_id=$1`, userID).Scan(&premium)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load entitlement: %w", err)
	}
	return premium, nil
}
