// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"finboard-service/internal/domain/plan"
	xerrors "finboard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, code, name, price_cents, monthly_price_cents, annual_price_cents,
       is_active, connection_limit, role, created_at, updated_at`

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.PriceCents, &p.MonthlyPriceCents, &p.AnnualPriceCents,
		&p.IsActive, &p.ConnectionLimit, &p.Role, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	return &p, nil
}

// FindByID retrieves a plan by ID
func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE id = $1`, planColumns)
	return scanPlan(r.db.QueryRow(ctx, query, id))
}

// FindByCode retrieves a plan by its stable code
func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE code = $1`, planColumns)
	return scanPlan(r.db.QueryRow(ctx, query, code))
}

// ListActive retrieves all active plans, cheapest first
func (r *PlanRepository) ListActive(ctx context.Context) ([]plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE is_active = TRUE ORDER BY price_cents ASC`, planColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}

	return plans, rows.Err()
}
