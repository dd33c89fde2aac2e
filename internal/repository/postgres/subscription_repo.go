// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finboard-service/internal/domain/subscription"
	xerrors "finboard-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, reference, user_id, plan_id, status,
       started_at, current_period_start, current_period_end, canceled_at,
       metadata, created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var metadataJSON []byte

	err := row.Scan(
		&sub.ID, &sub.Reference, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.StartedAt, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CanceledAt,
		&metadataJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	if len(metadataJSON) > 0 {
		var meta subscription.Metadata
		if err := json.Unmarshal(metadataJSON, &meta); err == nil {
			sub.Metadata = &meta
		}
	}

	return &sub, nil
}

// CreateReplacingLive inserts a new subscription and, in the same
// transaction, cancels any live subscription the user already holds. The
// existing live row is locked first so a concurrent create for the same
// user waits here instead of double-inserting; the partial unique index on
// live rows turns any remaining race into ErrConflict.
func (r *SubscriptionRepository) CreateReplacingLive(ctx context.Context, sub *subscription.Subscription) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	rows, err := tx.Query(ctx, `
		SELECT id FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'trialing', 'past_due')
		FOR UPDATE
	`, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock live subscriptions: %w", err)
	}

	var liveIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan live subscription id: %w", err)
		}
		liveIDs = append(liveIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read live subscriptions: %w", err)
	}

	for _, id := range liveIDs {
		tag, err := tx.Exec(ctx, `
			UPDATE subscriptions
			SET status = 'canceled', canceled_at = $1, updated_at = $1
			WHERE id = $2
		`, now, id)
		if err != nil {
			return fmt.Errorf("failed to cancel superseded subscription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return xerrors.ErrNotFound
		}
	}

	var metadataJSON []byte
	if sub.Metadata != nil {
		metadataJSON, err = json.Marshal(sub.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO subscriptions (
			reference, user_id, plan_id, status,
			started_at, current_period_start, current_period_end, canceled_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`,
		sub.Reference, sub.UserID, sub.PlanID, sub.Status,
		sub.StartedAt, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CanceledAt, metadataJSON,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return xerrors.ErrConflict
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return xerrors.ErrConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// FindActiveByUser retrieves the user's active subscription, if any
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

// FindLatestByUser retrieves the most-recently-created subscription for the
// user regardless of status.
func (r *SubscriptionRepository) FindLatestByUser(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, subscriptionColumns)
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

// List retrieves the user's subscriptions newest first, offset-paginated,
// along with the total row count.
func (r *SubscriptionRepository) List(ctx context.Context, userID int64, page, pageSize int) ([]subscription.Subscription, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subscriptions := []subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		subscriptions = append(subscriptions, *sub)
	}

	return subscriptions, total, rows.Err()
}

// Cancel transitions a subscription to canceled with the given timestamp.
func (r *SubscriptionRepository) Cancel(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = $1, updated_at = $1
		WHERE id = $2 AND status != 'canceled'
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

// SetPaymentPreference attaches the gateway preference id to the
// subscription's metadata. Runs outside the creation transaction so the
// external call never holds a row lock.
func (r *SubscriptionRepository) SetPaymentPreference(ctx context.Context, id int64, preferenceID string) error {
	metadataJSON, err := json.Marshal(subscription.Metadata{PaymentPreferenceID: preferenceID})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := r.db.Exec(ctx, `
		UPDATE subscriptions SET metadata = $1, updated_at = $2 WHERE id = $3
	`, metadataJSON, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription metadata: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
