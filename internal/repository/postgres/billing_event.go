package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bizdesk/bizdesk/internal/pkg/errors"
	"github.com/bizdesk/bizdesk/internal/pkg/metrics"
)

// BillingEventRepository records processed billing event ids so replays from
// the provider are applied once
type BillingEventRepository struct {
	db *sql.DB
}

// NewBillingEventRepository creates a new billing event repository
func NewBillingEventRepository(db *sql.DB) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// MarkProcessed records eventID and reports whether this is the first time
// it was seen
func (r *BillingEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO billing_events (id, event_type, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, eventID, eventType, time.Now().Unix())
	metrics.RecordDBQuery("insert", "billing_events", time.Since(start))
	if err != nil {
		return false, errors.DatabaseError("Failed to record billing event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to record billing event", err)
	}
	return n == 1, nil
}

// Forget removes eventID so a failed event can be redelivered
func (r *BillingEventRepository) Forget(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM billing_events WHERE id = $1`, eventID)
	if err != nil {
		return errors.DatabaseError("Failed to forget billing event", err)
	}
	return nil
}
