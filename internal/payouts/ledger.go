// Package payouts keeps the organizer payout ledger in PostgreSQL.
package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/campverse/backend/internal/models"
)

// Entry is one released payment owed to an organizer.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	PaymentID   string          `json:"paymentId"`
	CampID      string          `json:"campId"`
	OrganizerID string          `json:"organizerId"`
	Amount      decimal.Decimal `json:"amount"`
	ReleasedAt  time.Time       `json:"releasedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Summary totals an organizer's releases.
type Summary struct {
	OrganizerID string          `json:"organizerId"`
	Payments    int64           `json:"payments"`
	Total       decimal.Decimal `json:"total"`
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger appends and reads payout entries.
type Ledger struct {
	db execQuerier
}

// NewLedger creates a ledger on pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

// RecordRelease appends the payout for a released payment. Recording the same payment twice
// is a no-op.
func (l *Ledger) RecordRelease(ctx context.Context, pay *models.Payment) error {
	releasedAt := time.Now().UTC()
	if pay.ReleasedAt != nil {
		releasedAt = *pay.ReleasedAt
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO payout_ledger (id, payment_id, camp_id, organizer_id, amount, released_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO NOTHING`,
		uuid.New(), pay.ID.Hex(), pay.CampID.Hex(), pay.OrganizerID.Hex(),
		decimal.NewFromFloat(pay.FinalAmount).StringFixed(2), releasedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// List returns entries, newest first. An empty organizerID lists all organizers.
func (l *Ledger) List(ctx context.Context, organizerID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.Query(ctx, `
		SELECT id::text, payment_id, camp_id, organizer_id, amount::text, released_at, created_at
		FROM payout_ledger
		WHERE $1 = '' OR organizer_id = $1
		ORDER BY released_at DESC
		LIMIT $2`, organizerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var id, amount string
		if err := rows.Scan(&id, &e.PaymentID, &e.CampID, &e.OrganizerID, &amount, &e.ReleasedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse payout id: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse payout amount: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summarize totals the releases for one organizer.
func (l *Ledger) Summarize(ctx context.Context, organizerID string) (*Summary, error) {
	var count int64
	var total string
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)::text
		FROM payout_ledger
		WHERE organizer_id = $1`, organizerID).Scan(&count, &total)
	if err != nil {
		return nil, fmt.Errorf("summarize payouts: %w", err)
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse payout total: %w", err)
	}
	return &Summary{OrganizerID: organizerID, Payments: count, Total: sum}, nil
}
