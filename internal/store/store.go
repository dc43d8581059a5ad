// Package store persists deliveries, webhooks and attempt history in
// Postgres. See schema.sql for the table definitions.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hooksmith/hooksmith/internal/delivery"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store implements the dispatcher's persistence surface on pgx.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// DeliveryForDispatch loads a delivery together with its target webhook.
func (s *Store) DeliveryForDispatch(ctx context.Context, id uuid.UUID) (delivery.EventDelivery, delivery.Webhook, error) {
	var del delivery.EventDelivery
	var hook delivery.Webhook
	err := s.pool.QueryRow(ctx, `
		SELECT d.id, d.webhook_id, d.event_type, d.payload, d.status, d.attempt, d.created_at,
		       w.id, w.target_url, w.secret, w.auth_mode, w.created_at
		FROM hooksmith.deliveries d
		JOIN hooksmith.webhooks w ON w.id = d.webhook_id
		WHERE d.id = $1`, id).Scan(
		&del.ID, &del.WebhookID, &del.EventType, &del.Payload, &del.Status, &del.Attempt, &del.CreatedAt,
		&hook.ID, &hook.TargetURL, &hook.Secret, &hook.AuthMode, &hook.CreatedAt,
	)
	if err != nil {
		return delivery.EventDelivery{}, delivery.Webhook{}, err
	}
	return del, hook, nil
}

// RecordAttempt appends an attempt row and mirrors its status onto the
// parent delivery in one transaction, so history and current state can
// never diverge.
func (s *Store) RecordAttempt(ctx context.Context, deliveryID uuid.UUID, resp delivery.WebhookResponse) (delivery.Attempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return delivery.Attempt{}, err
	}
	defer tx.Rollback(ctx)

	var seq int
	if err := tx.QueryRow(ctx, `
		UPDATE hooksmith.deliveries
		SET status = $2, attempt = attempt + 1, updated_at = now()
		WHERE id = $1
		RETURNING attempt`, deliveryID, string(resp.Status)).Scan(&seq); err != nil {
		return delivery.Attempt{}, err
	}

	att := delivery.Attempt{
		ID:         uuid.New(),
		DeliveryID: deliveryID,
		Seq:        seq,
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Response:   resp.Content,
		Duration:   resp.Duration,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO hooksmith.attempts (id, delivery_id, seq, status, http_status, response, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		att.ID, att.DeliveryID, att.Seq, string(att.Status), att.StatusCode, att.Response,
		att.Duration.Milliseconds(), att.CreatedAt,
	); err != nil {
		return delivery.Attempt{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return delivery.Attempt{}, err
	}
	return att, nil
}

// InsertDeadLetter records a delivery whose retry budget is exhausted.
func (s *Store) InsertDeadLetter(ctx context.Context, deliveryID uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hooksmith.dlq (delivery_id, reason) VALUES ($1, $2)`, deliveryID, reason)
	return err
}

// MarkPending resets a delivery for replay.
func (s *Store) MarkPending(ctx context.Context, deliveryID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE hooksmith.deliveries
		SET status = $2, updated_at = now()
		WHERE id = $1`, deliveryID, string(delivery.StatusPending))
	return err
}

// ListAttempts returns the attempt history of a delivery, newest first.
func (s *Store) ListAttempts(ctx context.Context, deliveryID uuid.UUID, limit int) ([]delivery.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, delivery_id, seq, status, http_status, response, duration_ms, created_at
		FROM hooksmith.attempts
		WHERE delivery_id = $1
		ORDER BY seq DESC
		LIMIT $2`, deliveryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []delivery.Attempt
	for rows.Next() {
		var att delivery.Attempt
		var durationMS int64
		if err := rows.Scan(&att.ID, &att.DeliveryID, &att.Seq, &att.Status, &att.StatusCode,
			&att.Response, &durationMS, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, att)
	}
	return attempts, rows.Err()
}

// DeadLetterRow is one DLQ entry as listed by the ops CLI.
type DeadLetterRow struct {
	DeliveryID uuid.UUID
	Reason     string
	CreatedAt  time.Time
}

// ListDeadLetters returns DLQ entries, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetterRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT delivery_id, reason, created_at
		FROM hooksmith.dlq
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dead []DeadLetterRow
	for rows.Next() {
		var row DeadLetterRow
		if err := rows.Scan(&row.DeliveryID, &row.Reason, &row.CreatedAt); err != nil {
			return nil, err
		}
		dead = append(dead, row)
	}
	return dead, rows.Err()
}
