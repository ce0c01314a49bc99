package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// WebhookRepository maneja las suscripciones de webhook y su pista de
// auditoría de entregas
type WebhookRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewWebhookRepository crea una nueva instancia del repositorio
func NewWebhookRepository(db *DB, logger *logrus.Logger) *WebhookRepository {
	return &WebhookRepository{
		db:     db,
		logger: logger,
	}
}

// Create crea una nueva suscripción
func (r *WebhookRepository) Create(ctx context.Context, sub *models.WebhookSubscription) error {
	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return fmt.Errorf("error marshaling webhook headers: %w", err)
	}

	query := `
		INSERT INTO webhook_subscriptions (
			id, company_id, name, url, secret, events, headers,
			timeout_seconds, max_retries, retry_delay_seconds, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		sub.ID, sub.CompanyID, sub.Name, sub.URL, sub.Secret,
		pq.Array(sub.Events), headers,
		int(sub.Timeout.Seconds()), sub.MaxRetries, int(sub.RetryDelay.Seconds()), sub.IsActive,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting webhook subscription: %w", err)
	}

	return nil
}

// GetByID obtiene una suscripción por ID
func (r *WebhookRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.WebhookSubscription, error) {
	query := `
		SELECT id, company_id, name, url, secret, events, headers,
			   timeout_seconds, max_retries, retry_delay_seconds, is_active,
			   created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = $1 AND company_id = $2
	`

	sub, err := r.scanSubscription(r.db.QueryRowContext(ctx, query, id, companyID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("webhook subscription not found: %s", id)
		}
		return nil, fmt.Errorf("error querying webhook subscription: %w", err)
	}

	return sub, nil
}

// ListByCompany obtiene todas las suscripciones de una empresa
func (r *WebhookRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.WebhookSubscription, error) {
	query := `
		SELECT id, company_id, name, url, secret, events, headers,
			   timeout_seconds, max_retries, retry_delay_seconds, is_active,
			   created_at, updated_at
		FROM webhook_subscriptions
		WHERE company_id = $1
		ORDER BY created_at
	`

	return r.querySubscriptions(ctx, query, companyID)
}

// ListActiveByEvent obtiene las suscripciones activas que escuchan un evento
func (r *WebhookRepository) ListActiveByEvent(ctx context.Context, companyID uuid.UUID, event string) ([]*models.WebhookSubscription, error) {
	query := `
		SELECT id, company_id, name, url, secret, events, headers,
			   timeout_seconds, max_retries, retry_delay_seconds, is_active,
			   created_at, updated_at
		FROM webhook_subscriptions
		WHERE company_id = $1 AND is_active = true AND $2 = ANY(events)
	`

	return r.querySubscriptions(ctx, query, companyID, event)
}

func (r *WebhookRepository) querySubscriptions(ctx context.Context, query string, args ...interface{}) ([]*models.WebhookSubscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.WebhookSubscription
	for rows.Next() {
		sub, err := r.scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (r *WebhookRepository) scanSubscription(row scanner) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	var headers []byte
	var timeoutSec, retryDelaySec int

	err := row.Scan(
		&sub.ID, &sub.CompanyID, &sub.Name, &sub.URL, &sub.Secret,
		pq.Array(&sub.Events), &headers,
		&timeoutSec, &sub.MaxRetries, &retryDelaySec, &sub.IsActive,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &sub.Headers); err != nil {
			return nil, fmt.Errorf("error unmarshaling webhook headers: %w", err)
		}
	}
	sub.Timeout = time.Duration(timeoutSec) * time.Second
	sub.RetryDelay = time.Duration(retryDelaySec) * time.Second

	return &sub, nil
}

// Update actualiza una suscripción existente
func (r *WebhookRepository) Update(ctx context.Context, sub *models.WebhookSubscription) error {
	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return fmt.Errorf("error marshaling webhook headers: %w", err)
	}

	query := `
		UPDATE webhook_subscriptions
		SET name = $1, url = $2, events = $3, headers = $4,
			timeout_seconds = $5, max_retries = $6, retry_delay_seconds = $7, is_active = $8,
			updated_at = $9
		WHERE id = $10 AND company_id = $11
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.Name, sub.URL, pq.Array(sub.Events), headers,
		int(sub.Timeout.Seconds()), sub.MaxRetries, int(sub.RetryDelay.Seconds()), sub.IsActive,
		time.Now(), sub.ID, sub.CompanyID,
	)
	if err != nil {
		return fmt.Errorf("error updating webhook subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("webhook subscription not found: %s", sub.ID)
	}

	return nil
}

// Delete elimina una suscripción
func (r *WebhookRepository) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("error deleting webhook subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("webhook subscription not found: %s", id)
	}

	return nil
}

// AppendDelivery registra un intento de entrega en la pista de auditoría
func (r *WebhookRepository) AppendDelivery(ctx context.Context, record *models.DeliveryRecord) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, subscription_id, document_id, event, attempt_no,
			status_code, latency_ms, success, error_detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.SubscriptionID, record.DocumentID, record.Event, record.AttemptNo,
		record.StatusCode, record.LatencyMs, record.Success, record.ErrorDetail, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting webhook delivery: %w", err)
	}

	return nil
}

// ListDeliveries obtiene el historial de entregas de una suscripción con
// paginación
func (r *WebhookRepository) ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, page, pageSize int) ([]models.DeliveryRecord, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_deliveries WHERE subscription_id = $1`, subscriptionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting webhook deliveries: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, subscription_id, document_id, event, attempt_no,
			   status_code, latency_ms, success, error_detail, created_at
		FROM webhook_deliveries
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying webhook deliveries: %w", err)
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		var rec models.DeliveryRecord
		err := rows.Scan(
			&rec.ID, &rec.SubscriptionID, &rec.DocumentID, &rec.Event, &rec.AttemptNo,
			&rec.StatusCode, &rec.LatencyMs, &rec.Success, &rec.ErrorDetail, &rec.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning webhook delivery: %w", err)
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// GetStatistics calcula las estadísticas de entrega de una suscripción
func (r *WebhookRepository) GetStatistics(ctx context.Context, subscriptionID uuid.UUID) (*models.WebhookStatistics, error) {
	query := `
		SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE success),
			   COUNT(*) FILTER (WHERE NOT success),
			   COALESCE(AVG(latency_ms), 0),
			   MAX(created_at)
		FROM webhook_deliveries
		WHERE subscription_id = $1
	`

	var stats models.WebhookStatistics
	var lastAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, subscriptionID).Scan(
		&stats.TotalDeliveries, &stats.Succeeded, &stats.Failed,
		&stats.AverageLatencyMs, &lastAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying webhook statistics: %w", err)
	}

	if lastAt.Valid {
		formatted := lastAt.Time.UTC().Format(time.RFC3339)
		stats.LastDeliveryAt = &formatted
	}

	return &stats, nil
}
