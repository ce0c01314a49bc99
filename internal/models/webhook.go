package models

import (
	"time"

	"github.com/google/uuid"
)

// Eventos publicados por el bus al dispatcher de webhooks
const (
	EventDocumentAccepted  = "document.accepted"
	EventDocumentRejected  = "document.rejected"
	EventDocumentError     = "document.error"
	EventDocumentCancelled = "document.cancelled"
)

// WebhookSubscription representa una suscripción de notificación saliente
type WebhookSubscription struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	CompanyID  uuid.UUID         `json:"company_id" db:"company_id"`
	Name       string            `json:"name" db:"name"`
	URL        string            `json:"url" db:"url"`
	Secret     string            `json:"secret" db:"secret"`
	Events     []string          `json:"events" db:"events"`
	Headers    map[string]string `json:"headers,omitempty" db:"headers"`
	Timeout    time.Duration     `json:"timeout" db:"timeout_seconds"`
	MaxRetries int               `json:"max_retries" db:"max_retries"`
	RetryDelay time.Duration     `json:"retry_delay" db:"retry_delay_seconds"`
	IsActive   bool              `json:"active" db:"is_active"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// SubscribesTo indica si la suscripción escucha el tipo de evento dado
func (s *WebhookSubscription) SubscribesTo(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// DeliveryRecord registra un intento de entrega de webhook.
// Es append-only: forma la pista de auditoría de notificaciones.
type DeliveryRecord struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id" db:"subscription_id"`
	DocumentID     *uuid.UUID `json:"document_id,omitempty" db:"document_id"`
	Event          string     `json:"event" db:"event"`
	AttemptNo      int        `json:"attempt_no" db:"attempt_no"`
	StatusCode     int        `json:"status_code" db:"status_code"`
	LatencyMs      int64      `json:"latency_ms" db:"latency_ms"`
	Success        bool       `json:"success" db:"success"`
	ErrorDetail    *string    `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// CreateWebhookRequest representa el request para crear una suscripción
type CreateWebhookRequest struct {
	Name       string            `json:"name" binding:"required"`
	URL        string            `json:"url" binding:"required,url"`
	Events     []string          `json:"events" binding:"required,min=1"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timeout    int               `json:"timeout,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
	RetryDelay int               `json:"retry_delay,omitempty"`
	Active     *bool             `json:"active,omitempty"`
}

// UpdateWebhookRequest representa el request para actualizar una suscripción
type UpdateWebhookRequest struct {
	Name       *string           `json:"name,omitempty"`
	URL        *string           `json:"url,omitempty"`
	Events     []string          `json:"events,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timeout    *int              `json:"timeout,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
	RetryDelay *int              `json:"retry_delay,omitempty"`
	Active     *bool             `json:"active,omitempty"`
}

// WebhookResponse representa la suscripción en las respuestas de la API.
// El secret solo se expone al momento de la creación.
type WebhookResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	Events     []string  `json:"events"`
	Timeout    int       `json:"timeout"`
	MaxRetries int       `json:"max_retries"`
	RetryDelay int       `json:"retry_delay"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebhookStatistics representa las estadísticas de entrega de una suscripción
type WebhookStatistics struct {
	TotalDeliveries  int     `json:"total_deliveries"`
	Succeeded        int     `json:"succeeded"`
	Failed           int     `json:"failed"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	LastDeliveryAt   *string `json:"last_delivery_at,omitempty"`
}

// DeliveryListResponse representa el historial de entregas paginado
type DeliveryListResponse struct {
	Items    []DeliveryRecord `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
}

// WebhookTestResult representa el resultado de un disparo de prueba
type WebhookTestResult struct {
	StatusCode   int     `json:"status_code"`
	ResponseTime float64 `json:"response_time"`
	Success      bool    `json:"success"`
	Error        *string `json:"error,omitempty"`
}
