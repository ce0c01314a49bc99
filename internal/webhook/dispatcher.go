package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
)

// SubscriptionStore expone las operaciones de persistencia del dispatcher
type SubscriptionStore interface {
	ListActiveByEvent(ctx context.Context, companyID uuid.UUID, event string) ([]*models.WebhookSubscription, error)
	AppendDelivery(ctx context.Context, record *models.DeliveryRecord) error
}

// payload es el cuerpo firmado que reciben los consumidores
type payload struct {
	Event     string           `json:"event"`
	Data      *models.Document `json:"data"`
	Timestamp string           `json:"timestamp"`
}

// Dispatcher entrega notificaciones HTTP firmadas a las suscripciones
// activas. Se registra como suscriptor del bus de eventos; cada entrega corre
// en su propia goroutine para no bloquear al publicador.
type Dispatcher struct {
	store  SubscriptionStore
	logger *logrus.Logger
	wg     sync.WaitGroup
}

// NewDispatcher crea una nueva instancia del dispatcher
func NewDispatcher(store SubscriptionStore, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		logger: logger,
	}
}

// Register suscribe el dispatcher a los eventos de documento del bus
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe(d.handle,
		models.EventDocumentAccepted,
		models.EventDocumentRejected,
		models.EventDocumentError,
		models.EventDocumentCancelled,
	)
}

// Wait espera a que terminen las entregas en curso. Se usa en el apagado
// ordenado del servicio.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handle(event events.Event) {
	ctx := context.Background()
	subs, err := d.store.ListActiveByEvent(ctx, event.Document.CompanyID, event.Type)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"event": event.Type,
			"error": err.Error(),
		}).Error("Could not load webhook subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload{
		Event:     event.Type,
		Data:      event.Document,
		Timestamp: event.OccurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		d.logger.WithField("event", event.Type).Error("Could not marshal webhook payload")
		return
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(sub *models.WebhookSubscription) {
			defer d.wg.Done()
			d.deliver(ctx, sub, event.Type, &event.Document.ID, body)
		}(sub)
	}
}

// deliver entrega la notificación con reintentos acotados. Cada intento se
// registra en la pista de auditoría, exitoso o no.
func (d *Dispatcher) deliver(ctx context.Context, sub *models.WebhookSubscription, event string, docID *uuid.UUID, body []byte) {
	maxAttempts := sub.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attemptNo := 1; attemptNo <= maxAttempts; attemptNo++ {
		statusCode, latency, err := d.post(ctx, sub, event, body)

		record := &models.DeliveryRecord{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			DocumentID:     docID,
			Event:          event,
			AttemptNo:      attemptNo,
			StatusCode:     statusCode,
			LatencyMs:      latency.Milliseconds(),
			Success:        err == nil && statusCode >= 200 && statusCode < 300,
			CreatedAt:      time.Now(),
		}
		if err != nil {
			detail := err.Error()
			record.ErrorDetail = &detail
		}

		if appendErr := d.store.AppendDelivery(ctx, record); appendErr != nil {
			d.logger.WithFields(logrus.Fields{
				"subscription_id": sub.ID,
				"error":           appendErr.Error(),
			}).Error("Could not record webhook delivery")
		}

		if record.Success {
			d.logger.WithFields(logrus.Fields{
				"subscription_id": sub.ID,
				"event":           event,
				"attempt":         attemptNo,
				"status_code":     statusCode,
			}).Info("Webhook delivered")
			return
		}

		d.logger.WithFields(logrus.Fields{
			"subscription_id": sub.ID,
			"event":           event,
			"attempt":         attemptNo,
			"max":             maxAttempts,
			"status_code":     statusCode,
		}).Warn("Webhook delivery failed")

		if attemptNo < maxAttempts {
			select {
			case <-time.After(sub.RetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// post ejecuta un intento de entrega individual
func (d *Dispatcher) post(ctx context.Context, sub *models.WebhookSubscription, event string, body []byte) (int, time.Duration, error) {
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("error creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Signature", Sign(sub.Secret, body))
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, latency, nil
}

// TestFire dispara una notificación de prueba sin registrarla en la pista de
// auditoría. Permite al operador validar URL, firma y cabeceras.
func (d *Dispatcher) TestFire(ctx context.Context, sub *models.WebhookSubscription) *models.WebhookTestResult {
	body, err := json.Marshal(payload{
		Event:     "webhook.test",
		Data:      nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		detail := err.Error()
		return &models.WebhookTestResult{Success: false, Error: &detail}
	}

	statusCode, latency, err := d.post(ctx, sub, "webhook.test", body)
	result := &models.WebhookTestResult{
		StatusCode:   statusCode,
		ResponseTime: latency.Seconds(),
		Success:      err == nil && statusCode >= 200 && statusCode < 300,
	}
	if err != nil {
		detail := err.Error()
		result.Error = &detail
	}
	return result
}
