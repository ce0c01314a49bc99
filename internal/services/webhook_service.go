package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/andes-labs/sunat-service/internal/webhook"
)

// validWebhookEvents son los tipos de evento admitidos en una suscripción
var validWebhookEvents = map[string]bool{
	models.EventDocumentAccepted:  true,
	models.EventDocumentRejected:  true,
	models.EventDocumentError:     true,
	models.EventDocumentCancelled: true,
}

// WebhookService maneja la lógica de negocio de suscripciones de webhook
type WebhookService struct {
	repo       *database.WebhookRepository
	dispatcher *webhook.Dispatcher
	cfg        config.WebhookConfig
	logger     *logrus.Logger
}

// NewWebhookService crea una nueva instancia del servicio
func NewWebhookService(repo *database.WebhookRepository, dispatcher *webhook.Dispatcher, cfg config.WebhookConfig, logger *logrus.Logger) *WebhookService {
	return &WebhookService{
		repo:       repo,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Create registra una nueva suscripción. El secret se genera en el servidor
// y solo se devuelve en esta respuesta.
func (s *WebhookService) Create(ctx context.Context, companyID uuid.UUID, req *models.CreateWebhookRequest) (*models.WebhookResponse, error) {
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, models.NewAPIError(models.NewValidationError(fmt.Sprintf("unsupported event: %s", event), nil))
		}
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("error generating webhook secret: %w", err)
	}

	now := time.Now()
	sub := &models.WebhookSubscription{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       req.Name,
		URL:        req.URL,
		Secret:     secret,
		Events:     req.Events,
		Headers:    req.Headers,
		Timeout:    s.cfg.DefaultTimeout,
		MaxRetries: s.cfg.DefaultMaxRetries,
		RetryDelay: s.cfg.DefaultRetryDelay,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Timeout > 0 {
		sub.Timeout = time.Duration(req.Timeout) * time.Second
	}
	if req.MaxRetries > 0 {
		sub.MaxRetries = req.MaxRetries
	}
	if req.RetryDelay > 0 {
		sub.RetryDelay = time.Duration(req.RetryDelay) * time.Second
	}
	if req.Active != nil {
		sub.IsActive = *req.Active
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("error creating webhook subscription: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"company_id":      companyID,
		"url":             sub.URL,
		"events":          sub.Events,
	}).Info("Webhook subscription created")

	resp := s.toResponse(sub)
	resp.Secret = secret
	return resp, nil
}

// Get obtiene una suscripción por ID
func (s *WebhookService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.WebhookResponse, error) {
	sub, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}
	return s.toResponse(sub), nil
}

// List obtiene todas las suscripciones de la empresa
func (s *WebhookService) List(ctx context.Context, companyID uuid.UUID) ([]models.WebhookResponse, error) {
	subs, err := s.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("error listing webhook subscriptions: %w", err)
	}

	out := make([]models.WebhookResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, *s.toResponse(sub))
	}
	return out, nil
}

// Update modifica una suscripción existente
func (s *WebhookService) Update(ctx context.Context, companyID, id uuid.UUID, req *models.UpdateWebhookRequest) (*models.WebhookResponse, error) {
	sub, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.URL != nil {
		sub.URL = *req.URL
	}
	if len(req.Events) > 0 {
		for _, event := range req.Events {
			if !validWebhookEvents[event] {
				return nil, models.NewAPIError(models.NewValidationError(fmt.Sprintf("unsupported event: %s", event), nil))
			}
		}
		sub.Events = req.Events
	}
	if req.Headers != nil {
		sub.Headers = req.Headers
	}
	if req.Timeout != nil {
		sub.Timeout = time.Duration(*req.Timeout) * time.Second
	}
	if req.MaxRetries != nil {
		sub.MaxRetries = *req.MaxRetries
	}
	if req.RetryDelay != nil {
		sub.RetryDelay = time.Duration(*req.RetryDelay) * time.Second
	}
	if req.Active != nil {
		sub.IsActive = *req.Active
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("error updating webhook subscription: %w", err)
	}

	return s.toResponse(sub), nil
}

// Delete elimina una suscripción
func (s *WebhookService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id": id,
		"company_id":      companyID,
	}).Info("Webhook subscription deleted")

	return nil
}

// Test dispara una notificación de prueba contra la suscripción
func (s *WebhookService) Test(ctx context.Context, companyID, id uuid.UUID) (*models.WebhookTestResult, error) {
	sub, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}
	return s.dispatcher.TestFire(ctx, sub), nil
}

// Deliveries obtiene el historial de entregas de una suscripción
func (s *WebhookService) Deliveries(ctx context.Context, companyID, id uuid.UUID, page, pageSize int) (*models.DeliveryListResponse, error) {
	if _, err := s.repo.GetByID(ctx, companyID, id); err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	records, total, err := s.repo.ListDeliveries(ctx, id, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("error listing webhook deliveries: %w", err)
	}

	return &models.DeliveryListResponse{
		Items:    records,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// Statistics calcula las estadísticas de entrega de una suscripción
func (s *WebhookService) Statistics(ctx context.Context, companyID, id uuid.UUID) (*models.WebhookStatistics, error) {
	if _, err := s.repo.GetByID(ctx, companyID, id); err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("webhook subscription not found"))
	}
	return s.repo.GetStatistics(ctx, id)
}

func (s *WebhookService) toResponse(sub *models.WebhookSubscription) *models.WebhookResponse {
	return &models.WebhookResponse{
		ID:         sub.ID,
		Name:       sub.Name,
		URL:        sub.URL,
		Events:     sub.Events,
		Timeout:    int(sub.Timeout.Seconds()),
		MaxRetries: sub.MaxRetries,
		RetryDelay: int(sub.RetryDelay.Seconds()),
		Active:     sub.IsActive,
		CreatedAt:  sub.CreatedAt,
	}
}

// generateWebhookSecret genera el secreto de firma de la suscripción
func generateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
