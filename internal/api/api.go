package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/compliance"
	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/andes-labs/sunat-service/internal/services"
	"github.com/andes-labs/sunat-service/internal/worker"
)

// API maneja todos los endpoints del servicio
type API struct {
	documentService *services.DocumentService
	companyService  *services.CompanyService
	clientService   *services.ClientService
	webhookService  *services.WebhookService
	submitter       *worker.Submitter
	apiKeyRepo      *database.APIKeyRepository
	validator       *compliance.Validator
	logger          *logrus.Logger
}

// NewAPI crea una nueva instancia de la API
func NewAPI(
	documentService *services.DocumentService,
	companyService *services.CompanyService,
	clientService *services.ClientService,
	webhookService *services.WebhookService,
	submitter *worker.Submitter,
	apiKeyRepo *database.APIKeyRepository,
	validator *compliance.Validator,
	logger *logrus.Logger,
) *API {
	return &API{
		documentService: documentService,
		companyService:  companyService,
		clientService:   clientService,
		webhookService:  webhookService,
		submitter:       submitter,
		apiKeyRepo:      apiKeyRepo,
		validator:       validator,
		logger:          logger,
	}
}

// RegisterRoutes registra todas las rutas de la API
func (api *API) RegisterRoutes(router *gin.Engine) {
	// Onboarding: el registro de empresa devuelve la API key inicial
	router.POST("/v1/companies", api.CreateCompany)

	v1 := router.Group("/v1")
	v1.Use(api.AuthMiddleware())
	{
		v1.POST("/companies/:id/api-keys", api.CreateAPIKey)
		v1.DELETE("/api-keys/:id", api.DeactivateAPIKey)

		v1.POST("/branches", api.CreateBranch)
		v1.GET("/branches", api.ListBranches)

		v1.POST("/clients", api.CreateClient)
		v1.GET("/clients/:id", api.GetClient)

		v1.POST("/documents", api.CreateDocument)
		v1.GET("/documents", api.ListDocuments)
		v1.GET("/documents/:id", api.GetDocument)
		v1.PUT("/documents/:id", api.UpdateDocument)
		v1.POST("/documents/:id/send", api.SendDocument)
		v1.POST("/documents/:id/send-async", api.SendDocumentAsync)
		v1.POST("/documents/:id/void", api.VoidDocument)
		v1.POST("/documents/:id/cancel", api.CancelDocument)
		v1.POST("/documents/:id/cancel/confirm", api.ConfirmCancellation)
		v1.GET("/documents/:id/attempts", api.ListAttempts)

		v1.POST("/webhooks", api.CreateWebhook)
		v1.GET("/webhooks", api.ListWebhooks)
		v1.GET("/webhooks/:id", api.GetWebhook)
		v1.PUT("/webhooks/:id", api.UpdateWebhook)
		v1.DELETE("/webhooks/:id", api.DeleteWebhook)
		v1.POST("/webhooks/:id/test", api.TestWebhook)
		v1.GET("/webhooks/:id/deliveries", api.ListWebhookDeliveries)
		v1.GET("/webhooks/:id/statistics", api.GetWebhookStatistics)

		v1.GET("/compliance/payment-means", api.ListPaymentMeans)
	}
}

// AuthMiddleware valida la API key y resuelve la empresa del llamador
func (api *API) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, models.NewUnauthorizedError("API key required"))
			c.Abort()
			return
		}

		model, err := api.apiKeyRepo.GetByHash(c.Request.Context(), database.HashAPIKey(apiKey))
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.NewUnauthorizedError("Invalid API key"))
			c.Abort()
			return
		}

		if err := api.apiKeyRepo.UpdateLastUsed(c.Request.Context(), model.ID); err != nil {
			api.logger.Warnf("Error updating API key last used: %v", err)
		}

		c.Set("company_id", model.CompanyID)
		c.Next()
	}
}

// companyID obtiene la empresa autenticada del contexto
func (api *API) companyID(c *gin.Context) uuid.UUID {
	return c.MustGet("company_id").(uuid.UUID)
}

// handleError mapea errores de dominio a respuestas HTTP
func (api *API) handleError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrAlreadyAccepted),
		errors.Is(err, models.ErrInFlight),
		errors.Is(err, models.ErrDocumentVoided),
		errors.Is(err, models.ErrCancellationPending),
		errors.Is(err, models.ErrNotAccepted),
		errors.Is(err, models.ErrIllegalTransition):
		c.JSON(http.StatusConflict, models.NewConflictError(err.Error()))
		return
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		c.JSON(statusForCode(apiErr.ErrorResponse.Error.Code), apiErr.ErrorResponse)
		return
	}

	api.logger.WithError(err).Error(fallback)
	c.JSON(http.StatusInternalServerError, models.NewInternalError(fallback))
}

func statusForCode(code string) int {
	switch models.ErrorCode(code) {
	case models.ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case models.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case models.ErrorCodeForbidden:
		return http.StatusForbidden
	case models.ErrorCodeNotFound:
		return http.StatusNotFound
	case models.ErrorCodeConflict:
		return http.StatusConflict
	case models.ErrorCodeRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseID parsea el parámetro :id de la ruta
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid ID", []models.ErrorDetail{
			{Field: "id", Issue: "Must be a valid UUID"},
		}))
		return uuid.Nil, false
	}
	return id, true
}

// CreateCompany registra una nueva empresa emisora
func (api *API) CreateCompany(c *gin.Context) {
	var req models.CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.companyService.Create(c.Request.Context(), &req)
	if err != nil {
		api.handleError(c, err, "Error creating company")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// CreateAPIKey genera una nueva API key para la empresa autenticada
func (api *API) CreateAPIKey(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if id != api.companyID(c) {
		c.JSON(http.StatusForbidden, models.NewForbiddenError("API keys can only be issued for your own company"))
		return
	}

	var req models.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.companyService.CreateAPIKey(c.Request.Context(), id, &req)
	if err != nil {
		api.handleError(c, err, "Error creating API key")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// DeactivateAPIKey revoca una API key de la empresa autenticada
func (api *API) DeactivateAPIKey(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := api.companyService.DeactivateAPIKey(c.Request.Context(), api.companyID(c), id); err != nil {
		api.handleError(c, err, "Error deactivating API key")
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateBranch registra una sucursal de la empresa autenticada
func (api *API) CreateBranch(c *gin.Context) {
	var req models.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.companyService.CreateBranch(c.Request.Context(), api.companyID(c), &req)
	if err != nil {
		api.handleError(c, err, "Error creating branch")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListBranches obtiene las sucursales de la empresa autenticada
func (api *API) ListBranches(c *gin.Context) {
	response, err := api.companyService.ListBranches(c.Request.Context(), api.companyID(c))
	if err != nil {
		api.handleError(c, err, "Error listing branches")
		return
	}

	c.JSON(http.StatusOK, response)
}

// CreateClient registra un cliente receptor
func (api *API) CreateClient(c *gin.Context) {
	var req models.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.clientService.Create(c.Request.Context(), api.companyID(c), &req)
	if err != nil {
		api.handleError(c, err, "Error creating client")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetClient obtiene un cliente por ID
func (api *API) GetClient(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	client, err := api.clientService.Get(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error retrieving client")
		return
	}

	c.JSON(http.StatusOK, client)
}

// CreateDocument emite un nuevo documento fiscal
func (api *API) CreateDocument(c *gin.Context) {
	var req models.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.logger.WithError(err).Error("Error binding create document request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")

	response, err := api.documentService.Create(c.Request.Context(), api.companyID(c), &req, idempotencyKey)
	if err != nil {
		api.handleError(c, err, "Error creating document")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// GetDocument obtiene un documento por ID
func (api *API) GetDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	response, err := api.documentService.Get(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error retrieving document")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListDocuments busca documentos con filtros y paginación
func (api *API) ListDocuments(c *gin.Context) {
	var filters database.DocumentFilters

	if status := c.Query("status"); status != "" {
		s := models.SubmissionStatus(status)
		filters.Status = &s
	}
	if docType := c.Query("document_type"); docType != "" {
		t := models.DocumentType(docType)
		filters.DocumentType = &t
	}
	if series := c.Query("series"); series != "" {
		filters.Series = &series
	}
	if from := c.Query("date_from"); from != "" {
		if parsed, err := time.Parse("2006-01-02", from); err == nil {
			filters.DateFrom = &parsed
		}
	}
	if to := c.Query("date_to"); to != "" {
		if parsed, err := time.Parse("2006-01-02", to); err == nil {
			filters.DateTo = &parsed
		}
	}

	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)

	response, err := api.documentService.List(c.Request.Context(), api.companyID(c), filters, page, pageSize)
	if err != nil {
		api.handleError(c, err, "Error listing documents")
		return
	}

	c.JSON(http.StatusOK, response)
}

// UpdateDocument edita el contenido de un documento no aceptado
func (api *API) UpdateDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.documentService.Update(c.Request.Context(), api.companyID(c), id, &req)
	if err != nil {
		api.handleError(c, err, "Error updating document")
		return
	}

	c.JSON(http.StatusOK, response)
}

// SendDocument envía el documento a SUNAT de forma síncrona
func (api *API) SendDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if _, err := api.documentService.Get(c.Request.Context(), api.companyID(c), id); err != nil {
		api.handleError(c, err, "Error loading document")
		return
	}

	if err := api.submitter.Submit(c.Request.Context(), id); err != nil {
		api.handleError(c, err, "Error submitting document")
		return
	}

	response, err := api.documentService.Get(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error retrieving document")
		return
	}

	if response.Status == models.SubmissionStatusRejected {
		message := "Document rejected by SUNAT"
		if response.AuthorityMessage != nil {
			message = *response.AuthorityMessage
		}
		c.JSON(http.StatusUnprocessableEntity, models.NewRejectedError(message))
		return
	}
	c.JSON(http.StatusOK, response)
}

// SendDocumentAsync encola el documento para envío asíncrono
func (api *API) SendDocumentAsync(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if _, err := api.documentService.Get(c.Request.Context(), api.companyID(c), id); err != nil {
		api.handleError(c, err, "Error loading document")
		return
	}

	if err := api.submitter.Enqueue(c.Request.Context(), id); err != nil {
		api.handleError(c, err, "Error enqueueing document")
		return
	}

	c.JSON(http.StatusAccepted, models.SubmitResponse{
		ID:      id,
		Status:  models.SubmissionStatusQueued,
		Message: "Document queued for submission",
	})
}

// VoidDocument anula localmente un documento
func (api *API) VoidDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.VoidDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.documentService.Void(c.Request.Context(), api.companyID(c), id, req.Reason)
	if err != nil {
		api.handleError(c, err, "Error voiding document")
		return
	}

	c.JSON(http.StatusOK, response)
}

// CancelDocument solicita la anulación oficial de un documento aceptado
func (api *API) CancelDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.CancelDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.documentService.RequestCancellation(c.Request.Context(), api.companyID(c), id, req.Reason)
	if err != nil {
		api.handleError(c, err, "Error requesting cancellation")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ConfirmCancellation confirma la anulación cuando SUNAT acepta la baja
func (api *API) ConfirmCancellation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	response, err := api.documentService.ConfirmCancellation(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error confirming cancellation")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListAttempts obtiene el historial de intentos de envío de un documento
func (api *API) ListAttempts(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	response, err := api.documentService.ListAttempts(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error listing attempts")
		return
	}

	c.JSON(http.StatusOK, response)
}

// CreateWebhook registra una suscripción de webhook
func (api *API) CreateWebhook(c *gin.Context) {
	var req models.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.webhookService.Create(c.Request.Context(), api.companyID(c), &req)
	if err != nil {
		api.handleError(c, err, "Error creating webhook")
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ListWebhooks obtiene las suscripciones de la empresa
func (api *API) ListWebhooks(c *gin.Context) {
	response, err := api.webhookService.List(c.Request.Context(), api.companyID(c))
	if err != nil {
		api.handleError(c, err, "Error listing webhooks")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetWebhook obtiene una suscripción por ID
func (api *API) GetWebhook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	response, err := api.webhookService.Get(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error retrieving webhook")
		return
	}

	c.JSON(http.StatusOK, response)
}

// UpdateWebhook modifica una suscripción
func (api *API) UpdateWebhook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	response, err := api.webhookService.Update(c.Request.Context(), api.companyID(c), id, &req)
	if err != nil {
		api.handleError(c, err, "Error updating webhook")
		return
	}

	c.JSON(http.StatusOK, response)
}

// DeleteWebhook elimina una suscripción
func (api *API) DeleteWebhook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := api.webhookService.Delete(c.Request.Context(), api.companyID(c), id); err != nil {
		api.handleError(c, err, "Error deleting webhook")
		return
	}

	c.Status(http.StatusNoContent)
}

// TestWebhook dispara una notificación de prueba
func (api *API) TestWebhook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := api.webhookService.Test(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error testing webhook")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListWebhookDeliveries obtiene el historial de entregas
func (api *API) ListWebhookDeliveries(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)

	response, err := api.webhookService.Deliveries(c.Request.Context(), api.companyID(c), id, page, pageSize)
	if err != nil {
		api.handleError(c, err, "Error listing webhook deliveries")
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetWebhookStatistics obtiene las estadísticas de entrega
func (api *API) GetWebhookStatistics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	response, err := api.webhookService.Statistics(c.Request.Context(), api.companyID(c), id)
	if err != nil {
		api.handleError(c, err, "Error retrieving webhook statistics")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListPaymentMeans devuelve el catálogo de medios de pago para bancarización
func (api *API) ListPaymentMeans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": api.validator.Means()})
}

// intQuery parsea un parámetro entero de query string
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
