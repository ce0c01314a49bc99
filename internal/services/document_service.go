package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/compliance"
	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/andes-labs/sunat-service/internal/tax"
)

// idempotencyTTL es la ventana durante la cual una clave de idempotencia
// apunta al documento original
const idempotencyTTL = 24 * time.Hour

// DocumentService maneja la lógica de negocio de documentos fiscales
type DocumentService struct {
	docRepo     *database.DocumentRepository
	companyRepo *database.CompanyRepository
	clientRepo  *database.ClientRepository
	attemptRepo *database.AttemptRepository
	redis       *database.Redis
	validator   *compliance.Validator
	bus         *events.Bus
	cfg         *config.Config
	logger      *logrus.Logger
}

// NewDocumentService crea una nueva instancia del servicio
func NewDocumentService(
	docRepo *database.DocumentRepository,
	companyRepo *database.CompanyRepository,
	clientRepo *database.ClientRepository,
	attemptRepo *database.AttemptRepository,
	redis *database.Redis,
	validator *compliance.Validator,
	bus *events.Bus,
	cfg *config.Config,
	logger *logrus.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:     docRepo,
		companyRepo: companyRepo,
		clientRepo:  clientRepo,
		attemptRepo: attemptRepo,
		redis:       redis,
		validator:   validator,
		bus:         bus,
		cfg:         cfg,
		logger:      logger,
	}
}

// Create emite un nuevo documento: valoriza las líneas, evalúa bancarización,
// reserva el correlativo y persiste todo en una transacción
func (s *DocumentService) Create(ctx context.Context, companyID uuid.UUID, req *models.CreateDocumentRequest, idempotencyKey string) (*models.DocumentResponse, error) {
	// Idempotencia: si la clave ya fue usada, devolver el documento original
	if idempotencyKey != "" {
		existing, err := s.lookupIdempotent(ctx, companyID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.WithFields(logrus.Fields{
				"company_id":      companyID,
				"idempotency_key": idempotencyKey,
				"document_id":     existing.ID,
			}).Info("Idempotent document creation, returning existing document")
			return s.toResponse(existing), nil
		}
	}

	branchID, err := uuid.Parse(req.BranchID)
	if err != nil {
		return nil, models.NewAPIError(models.NewValidationError("invalid branch_id", nil))
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		return nil, models.NewAPIError(models.NewValidationError("invalid client_id", nil))
	}

	if _, err := s.companyRepo.GetBranch(ctx, companyID, branchID); err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("branch not found"))
	}
	if _, err := s.clientRepo.GetByID(ctx, companyID, clientID); err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("client not found"))
	}

	operationType := req.OperationType
	if operationType == "" {
		operationType = models.OperationTypeDomestic
	}
	sendMethod := req.SendMethod
	if sendMethod == "" {
		sendMethod = models.SendMethodIndividual
		if req.DocumentType == models.DocumentTypeBoleta {
			sendMethod = models.SendMethodSummary
		}
	}

	items, totals, err := s.computeLines(req.Items, operationType)
	if err != nil {
		return nil, models.NewAPIError(models.NewValidationError(err.Error(), nil))
	}

	now := time.Now()
	doc := &models.Document{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		BranchID:           branchID,
		ClientID:           clientID,
		DocumentType:       req.DocumentType,
		Series:             req.Series,
		IssueDate:          now,
		Currency:           req.Currency,
		OperationType:      operationType,
		SendMethod:         sendMethod,
		Status:             models.SubmissionStatusPending,
		CancellationStatus: models.CancellationStatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tax.Apply(doc, items, totals)
	if err := s.applyCompliance(doc, req.PaymentMeans); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		doc.IdempotencyKey = &idempotencyKey
	}

	// Reservar correlativo y armar la numeración completa
	correlative, err := s.docRepo.GetNextCorrelative(ctx, companyID, req.Series, req.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("error reserving correlative: %w", err)
	}
	doc.Correlative = correlative
	doc.FullNumber = fmt.Sprintf("%s-%08d", req.Series, correlative)

	// Reservar la clave de idempotencia antes de persistir para cerrar la
	// carrera entre dos peticiones simultáneas con la misma clave
	if idempotencyKey != "" {
		reserved, err := s.redis.Reserve(ctx, s.idempotencyRedisKey(companyID, idempotencyKey), doc.ID.String(), idempotencyTTL)
		if err != nil {
			s.logger.Warnf("Redis idempotency reservation failed, falling back to database check: %v", err)
		} else if !reserved {
			existing, err := s.lookupIdempotent(ctx, companyID, idempotencyKey)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return s.toResponse(existing), nil
			}
		}
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		if idempotencyKey != "" {
			if relErr := s.redis.Release(ctx, s.idempotencyRedisKey(companyID, idempotencyKey)); relErr != nil {
				s.logger.Warnf("Could not release idempotency reservation: %v", relErr)
			}
		}
		return nil, fmt.Errorf("error creating document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":   doc.ID,
		"company_id":    companyID,
		"full_number":   doc.FullNumber,
		"document_type": doc.DocumentType,
		"total":         doc.Total.StringFixed(2),
	}).Info("Document created")

	return s.toResponse(doc), nil
}

// lookupIdempotent busca el documento original de una clave de idempotencia,
// primero en Redis y luego en la base de datos
func (s *DocumentService) lookupIdempotent(ctx context.Context, companyID uuid.UUID, key string) (*models.Document, error) {
	if cached, err := s.redis.Lookup(ctx, s.idempotencyRedisKey(companyID, key)); err == nil && cached != "" {
		if id, parseErr := uuid.Parse(cached); parseErr == nil {
			if doc, getErr := s.docRepo.GetByID(ctx, id); getErr == nil {
				return doc, nil
			}
		}
	}
	return s.docRepo.GetByIdempotencyKey(ctx, companyID, key)
}

func (s *DocumentService) idempotencyRedisKey(companyID uuid.UUID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", companyID, key)
}

// computeLines valoriza las líneas con el motor de cálculo
func (s *DocumentService) computeLines(reqItems []models.LineItemRequest, operationType string) ([]models.LineItem, tax.Totals, error) {
	inputs := make([]tax.LineInput, 0, len(reqItems))
	for _, it := range reqItems {
		affectation := it.AffectationCode
		if affectation == "" {
			affectation = models.AffectationTaxed
		}
		unitCode := it.UnitCode
		if unitCode == "" {
			unitCode = "NIU"
		}
		inputs = append(inputs, tax.LineInput{
			Description:     it.Description,
			UnitCode:        unitCode,
			Quantity:        it.Quantity,
			UnitValue:       it.UnitValue,
			AffectationCode: affectation,
			IGVPercent:      it.IGVPercent,
			BagQuantity:     it.BagQuantity,
		})
	}

	return tax.Compute(inputs, operationType, s.cfg.Compliance.ICBPERRate)
}

// applyCompliance evalúa bancarización y copia el veredicto al documento
func (s *DocumentService) applyCompliance(doc *models.Document, means *models.PaymentMeansRequest) error {
	var desc *compliance.Descriptor
	if means != nil {
		desc = &compliance.Descriptor{
			Code:            means.Code,
			OperationNumber: means.OperationNumber,
			Bank:            means.Bank,
			Notes:           means.Notes,
		}
		if means.PaymentDate != nil {
			parsed, err := time.Parse("2006-01-02", *means.PaymentDate)
			if err != nil {
				return models.NewAPIError(models.NewValidationError(
					fmt.Sprintf("invalid payment_date %q, expected YYYY-MM-DD", *means.PaymentDate), nil))
			}
			desc.PaymentDate = &parsed
		}
		doc.PaymentMeansCode = &means.Code
		doc.OperationNumber = means.OperationNumber
		doc.Bank = means.Bank
		doc.PaymentDate = desc.PaymentDate
		doc.ComplianceNotes = means.Notes
	}

	verdict := s.validator.Evaluate(doc.Total, doc.Currency, desc)
	doc.ComplianceApplies = verdict.Applies
	doc.ComplianceValidated = verdict.Validated
	if verdict.Applies {
		threshold := verdict.Threshold
		doc.ComplianceThreshold = &threshold
	}

	if verdict.Applies && verdict.Warning != "" {
		s.logger.WithFields(logrus.Fields{
			"full_number": doc.FullNumber,
			"currency":    doc.Currency,
			"total":       doc.Total.StringFixed(2),
			"warning":     verdict.Warning,
		}).Warn("Document subject to bancarización without valid payment means")
	}
	return nil
}

// storedDescriptor reconstruye el medio de pago declarado a partir de los
// campos persistidos del documento
func storedDescriptor(doc *models.Document) *compliance.Descriptor {
	if doc.PaymentMeansCode == nil {
		return nil
	}
	return &compliance.Descriptor{
		Code:            *doc.PaymentMeansCode,
		OperationNumber: doc.OperationNumber,
		Bank:            doc.Bank,
		PaymentDate:     doc.PaymentDate,
		Notes:           doc.ComplianceNotes,
	}
}

// Get obtiene un documento verificando que pertenezca a la empresa
func (s *DocumentService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.DocumentResponse, error) {
	doc, err := s.getOwned(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(doc), nil
}

func (s *DocumentService) getOwned(ctx context.Context, companyID, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("document not found"))
	}
	if doc.CompanyID != companyID {
		return nil, models.NewAPIError(models.NewNotFoundError("document not found"))
	}
	return doc, nil
}

// List busca documentos de la empresa con filtros y paginación
func (s *DocumentService) List(ctx context.Context, companyID uuid.UUID, filters database.DocumentFilters, page, pageSize int) (*models.DocumentListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	docs, total, err := s.docRepo.List(ctx, companyID, filters, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("error listing documents: %w", err)
	}

	items := make([]models.DocumentResponse, 0, len(docs))
	for i := range docs {
		items = append(items, *s.toResponse(&docs[i]))
	}

	return &models.DocumentListResponse{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// Update edita el contenido de un documento. La edición descarta cualquier
// respuesta previa de SUNAT y restablece el estado a PENDING.
func (s *DocumentService) Update(ctx context.Context, companyID, id uuid.UUID, req *models.UpdateDocumentRequest) (*models.DocumentResponse, error) {
	doc, err := s.getOwned(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if err := doc.ResetForEdit(); err != nil {
		return nil, err
	}

	operationType := req.OperationType
	if operationType == "" {
		operationType = doc.OperationType
	}

	items, totals, err := s.computeLines(req.Items, operationType)
	if err != nil {
		return nil, models.NewAPIError(models.NewValidationError(err.Error(), nil))
	}

	doc.Currency = req.Currency
	doc.OperationType = operationType
	tax.Apply(doc, items, totals)
	if err := s.applyCompliance(doc, req.PaymentMeans); err != nil {
		return nil, err
	}

	if err := s.docRepo.UpdateContent(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
	}).Info("Document content updated, submission state reset")

	return s.toResponse(doc), nil
}

// Void anula localmente un documento que aún no fue aceptado por SUNAT
func (s *DocumentService) Void(ctx context.Context, companyID, id uuid.UUID, reason string) (*models.DocumentResponse, error) {
	doc, err := s.getOwned(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if err := s.docRepo.MarkVoided(ctx, id, reason); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"reason":      reason,
	}).Info("Document voided locally")

	return s.Get(ctx, companyID, id)
}

// RequestCancellation inicia la anulación oficial de un documento aceptado
func (s *DocumentService) RequestCancellation(ctx context.Context, companyID, id uuid.UUID, reason string) (*models.DocumentResponse, error) {
	doc, err := s.getOwned(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if err := s.docRepo.RequestCancellation(ctx, id, reason); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"reason":      reason,
	}).Info("Document cancellation requested")

	return s.Get(ctx, companyID, id)
}

// ConfirmCancellation marca como anulado un documento cuya baja fue aceptada
// por SUNAT y notifica a los suscriptores
func (s *DocumentService) ConfirmCancellation(ctx context.Context, companyID, id uuid.UUID) (*models.DocumentResponse, error) {
	if _, err := s.getOwned(ctx, companyID, id); err != nil {
		return nil, err
	}

	if err := s.docRepo.ConfirmCancellation(ctx, id); err != nil {
		return nil, err
	}

	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error reloading cancelled document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
	}).Info("Document cancellation confirmed")
	s.bus.Publish(models.EventDocumentCancelled, doc)

	return s.toResponse(doc), nil
}

// ListAttempts obtiene el historial de intentos de envío de un documento
func (s *DocumentService) ListAttempts(ctx context.Context, companyID, id uuid.UUID) (*models.AttemptListResponse, error) {
	if _, err := s.getOwned(ctx, companyID, id); err != nil {
		return nil, err
	}

	attempts, err := s.attemptRepo.ListByDocumentID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error listing submission attempts: %w", err)
	}

	return &models.AttemptListResponse{
		Items: attempts,
		Total: len(attempts),
	}, nil
}

// toResponse arma la respuesta pública del documento
func (s *DocumentService) toResponse(doc *models.Document) *models.DocumentResponse {
	resp := &models.DocumentResponse{
		ID:                 doc.ID,
		DocumentType:       doc.DocumentType,
		FullNumber:         doc.FullNumber,
		Status:             doc.Status,
		CancellationStatus: doc.CancellationStatus,
		VoidedLocally:      doc.VoidedLocally,
		Currency:           doc.Currency,
		Totals:             doc.RoundedTotals(),
		AuthorityCode:      doc.AuthorityCode,
		AuthorityMessage:   doc.AuthorityMessage,
		CreatedAt:          doc.CreatedAt,
		Links: models.Links{
			Self:     fmt.Sprintf("%s/v1/documents/%s", s.cfg.Server.BaseURL, doc.ID),
			Attempts: fmt.Sprintf("%s/v1/documents/%s/attempts", s.cfg.Server.BaseURL, doc.ID),
		},
	}

	if doc.ComplianceApplies {
		info := &models.ComplianceInfo{
			Applies:   true,
			Validated: doc.ComplianceValidated,
		}
		if doc.ComplianceThreshold != nil {
			info.Threshold = doc.ComplianceThreshold.StringFixed(2)
		}
		if doc.ComplianceValidated {
			info.Legend = compliance.LegendText
		} else {
			info.Warning = s.validator.WarningMessage(doc.Currency)
			// El veredicto es puro: los errores enumerados del medio de
			// pago se recalculan desde los campos persistidos
			if desc := storedDescriptor(doc); desc != nil {
				info.Errors = s.validator.ValidateDescriptor(*desc)
			}
		}
		resp.Compliance = info
	}

	return resp
}
