package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/models"
)

// CompanyService maneja la lógica de negocio de empresas emisoras
type CompanyService struct {
	companyRepo *database.CompanyRepository
	apiKeyRepo  *database.APIKeyRepository
	logger      *logrus.Logger
}

// NewCompanyService crea una nueva instancia del servicio
func NewCompanyService(companyRepo *database.CompanyRepository, apiKeyRepo *database.APIKeyRepository, logger *logrus.Logger) *CompanyService {
	return &CompanyService{
		companyRepo: companyRepo,
		apiKeyRepo:  apiKeyRepo,
		logger:      logger,
	}
}

// Create registra una nueva empresa emisora
func (s *CompanyService) Create(ctx context.Context, req *models.CreateCompanyRequest) (*models.CompanyResponse, error) {
	existing, err := s.companyRepo.GetByRUC(ctx, req.RUC)
	if err != nil {
		return nil, fmt.Errorf("error checking existing company: %w", err)
	}
	if existing != nil {
		return nil, models.NewAPIError(models.NewConflictError("a company with this RUC already exists"))
	}

	now := time.Now()
	company := &models.Company{
		ID:           uuid.New(),
		RUC:          req.RUC,
		BusinessName: req.BusinessName,
		TradeName:    req.TradeName,
		Address:      req.Address,
		Ubigeo:       req.Ubigeo,
		Email:        req.Email,
		Phone:        req.Phone,
		SOLUser:      req.SOLUser,
		SOLPassword:  req.SOLPassword,
		Production:   req.Production,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.companyRepo.Create(ctx, company); err != nil {
		return nil, fmt.Errorf("error creating company: %w", err)
	}

	// La clave inicial se entrega una sola vez en el registro: sin ella la
	// empresa no podría llamar a ningún endpoint autenticado
	_, apiKey, err := s.apiKeyRepo.Create(ctx, company.ID, "default")
	if err != nil {
		return nil, fmt.Errorf("error creating initial API key: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"company_id":    company.ID,
		"ruc":           company.RUC,
		"business_name": company.BusinessName,
	}).Info("Company registered")

	return &models.CompanyResponse{ID: company.ID, APIKey: apiKey}, nil
}

// Get obtiene una empresa por ID
func (s *CompanyService) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	company, err := s.companyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("company not found"))
	}
	return company, nil
}

// CreateBranch registra una sucursal de la empresa
func (s *CompanyService) CreateBranch(ctx context.Context, companyID uuid.UUID, req *models.CreateBranchRequest) (*models.Branch, error) {
	branch := &models.Branch{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      req.Name,
		Address:   req.Address,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := s.companyRepo.CreateBranch(ctx, branch); err != nil {
		return nil, fmt.Errorf("error creating branch: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"branch_id":  branch.ID,
		"name":       branch.Name,
	}).Info("Branch created")

	return branch, nil
}

// ListBranches devuelve las sucursales activas de la empresa
func (s *CompanyService) ListBranches(ctx context.Context, companyID uuid.UUID) (*models.BranchListResponse, error) {
	branches, err := s.companyRepo.ListBranches(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("error listing branches: %w", err)
	}

	return &models.BranchListResponse{
		Items: branches,
		Total: len(branches),
	}, nil
}

// CreateAPIKey genera una nueva API key para la empresa
func (s *CompanyService) CreateAPIKey(ctx context.Context, companyID uuid.UUID, req *models.CreateAPIKeyRequest) (*models.CreateAPIKeyResponse, error) {
	model, apiKey, err := s.apiKeyRepo.Create(ctx, companyID, req.Name)
	if err != nil {
		return nil, fmt.Errorf("error creating API key: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"key_id":     model.ID,
		"name":       model.Name,
	}).Info("API key created")

	return &models.CreateAPIKeyResponse{
		ID:     model.ID,
		Name:   model.Name,
		APIKey: apiKey,
	}, nil
}

// DeactivateAPIKey revoca una API key de la empresa
func (s *CompanyService) DeactivateAPIKey(ctx context.Context, companyID, id uuid.UUID) error {
	if err := s.apiKeyRepo.Deactivate(ctx, companyID, id); err != nil {
		return models.NewAPIError(models.NewNotFoundError("API key not found"))
	}

	s.logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"key_id":     id,
	}).Info("API key deactivated")

	return nil
}
