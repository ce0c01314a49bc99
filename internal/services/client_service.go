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

// ClientService maneja la lógica de negocio de los receptores de documentos
type ClientService struct {
	clientRepo *database.ClientRepository
	logger     *logrus.Logger
}

// NewClientService crea una nueva instancia del servicio
func NewClientService(clientRepo *database.ClientRepository, logger *logrus.Logger) *ClientService {
	return &ClientService{
		clientRepo: clientRepo,
		logger:     logger,
	}
}

// Create registra un cliente; si ya existe uno con el mismo documento de
// identidad, devuelve el existente
func (s *ClientService) Create(ctx context.Context, companyID uuid.UUID, req *models.CreateClientRequest) (*models.ClientResponse, error) {
	existing, err := s.clientRepo.GetByIdentity(ctx, companyID, req.IdentityType, req.IdentityNumber)
	if err != nil {
		return nil, fmt.Errorf("error checking existing client: %w", err)
	}
	if existing != nil {
		return &models.ClientResponse{ID: existing.ID}, nil
	}

	now := time.Now()
	client := &models.Client{
		ID:             uuid.New(),
		CompanyID:      companyID,
		IdentityType:   req.IdentityType,
		IdentityNumber: req.IdentityNumber,
		Name:           req.Name,
		Email:          req.Email,
		Address:        req.Address,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("error creating client: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"client_id":       client.ID,
		"company_id":      companyID,
		"identity_number": client.IdentityNumber,
	}).Info("Client registered")

	return &models.ClientResponse{ID: client.ID}, nil
}

// Get obtiene un cliente por ID
func (s *ClientService) Get(ctx context.Context, companyID, id uuid.UUID) (*models.Client, error) {
	client, err := s.clientRepo.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, models.NewAPIError(models.NewNotFoundError("client not found"))
	}
	return client, nil
}
