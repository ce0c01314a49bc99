package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// ClientRepository maneja las operaciones de base de datos para los
// receptores de documentos
type ClientRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewClientRepository crea una nueva instancia del repositorio
func NewClientRepository(db *DB, logger *logrus.Logger) *ClientRepository {
	return &ClientRepository{
		db:     db,
		logger: logger,
	}
}

// Create registra un nuevo cliente
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	query := `
		INSERT INTO clients (
			id, company_id, identity_type, identity_number, name, email, address,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID, client.CompanyID, client.IdentityType, client.IdentityNumber,
		client.Name, client.Email, client.Address, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting client: %w", err)
	}

	return nil
}

// GetByID obtiene un cliente verificando que pertenezca a la empresa
func (r *ClientRepository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*models.Client, error) {
	query := `
		SELECT id, company_id, identity_type, identity_number, name, email, address,
			   created_at, updated_at
		FROM clients
		WHERE id = $1 AND company_id = $2
	`

	var client models.Client
	err := r.db.QueryRowContext(ctx, query, id, companyID).Scan(
		&client.ID, &client.CompanyID, &client.IdentityType, &client.IdentityNumber,
		&client.Name, &client.Email, &client.Address, &client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client not found: %s", id)
		}
		return nil, fmt.Errorf("error querying client: %w", err)
	}

	return &client, nil
}

// GetByIdentity busca un cliente por tipo y número de documento de identidad
func (r *ClientRepository) GetByIdentity(ctx context.Context, companyID uuid.UUID, identityType, identityNumber string) (*models.Client, error) {
	query := `
		SELECT id, company_id, identity_type, identity_number, name, email, address,
			   created_at, updated_at
		FROM clients
		WHERE company_id = $1 AND identity_type = $2 AND identity_number = $3
	`

	var client models.Client
	err := r.db.QueryRowContext(ctx, query, companyID, identityType, identityNumber).Scan(
		&client.ID, &client.CompanyID, &client.IdentityType, &client.IdentityNumber,
		&client.Name, &client.Email, &client.Address, &client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying client by identity: %w", err)
	}

	return &client, nil
}
