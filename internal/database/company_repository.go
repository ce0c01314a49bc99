package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// CompanyRepository maneja las operaciones de base de datos para empresas
// emisoras y sus sucursales
type CompanyRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewCompanyRepository crea una nueva instancia del repositorio
func NewCompanyRepository(db *DB, logger *logrus.Logger) *CompanyRepository {
	return &CompanyRepository{
		db:     db,
		logger: logger,
	}
}

// Create registra una nueva empresa emisora
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (
			id, ruc, business_name, trade_name, address, ubigeo, email, phone,
			sol_user, sol_password, production, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		company.ID, company.RUC, company.BusinessName, company.TradeName,
		company.Address, company.Ubigeo, company.Email, company.Phone,
		company.SOLUser, company.SOLPassword, company.Production, company.IsActive,
		company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting company: %w", err)
	}

	return nil
}

// GetByID obtiene una empresa por ID
func (r *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	query := `
		SELECT id, ruc, business_name, trade_name, address, ubigeo, email, phone,
			   sol_user, sol_password, production, is_active, created_at, updated_at
		FROM companies
		WHERE id = $1 AND is_active = true
	`

	var company models.Company
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&company.ID, &company.RUC, &company.BusinessName, &company.TradeName,
		&company.Address, &company.Ubigeo, &company.Email, &company.Phone,
		&company.SOLUser, &company.SOLPassword, &company.Production, &company.IsActive,
		&company.CreatedAt, &company.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("company not found: %s", id)
		}
		return nil, fmt.Errorf("error querying company: %w", err)
	}

	return &company, nil
}

// GetByRUC obtiene una empresa por RUC
func (r *CompanyRepository) GetByRUC(ctx context.Context, ruc string) (*models.Company, error) {
	query := `SELECT id FROM companies WHERE ruc = $1 AND is_active = true`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, query, ruc).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying company by RUC: %w", err)
	}

	return r.GetByID(ctx, id)
}

// CreateBranch registra una sucursal de la empresa
func (r *CompanyRepository) CreateBranch(ctx context.Context, branch *models.Branch) error {
	query := `
		INSERT INTO branches (id, company_id, name, address, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		branch.ID, branch.CompanyID, branch.Name, branch.Address,
		branch.IsActive, branch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting branch: %w", err)
	}

	return nil
}

// ListBranches devuelve las sucursales activas de la empresa
func (r *CompanyRepository) ListBranches(ctx context.Context, companyID uuid.UUID) ([]models.Branch, error) {
	query := `
		SELECT id, company_id, name, address, is_active, created_at
		FROM branches
		WHERE company_id = $1 AND is_active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("error querying branches: %w", err)
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		var branch models.Branch
		if err := rows.Scan(
			&branch.ID, &branch.CompanyID, &branch.Name, &branch.Address,
			&branch.IsActive, &branch.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning branch: %w", err)
		}
		branches = append(branches, branch)
	}

	return branches, rows.Err()
}

// GetBranch obtiene una sucursal verificando que pertenezca a la empresa
func (r *CompanyRepository) GetBranch(ctx context.Context, companyID, branchID uuid.UUID) (*models.Branch, error) {
	query := `
		SELECT id, company_id, name, address, is_active, created_at
		FROM branches
		WHERE id = $1 AND company_id = $2 AND is_active = true
	`

	var branch models.Branch
	err := r.db.QueryRowContext(ctx, query, branchID, companyID).Scan(
		&branch.ID, &branch.CompanyID, &branch.Name, &branch.Address,
		&branch.IsActive, &branch.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("branch not found: %s", branchID)
		}
		return nil, fmt.Errorf("error querying branch: %w", err)
	}

	return &branch, nil
}
