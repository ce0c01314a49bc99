package models

import (
	"time"

	"github.com/google/uuid"
)

// Company representa una empresa emisora de documentos fiscales
type Company struct {
	ID           uuid.UUID `json:"id" db:"id"`
	RUC          string    `json:"ruc" db:"ruc"`
	BusinessName string    `json:"business_name" db:"business_name"`
	TradeName    *string   `json:"trade_name,omitempty" db:"trade_name"`
	Address      *string   `json:"address,omitempty" db:"address"`
	Ubigeo       *string   `json:"ubigeo,omitempty" db:"ubigeo"`
	Email        string    `json:"email" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`

	// Credenciales SOL para el servicio de emisión electrónica
	SOLUser     string `json:"-" db:"sol_user"`
	SOLPassword string `json:"-" db:"sol_password"`
	Production  bool   `json:"production" db:"production"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Branch representa una sucursal o local anexo de la empresa
type Branch struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CompanyID uuid.UUID `json:"company_id" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Address   *string   `json:"address,omitempty" db:"address"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Client representa el receptor de un documento
type Client struct {
	ID             uuid.UUID `json:"id" db:"id"`
	CompanyID      uuid.UUID `json:"company_id" db:"company_id"`
	IdentityType   string    `json:"identity_type" db:"identity_type"` // 1=DNI, 6=RUC (catálogo 06)
	IdentityNumber string    `json:"identity_number" db:"identity_number"`
	Name           string    `json:"name" db:"name"`
	Email          *string   `json:"email,omitempty" db:"email"`
	Address        *string   `json:"address,omitempty" db:"address"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// APIKey representa una clave de API para integración
type APIKey struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	CompanyID  uuid.UUID  `json:"company_id" db:"company_id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"key_hash" db:"key_hash"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// CreateCompanyRequest representa el request para registrar una empresa
type CreateCompanyRequest struct {
	RUC          string  `json:"ruc" binding:"required,len=11"`
	BusinessName string  `json:"business_name" binding:"required"`
	TradeName    *string `json:"trade_name,omitempty"`
	Address      *string `json:"address,omitempty"`
	Ubigeo       *string `json:"ubigeo,omitempty"`
	Email        string  `json:"email" binding:"required,email"`
	Phone        *string `json:"phone,omitempty"`
	SOLUser      string  `json:"sol_user" binding:"required"`
	SOLPassword  string  `json:"sol_password" binding:"required"`
	Production   bool    `json:"production"`
}

// CreateClientRequest representa el request para registrar un cliente
type CreateClientRequest struct {
	IdentityType   string  `json:"identity_type" binding:"required,oneof=0 1 4 6 7"`
	IdentityNumber string  `json:"identity_number" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	Email          *string `json:"email,omitempty"`
	Address        *string `json:"address,omitempty"`
}

// CreateBranchRequest representa el request para registrar una sucursal
type CreateBranchRequest struct {
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address,omitempty"`
}

// CreateAPIKeyRequest representa el request para crear una API key
type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateAPIKeyResponse representa la respuesta al crear una API key.
// La clave en claro solo se devuelve una vez.
type CreateAPIKeyResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	APIKey string    `json:"api_key"`
}

// CompanyResponse representa la respuesta al registrar una empresa. La API
// key inicial en claro solo se devuelve en este momento.
type CompanyResponse struct {
	ID     uuid.UUID `json:"id"`
	APIKey string    `json:"api_key,omitempty"`
}

// BranchListResponse representa el listado de sucursales de la empresa
type BranchListResponse struct {
	Items []Branch `json:"items"`
	Total int      `json:"total"`
}

// ClientResponse representa la respuesta al registrar un cliente
type ClientResponse struct {
	ID uuid.UUID `json:"id"`
}
