package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType representa el tipo de documento fiscal
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeBoleta     DocumentType = "boleta"
	DocumentTypeCreditNote DocumentType = "credit_note"
	DocumentTypeDebitNote  DocumentType = "debit_note"
	DocumentTypeSaleNote   DocumentType = "sale_note"
)

// SubmissionStatus representa el estado de envío a SUNAT
type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "PENDING"
	SubmissionStatusQueued   SubmissionStatus = "QUEUED"
	SubmissionStatusSent     SubmissionStatus = "SENT"
	SubmissionStatusAccepted SubmissionStatus = "ACCEPTED"
	SubmissionStatusRejected SubmissionStatus = "REJECTED"
	SubmissionStatusError    SubmissionStatus = "ERROR"
)

// CancellationStatus representa el estado de anulación oficial ante SUNAT
type CancellationStatus string

const (
	CancellationStatusNone      CancellationStatus = "UNCANCELLED"
	CancellationStatusRequested CancellationStatus = "CANCELLATION_REQUESTED"
	CancellationStatusCancelled CancellationStatus = "CANCELLED"
)

// OperationType según catálogo 51 de SUNAT
const (
	OperationTypeDomestic = "0101"
	OperationTypeExport   = "0200"
)

// Códigos de afectación del IGV (catálogo 07)
const (
	AffectationTaxed      = "10"
	AffectationTaxedIVAP  = "17"
	AffectationExempt     = "20"
	AffectationUnaffected = "30"
	AffectationExport     = "40"
)

// SendMethod indica si el documento se envía individualmente o por resumen diario
type SendMethod string

const (
	SendMethodIndividual SendMethod = "individual"
	SendMethodSummary    SendMethod = "summary"
)

// Document representa un documento fiscal electrónico (factura, boleta, nota)
type Document struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	CompanyID      uuid.UUID  `json:"company_id" db:"company_id"`
	BranchID       uuid.UUID  `json:"branch_id" db:"branch_id"`
	ClientID       uuid.UUID  `json:"client_id" db:"client_id"`
	DailySummaryID *uuid.UUID `json:"daily_summary_id,omitempty" db:"daily_summary_id"`

	// Identificación del documento: serie y correlativo son inmutables una vez asignados
	DocumentType  DocumentType `json:"document_type" db:"document_type"`
	Series        string       `json:"series" db:"series"`
	Correlative   int64        `json:"correlative" db:"correlative"`
	FullNumber    string       `json:"full_number" db:"full_number"`
	IssueDate     time.Time    `json:"issue_date" db:"issue_date"`
	Currency      string       `json:"currency" db:"currency"`
	OperationType string       `json:"operation_type" db:"operation_type"`
	SendMethod    SendMethod   `json:"send_method" db:"send_method"`

	// Estados (ejes ortogonales: envío y anulación oficial)
	Status             SubmissionStatus   `json:"status" db:"status"`
	CancellationStatus CancellationStatus `json:"cancellation_status" db:"cancellation_status"`

	// Anulación local (previa al envío), independiente de la anulación oficial
	VoidedLocally bool       `json:"voided_locally" db:"voided_locally"`
	VoidReason    *string    `json:"void_reason,omitempty" db:"void_reason"`
	VoidedAt      *time.Time `json:"voided_at,omitempty" db:"voided_at"`

	// Anulación oficial
	CancellationReason      *string    `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancellationRequestedAt *time.Time `json:"cancellation_requested_at,omitempty" db:"cancellation_requested_at"`

	// Totales calculados
	TaxedOps      decimal.Decimal `json:"taxed_ops" db:"taxed_ops"`
	ExemptOps     decimal.Decimal `json:"exempt_ops" db:"exempt_ops"`
	UnaffectedOps decimal.Decimal `json:"unaffected_ops" db:"unaffected_ops"`
	ExportOps     decimal.Decimal `json:"export_ops" db:"export_ops"`
	FreeOps       decimal.Decimal `json:"free_ops" db:"free_ops"`
	IGV           decimal.Decimal `json:"igv" db:"igv"`
	ICBPER        decimal.Decimal `json:"icbper" db:"icbper"`
	TotalTaxes    decimal.Decimal `json:"total_taxes" db:"total_taxes"`
	Subtotal      decimal.Decimal `json:"subtotal" db:"subtotal"`
	Total         decimal.Decimal `json:"total" db:"total"`

	// Bancarización - Ley N° 28194
	ComplianceApplies   bool             `json:"compliance_applies" db:"compliance_applies"`
	ComplianceThreshold *decimal.Decimal `json:"compliance_threshold,omitempty" db:"compliance_threshold"`
	ComplianceValidated bool             `json:"compliance_validated" db:"compliance_validated"`
	PaymentMeansCode    *string          `json:"payment_means_code,omitempty" db:"payment_means_code"`
	OperationNumber     *string          `json:"operation_number,omitempty" db:"operation_number"`
	Bank                *string          `json:"bank,omitempty" db:"bank"`
	PaymentDate         *time.Time       `json:"payment_date,omitempty" db:"payment_date"`
	ComplianceNotes     *string          `json:"compliance_notes,omitempty" db:"compliance_notes"`

	// Respuesta de SUNAT
	AuthorityCode    *string `json:"authority_code,omitempty" db:"authority_code"`
	AuthorityMessage *string `json:"authority_message,omitempty" db:"authority_message"`
	AuthorityHash    *string `json:"authority_hash,omitempty" db:"authority_hash"`

	// Metadatos
	Retired        bool      `json:"-" db:"retired"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	// Relaciones (populadas en consultas)
	Items []LineItem `json:"items,omitempty"`
}

// LineItem representa una línea de un documento con sus montos derivados
type LineItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DocumentID  uuid.UUID `json:"document_id" db:"document_id"`
	LineNo      int       `json:"line_no" db:"line_no"`
	Description string    `json:"description" db:"description"`
	UnitCode    string    `json:"unit_code" db:"unit_code"`

	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitValue       decimal.Decimal `json:"unit_value" db:"unit_value"`
	AffectationCode string          `json:"affectation_code" db:"affectation_code"`
	IGVPercent      decimal.Decimal `json:"igv_percent" db:"igv_percent"`
	BagQuantity     int64           `json:"bag_quantity" db:"bag_quantity"`

	// Derivados por el motor de cálculo
	SaleValue      decimal.Decimal `json:"sale_value" db:"sale_value"`
	TaxBase        decimal.Decimal `json:"tax_base" db:"tax_base"`
	IGV            decimal.Decimal `json:"igv" db:"igv"`
	ICBPER         decimal.Decimal `json:"icbper" db:"icbper"`
	TotalTaxes     decimal.Decimal `json:"total_taxes" db:"total_taxes"`
	GrossUnitPrice decimal.Decimal `json:"gross_unit_price" db:"gross_unit_price"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateDocumentRequest representa el request para crear un documento
type CreateDocumentRequest struct {
	DocumentType  DocumentType         `json:"document_type" binding:"required,oneof=invoice boleta credit_note debit_note sale_note"`
	BranchID      string               `json:"branch_id" binding:"required,uuid"`
	ClientID      string               `json:"client_id" binding:"required,uuid"`
	Series        string               `json:"series" binding:"required"`
	Currency      string               `json:"currency" binding:"required,oneof=PEN USD"`
	OperationType string               `json:"operation_type,omitempty"`
	SendMethod    SendMethod           `json:"send_method,omitempty"`
	Items         []LineItemRequest    `json:"items" binding:"required,min=1,dive"`
	PaymentMeans  *PaymentMeansRequest `json:"payment_means,omitempty"`
}

// LineItemRequest representa el request para una línea del documento
type LineItemRequest struct {
	Description     string          `json:"description" binding:"required"`
	UnitCode        string          `json:"unit_code,omitempty"`
	Quantity        decimal.Decimal `json:"quantity" binding:"required"`
	UnitValue       decimal.Decimal `json:"unit_value" binding:"required"`
	AffectationCode string          `json:"affectation_code,omitempty"`
	IGVPercent      decimal.Decimal `json:"igv_percent"`
	BagQuantity     int64           `json:"bag_quantity,omitempty"`
}

// PaymentMeansRequest representa el medio de pago declarado para bancarización
type PaymentMeansRequest struct {
	Code            string  `json:"code" binding:"required"`
	OperationNumber *string `json:"operation_number,omitempty"`
	Bank            *string `json:"bank,omitempty"`
	PaymentDate     *string `json:"payment_date,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

// UpdateDocumentRequest representa la edición de contenido de un documento.
// Toda edición restablece el estado a PENDING: un documento modificado debe reenviarse.
type UpdateDocumentRequest struct {
	Currency      string               `json:"currency" binding:"required,oneof=PEN USD"`
	OperationType string               `json:"operation_type,omitempty"`
	Items         []LineItemRequest    `json:"items" binding:"required,min=1,dive"`
	PaymentMeans  *PaymentMeansRequest `json:"payment_means,omitempty"`
}

// VoidDocumentRequest representa la anulación local de un documento
type VoidDocumentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelDocumentRequest representa la solicitud de anulación oficial
type CancelDocumentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// DocumentResponse representa la respuesta al crear o consultar un documento
type DocumentResponse struct {
	ID                 uuid.UUID          `json:"id"`
	DocumentType       DocumentType       `json:"document_type"`
	FullNumber         string             `json:"full_number"`
	Status             SubmissionStatus   `json:"status"`
	CancellationStatus CancellationStatus `json:"cancellation_status"`
	VoidedLocally      bool               `json:"voided_locally"`
	Currency           string             `json:"currency"`
	Totals             DocumentTotals     `json:"totals"`
	Compliance         *ComplianceInfo    `json:"compliance,omitempty"`
	AuthorityCode      *string            `json:"authority_code,omitempty"`
	AuthorityMessage   *string            `json:"authority_message,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	Links              Links              `json:"links"`
}

// DocumentTotals representa los totales del documento redondeados a 2 decimales.
// El redondeo ocurre únicamente en esta frontera de presentación.
type DocumentTotals struct {
	TaxedOps      string `json:"taxed_ops"`
	ExemptOps     string `json:"exempt_ops"`
	UnaffectedOps string `json:"unaffected_ops"`
	ExportOps     string `json:"export_ops"`
	FreeOps       string `json:"free_ops"`
	IGV           string `json:"igv"`
	ICBPER        string `json:"icbper"`
	TotalTaxes    string `json:"total_taxes"`
	Subtotal      string `json:"subtotal"`
	Total         string `json:"total"`
}

// ComplianceInfo representa el veredicto de bancarización en la respuesta
type ComplianceInfo struct {
	Applies   bool     `json:"applies"`
	Threshold string   `json:"threshold,omitempty"`
	Validated bool     `json:"validated"`
	Warning   string   `json:"warning,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Legend    string   `json:"legend,omitempty"`
}

// Links representa los enlaces relacionados
type Links struct {
	Self     string `json:"self"`
	Attempts string `json:"attempts"`
}

// DocumentListResponse representa la respuesta paginada de documentos
type DocumentListResponse struct {
	Items    []DocumentResponse `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Total    int                `json:"total"`
}

// SubmitResponse representa la respuesta de un envío síncrono o encolado
type SubmitResponse struct {
	ID      uuid.UUID        `json:"id"`
	Status  SubmissionStatus `json:"status"`
	Message string           `json:"message"`
}

// RoundedTotals construye los totales de presentación con redondeo a 2 decimales
func (d *Document) RoundedTotals() DocumentTotals {
	return DocumentTotals{
		TaxedOps:      d.TaxedOps.StringFixed(2),
		ExemptOps:     d.ExemptOps.StringFixed(2),
		UnaffectedOps: d.UnaffectedOps.StringFixed(2),
		ExportOps:     d.ExportOps.StringFixed(2),
		FreeOps:       d.FreeOps.StringFixed(2),
		IGV:           d.IGV.StringFixed(2),
		ICBPER:        d.ICBPER.StringFixed(2),
		TotalTaxes:    d.TotalTaxes.StringFixed(2),
		Subtotal:      d.Subtotal.StringFixed(2),
		Total:         d.Total.StringFixed(2),
	}
}
