package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// documentColumns son las columnas que se leen en toda consulta de documentos
const documentColumns = `
	id, company_id, branch_id, client_id, daily_summary_id,
	document_type, series, correlative, full_number, issue_date, currency, operation_type, send_method,
	status, cancellation_status,
	voided_locally, void_reason, voided_at,
	cancellation_reason, cancellation_requested_at,
	taxed_ops, exempt_ops, unaffected_ops, export_ops, free_ops,
	igv, icbper, total_taxes, subtotal, total,
	compliance_applies, compliance_threshold, compliance_validated,
	payment_means_code, operation_number, bank, payment_date, compliance_notes,
	authority_code, authority_message, authority_hash,
	retired, idempotency_key, created_at, updated_at`

// DocumentRepository maneja las operaciones de base de datos para documentos
type DocumentRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewDocumentRepository crea una nueva instancia del repositorio
func NewDocumentRepository(db *DB, logger *logrus.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create crea un nuevo documento con sus líneas
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		query := `
			INSERT INTO documents (
				id, company_id, branch_id, client_id,
				document_type, series, correlative, full_number, issue_date, currency, operation_type, send_method,
				status, cancellation_status,
				taxed_ops, exempt_ops, unaffected_ops, export_ops, free_ops,
				igv, icbper, total_taxes, subtotal, total,
				compliance_applies, compliance_threshold, compliance_validated,
				payment_means_code, operation_number, bank, payment_date, compliance_notes,
				idempotency_key, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
				$29, $30, $31, $32, $33, $34, $35
			)
		`

		_, err := tx.ExecContext(ctx, query,
			doc.ID, doc.CompanyID, doc.BranchID, doc.ClientID,
			doc.DocumentType, doc.Series, doc.Correlative, doc.FullNumber, doc.IssueDate, doc.Currency, doc.OperationType, doc.SendMethod,
			doc.Status, doc.CancellationStatus,
			doc.TaxedOps, doc.ExemptOps, doc.UnaffectedOps, doc.ExportOps, doc.FreeOps,
			doc.IGV, doc.ICBPER, doc.TotalTaxes, doc.Subtotal, doc.Total,
			doc.ComplianceApplies, doc.ComplianceThreshold, doc.ComplianceValidated,
			doc.PaymentMeansCode, doc.OperationNumber, doc.Bank, doc.PaymentDate, doc.ComplianceNotes,
			doc.IdempotencyKey, doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("error inserting document: %w", err)
		}

		return r.insertItems(ctx, tx, doc.ID, doc.Items)
	})
}

func (r *DocumentRepository) insertItems(ctx context.Context, tx *sql.Tx, docID uuid.UUID, items []models.LineItem) error {
	query := `
		INSERT INTO document_items (
			id, document_id, line_no, description, unit_code,
			quantity, unit_value, affectation_code, igv_percent, bag_quantity,
			sale_value, tax_base, igv, icbper, total_taxes, gross_unit_price, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	for _, item := range items {
		_, err := tx.ExecContext(ctx, query,
			item.ID, docID, item.LineNo, item.Description, item.UnitCode,
			item.Quantity, item.UnitValue, item.AffectationCode, item.IGVPercent, item.BagQuantity,
			item.SaleValue, item.TaxBase, item.IGV, item.ICBPER, item.TotalTaxes, item.GrossUnitPrice, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("error inserting document item: %w", err)
		}
	}
	return nil
}

// GetByID obtiene un documento por ID con sus líneas
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 AND retired = false`, documentColumns)

	doc, err := r.scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document not found: %s", id)
		}
		return nil, fmt.Errorf("error querying document: %w", err)
	}

	items, err := r.GetItemsByDocumentID(ctx, id)
	if err != nil {
		r.logger.Warnf("Error getting items for document %s: %v", id, err)
	}
	doc.Items = items

	return doc, nil
}

// GetByIdempotencyKey obtiene un documento por clave de idempotencia
func (r *DocumentRepository) GetByIdempotencyKey(ctx context.Context, companyID uuid.UUID, key string) (*models.Document, error) {
	query := `SELECT id FROM documents WHERE company_id = $1 AND idempotency_key = $2 AND retired = false`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, query, companyID, key).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying document by idempotency key: %w", err)
	}

	return r.GetByID(ctx, id)
}

// GetItemsByDocumentID obtiene las líneas de un documento
func (r *DocumentRepository) GetItemsByDocumentID(ctx context.Context, docID uuid.UUID) ([]models.LineItem, error) {
	query := `
		SELECT id, document_id, line_no, description, unit_code,
			   quantity, unit_value, affectation_code, igv_percent, bag_quantity,
			   sale_value, tax_base, igv, icbper, total_taxes, gross_unit_price, created_at
		FROM document_items
		WHERE document_id = $1
		ORDER BY line_no
	`

	rows, err := r.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("error querying document items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		err := rows.Scan(
			&item.ID, &item.DocumentID, &item.LineNo, &item.Description, &item.UnitCode,
			&item.Quantity, &item.UnitValue, &item.AffectationCode, &item.IGVPercent, &item.BagQuantity,
			&item.SaleValue, &item.TaxBase, &item.IGV, &item.ICBPER, &item.TotalTaxes, &item.GrossUnitPrice, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning document item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// TransitionStatus aplica un compare-and-set sobre el eje de envío: la fila
// solo se actualiza si el estado actual está en `from` y el documento no fue
// anulado. Una actualización de cero filas se clasifica releyendo el estado
// para devolver el error de conflicto preciso.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SubmissionStatus, to models.SubmissionStatus) error {
	placeholders := make([]string, len(from))
	args := []interface{}{to, time.Now(), id}
	for i, s := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, s)
	}

	query := fmt.Sprintf(`
		UPDATE documents
		SET status = $1, updated_at = $2
		WHERE id = $3
		  AND status IN (%s)
		  AND voided_locally = false
		  AND cancellation_status = 'UNCANCELLED'
		  AND retired = false
	`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating document status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Clasificar el conflicto
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := doc.CheckSubmittable(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, doc.Status, to)
}

// ListInFlight devuelve los IDs de documentos que quedaron QUEUED o SENT sin
// actividad desde updatedBefore. La cola de trabajo vive en memoria: tras un
// reinicio del proceso estos documentos solo se recuperan por este barrido.
func (r *DocumentRepository) ListInFlight(ctx context.Context, updatedBefore time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM documents
		WHERE status IN ($1, $2)
		  AND updated_at < $3
		  AND voided_locally = false
		  AND cancellation_status = 'UNCANCELLED'
		  AND retired = false
		ORDER BY updated_at
	`

	rows, err := r.db.QueryContext(ctx, query, models.SubmissionStatusQueued, models.SubmissionStatusSent, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("error listing in-flight documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning in-flight document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAuthorityResponse persiste el resultado definitivo de SUNAT junto con el
// estado final del envío
func (r *DocumentRepository) SetAuthorityResponse(ctx context.Context, id uuid.UUID, status models.SubmissionStatus, code, message, hash *string) error {
	query := `
		UPDATE documents
		SET status = $1, authority_code = $2, authority_message = $3, authority_hash = $4, updated_at = $5
		WHERE id = $6 AND retired = false
	`

	result, err := r.db.ExecContext(ctx, query, status, code, message, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("error updating authority response: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("document not found: %s", id)
	}

	return nil
}

// UpdateContent reemplaza el contenido editable del documento y sus líneas,
// descartando la respuesta previa de SUNAT. El documento ya debió pasar por
// ResetForEdit en el dominio.
func (r *DocumentRepository) UpdateContent(ctx context.Context, doc *models.Document) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		query := `
			UPDATE documents
			SET client_id = $1, issue_date = $2, currency = $3, operation_type = $4,
				status = $5,
				taxed_ops = $6, exempt_ops = $7, unaffected_ops = $8, export_ops = $9, free_ops = $10,
				igv = $11, icbper = $12, total_taxes = $13, subtotal = $14, total = $15,
				compliance_applies = $16, compliance_threshold = $17, compliance_validated = $18,
				payment_means_code = $19, operation_number = $20, bank = $21, payment_date = $22, compliance_notes = $23,
				authority_code = NULL, authority_message = NULL, authority_hash = NULL,
				updated_at = $24
			WHERE id = $25
			  AND status NOT IN ('QUEUED', 'SENT')
			  AND voided_locally = false
			  AND cancellation_status = 'UNCANCELLED'
			  AND retired = false
		`

		result, err := tx.ExecContext(ctx, query,
			doc.ClientID, doc.IssueDate, doc.Currency, doc.OperationType,
			models.SubmissionStatusPending,
			doc.TaxedOps, doc.ExemptOps, doc.UnaffectedOps, doc.ExportOps, doc.FreeOps,
			doc.IGV, doc.ICBPER, doc.TotalTaxes, doc.Subtotal, doc.Total,
			doc.ComplianceApplies, doc.ComplianceThreshold, doc.ComplianceValidated,
			doc.PaymentMeansCode, doc.OperationNumber, doc.Bank, doc.PaymentDate, doc.ComplianceNotes,
			time.Now(), doc.ID,
		)
		if err != nil {
			return fmt.Errorf("error updating document content: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("error getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return models.ErrInFlight
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM document_items WHERE document_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("error deleting document items: %w", err)
		}

		return r.insertItems(ctx, tx, doc.ID, doc.Items)
	})
}

// MarkVoided marca el documento como anulado localmente. La puerta en SQL
// replica las reglas del dominio para cerrar la carrera con el worker.
func (r *DocumentRepository) MarkVoided(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE documents
		SET voided_locally = true, void_reason = $1, voided_at = $2, updated_at = $2
		WHERE id = $3
		  AND voided_locally = false
		  AND status NOT IN ('QUEUED', 'SENT')
		  AND retired = false
	`

	result, err := r.db.ExecContext(ctx, query, reason, time.Now(), id)
	if err != nil {
		return fmt.Errorf("error voiding document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.VoidedLocally {
		return fmt.Errorf("%w: %s", models.ErrDocumentVoided, doc.FullNumber)
	}
	return fmt.Errorf("%w: %s is %s", models.ErrInFlight, doc.FullNumber, doc.Status)
}

// RequestCancellation inicia la anulación oficial de un documento aceptado
func (r *DocumentRepository) RequestCancellation(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE documents
		SET cancellation_status = $1, cancellation_reason = $2, cancellation_requested_at = $3, updated_at = $3
		WHERE id = $4
		  AND status = 'ACCEPTED'
		  AND cancellation_status = 'UNCANCELLED'
		  AND voided_locally = false
		  AND retired = false
	`

	result, err := r.db.ExecContext(ctx, query, models.CancellationStatusRequested, reason, time.Now(), id)
	if err != nil {
		return fmt.Errorf("error requesting cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	// Reaplicar la regla de dominio para producir el error preciso
	return doc.RequestCancellation(reason)
}

// ConfirmCancellation confirma la anulación oficial tras la aceptación del
// resumen diario
func (r *DocumentRepository) ConfirmCancellation(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE documents
		SET cancellation_status = $1, updated_at = $2
		WHERE id = $3 AND cancellation_status = $4 AND retired = false
	`

	result, err := r.db.ExecContext(ctx, query, models.CancellationStatusCancelled, time.Now(), id, models.CancellationStatusRequested)
	if err != nil {
		return fmt.Errorf("error confirming cancellation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: cancellation was not requested for %s", models.ErrIllegalTransition, id)
	}

	return nil
}

// GetNextCorrelative reserva el siguiente correlativo de la serie de forma
// atómica
func (r *DocumentRepository) GetNextCorrelative(ctx context.Context, companyID uuid.UUID, series string, docType models.DocumentType) (int64, error) {
	query := `
		INSERT INTO document_series (company_id, series, document_type, last_correlative)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, series, document_type)
		DO UPDATE SET last_correlative = document_series.last_correlative + 1
		RETURNING last_correlative
	`

	var next int64
	if err := r.db.QueryRowContext(ctx, query, companyID, series, docType).Scan(&next); err != nil {
		return 0, fmt.Errorf("error getting next correlative: %w", err)
	}

	return next, nil
}

// DocumentFilters define los filtros de búsqueda de documentos
type DocumentFilters struct {
	Status       *models.SubmissionStatus
	DocumentType *models.DocumentType
	Series       *string
	DateFrom     *time.Time
	DateTo       *time.Time
}

// List busca documentos de una empresa con filtros y paginación
func (r *DocumentRepository) List(ctx context.Context, companyID uuid.UUID, filters DocumentFilters, page, pageSize int) ([]models.Document, int, error) {
	whereClauses := []string{"company_id = $1", "retired = false"}
	args := []interface{}{companyID}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		whereClauses = append(whereClauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.DocumentType != nil {
		args = append(args, *filters.DocumentType)
		whereClauses = append(whereClauses, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if filters.Series != nil {
		args = append(args, *filters.Series)
		whereClauses = append(whereClauses, fmt.Sprintf("series = $%d", len(args)))
	}
	if filters.DateFrom != nil {
		args = append(args, *filters.DateFrom)
		whereClauses = append(whereClauses, fmt.Sprintf("issue_date >= $%d", len(args)))
	}
	if filters.DateTo != nil {
		args = append(args, *filters.DateTo)
		whereClauses = append(whereClauses, fmt.Sprintf("issue_date <= $%d", len(args)))
	}

	whereClause := strings.Join(whereClauses, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM documents WHERE %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting documents: %w", err)
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, documentColumns, whereClause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("error scanning document: %w", err)
		}
		docs = append(docs, *doc)
	}

	return docs, total, rows.Err()
}

// scanner abstrae sql.Row y sql.Rows para compartir el escaneo
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *DocumentRepository) scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID, &doc.CompanyID, &doc.BranchID, &doc.ClientID, &doc.DailySummaryID,
		&doc.DocumentType, &doc.Series, &doc.Correlative, &doc.FullNumber, &doc.IssueDate, &doc.Currency, &doc.OperationType, &doc.SendMethod,
		&doc.Status, &doc.CancellationStatus,
		&doc.VoidedLocally, &doc.VoidReason, &doc.VoidedAt,
		&doc.CancellationReason, &doc.CancellationRequestedAt,
		&doc.TaxedOps, &doc.ExemptOps, &doc.UnaffectedOps, &doc.ExportOps, &doc.FreeOps,
		&doc.IGV, &doc.ICBPER, &doc.TotalTaxes, &doc.Subtotal, &doc.Total,
		&doc.ComplianceApplies, &doc.ComplianceThreshold, &doc.ComplianceValidated,
		&doc.PaymentMeansCode, &doc.OperationNumber, &doc.Bank, &doc.PaymentDate, &doc.ComplianceNotes,
		&doc.AuthorityCode, &doc.AuthorityMessage, &doc.AuthorityHash,
		&doc.Retired, &doc.IdempotencyKey, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
