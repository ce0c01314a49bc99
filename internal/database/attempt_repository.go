package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// AttemptRepository maneja el historial de intentos de envío. Los registros
// son append-only.
type AttemptRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewAttemptRepository crea una nueva instancia del repositorio
func NewAttemptRepository(db *DB, logger *logrus.Logger) *AttemptRepository {
	return &AttemptRepository{
		db:     db,
		logger: logger,
	}
}

// Append registra un intento de envío
func (r *AttemptRepository) Append(ctx context.Context, attempt *models.SubmissionAttempt) error {
	query := `
		INSERT INTO submission_attempts (
			id, document_id, attempt_no, outcome,
			authority_code, authority_message, error_detail,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.DocumentID, attempt.AttemptNo, attempt.Outcome,
		attempt.AuthorityCode, attempt.AuthorityMessage, attempt.ErrorDetail,
		attempt.StartedAt, attempt.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting submission attempt: %w", err)
	}

	return nil
}

// ListByDocumentID obtiene el historial de intentos de un documento en orden
// cronológico
func (r *AttemptRepository) ListByDocumentID(ctx context.Context, docID uuid.UUID) ([]models.SubmissionAttempt, error) {
	query := `
		SELECT id, document_id, attempt_no, outcome,
			   authority_code, authority_message, error_detail,
			   started_at, finished_at
		FROM submission_attempts
		WHERE document_id = $1
		ORDER BY started_at, attempt_no
	`

	rows, err := r.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("error querying submission attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.SubmissionAttempt
	for rows.Next() {
		var a models.SubmissionAttempt
		err := rows.Scan(
			&a.ID, &a.DocumentID, &a.AttemptNo, &a.Outcome,
			&a.AuthorityCode, &a.AuthorityMessage, &a.ErrorDetail,
			&a.StartedAt, &a.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning submission attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
