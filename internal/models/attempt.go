package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome representa el resultado de un intento de envío a SUNAT
type AttemptOutcome string

const (
	AttemptOutcomeAccepted       AttemptOutcome = "accepted"
	AttemptOutcomeRejected       AttemptOutcome = "rejected"
	AttemptOutcomeTransportError AttemptOutcome = "transport_error"
)

// SubmissionAttempt registra un intento de envío al servicio de SUNAT.
// Es append-only: nunca se modifica después de su creación.
type SubmissionAttempt struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	DocumentID       uuid.UUID      `json:"document_id" db:"document_id"`
	AttemptNo        int            `json:"attempt_no" db:"attempt_no"`
	Outcome          AttemptOutcome `json:"outcome" db:"outcome"`
	AuthorityCode    *string        `json:"authority_code,omitempty" db:"authority_code"`
	AuthorityMessage *string        `json:"authority_message,omitempty" db:"authority_message"`
	ErrorDetail      *string        `json:"error_detail,omitempty" db:"error_detail"`
	StartedAt        time.Time      `json:"started_at" db:"started_at"`
	FinishedAt       time.Time      `json:"finished_at" db:"finished_at"`
}

// AttemptListResponse representa el historial de intentos de un documento
type AttemptListResponse struct {
	Items []SubmissionAttempt `json:"items"`
	Total int                 `json:"total"`
}
