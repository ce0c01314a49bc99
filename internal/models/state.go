package models

import (
	"errors"
	"fmt"
	"time"
)

// Errores de conflicto del ciclo de vida. Se detectan con errors.Is en los
// handlers para mapearlos a HTTP 409.
var (
	ErrAlreadyAccepted     = errors.New("document already accepted by SUNAT")
	ErrInFlight            = errors.New("document submission already in flight")
	ErrDocumentVoided      = errors.New("document was voided locally")
	ErrCancellationPending = errors.New("document has a cancellation in progress")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrNotAccepted         = errors.New("document has not been accepted by SUNAT")
)

// submissionTransitions define las transiciones legales del eje de envío.
// PENDING/REJECTED/ERROR admiten reenvío; ACCEPTED es terminal para el envío.
// SENT -> QUEUED existe para la recuperación de envíos interrumpidos: un
// documento que quedó SENT sin respuesta persistida vuelve a la cola.
var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusPending:  {SubmissionStatusQueued, SubmissionStatusSent},
	SubmissionStatusQueued:   {SubmissionStatusSent, SubmissionStatusError},
	SubmissionStatusSent:     {SubmissionStatusAccepted, SubmissionStatusRejected, SubmissionStatusError, SubmissionStatusQueued},
	SubmissionStatusRejected: {SubmissionStatusQueued, SubmissionStatusSent},
	SubmissionStatusError:    {SubmissionStatusQueued, SubmissionStatusSent},
	SubmissionStatusAccepted: {},
}

// ResubmittableStatuses son los estados desde los cuales se permite (re)enviar.
// El compare-and-set en persistencia usa exactamente este conjunto como puerta
// de exclusión mutua por documento.
func ResubmittableStatuses() []SubmissionStatus {
	return []SubmissionStatus{
		SubmissionStatusPending,
		SubmissionStatusRejected,
		SubmissionStatusError,
	}
}

// CanTransitionSubmission indica si la transición de envío es legal
func CanTransitionSubmission(from, to SubmissionStatus) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// cancellationPending indica si hay una anulación oficial en curso o
// confirmada. El valor cero del campo se trata como UNCANCELLED para que un
// Document construido en memoria no se lea como anulación pendiente.
func (d *Document) cancellationPending() bool {
	return d.CancellationStatus != CancellationStatusNone && d.CancellationStatus != ""
}

// CheckSubmittable valida que el documento sea elegible para un (re)envío.
// Devuelve un error de conflicto descriptivo, nunca modifica estado.
func (d *Document) CheckSubmittable() error {
	if d.VoidedLocally {
		return fmt.Errorf("%w: %s", ErrDocumentVoided, d.FullNumber)
	}
	if d.cancellationPending() {
		return fmt.Errorf("%w: %s", ErrCancellationPending, d.FullNumber)
	}
	switch d.Status {
	case SubmissionStatusAccepted:
		return fmt.Errorf("%w: %s", ErrAlreadyAccepted, d.FullNumber)
	case SubmissionStatusQueued, SubmissionStatusSent:
		return fmt.Errorf("%w: %s is %s", ErrInFlight, d.FullNumber, d.Status)
	}
	return nil
}

// TransitionSubmission aplica una transición del eje de envío validando su
// legalidad. Toda mutación del estado debe pasar por aquí, nunca por escritura
// directa del campo.
func (d *Document) TransitionSubmission(to SubmissionStatus) error {
	if !CanTransitionSubmission(d.Status, to) {
		if d.Status == SubmissionStatusAccepted {
			return fmt.Errorf("%w: %s", ErrAlreadyAccepted, d.FullNumber)
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	return nil
}

// ResetForEdit restablece el estado de envío tras una edición de contenido.
// Un documento modificado invalida cualquier aceptación previa y debe
// reenviarse; la respuesta anterior de SUNAT se descarta.
func (d *Document) ResetForEdit() error {
	if d.VoidedLocally {
		return fmt.Errorf("%w: %s", ErrDocumentVoided, d.FullNumber)
	}
	if d.cancellationPending() {
		return fmt.Errorf("%w: %s", ErrCancellationPending, d.FullNumber)
	}
	if d.Status == SubmissionStatusQueued || d.Status == SubmissionStatusSent {
		return fmt.Errorf("%w: %s is %s", ErrInFlight, d.FullNumber, d.Status)
	}
	d.Status = SubmissionStatusPending
	d.AuthorityCode = nil
	d.AuthorityMessage = nil
	d.AuthorityHash = nil
	d.UpdatedAt = time.Now()
	return nil
}

// VoidLocally marca el documento como anulado localmente. Una vez anulado,
// el documento queda fuera del circuito de reenvío de forma permanente.
func (d *Document) VoidLocally(reason string) error {
	if d.VoidedLocally {
		return fmt.Errorf("%w: %s", ErrDocumentVoided, d.FullNumber)
	}
	if d.Status == SubmissionStatusQueued || d.Status == SubmissionStatusSent {
		return fmt.Errorf("%w: %s is %s", ErrInFlight, d.FullNumber, d.Status)
	}
	now := time.Now()
	d.VoidedLocally = true
	d.VoidReason = &reason
	d.VoidedAt = &now
	d.UpdatedAt = now
	return nil
}

// RequestCancellation inicia la anulación oficial. Solo es alcanzable desde
// un documento aceptado por SUNAT y sin anulación previa.
func (d *Document) RequestCancellation(reason string) error {
	if d.Status != SubmissionStatusAccepted {
		return fmt.Errorf("%w: %s is %s", ErrNotAccepted, d.FullNumber, d.Status)
	}
	if d.VoidedLocally {
		return fmt.Errorf("%w: %s", ErrDocumentVoided, d.FullNumber)
	}
	if d.cancellationPending() {
		return fmt.Errorf("%w: %s is %s", ErrCancellationPending, d.FullNumber, d.CancellationStatus)
	}
	now := time.Now()
	d.CancellationStatus = CancellationStatusRequested
	d.CancellationReason = &reason
	d.CancellationRequestedAt = &now
	d.UpdatedAt = now
	return nil
}

// ConfirmCancellation confirma la anulación oficial tras la aceptación del
// resumen diario correspondiente por parte de SUNAT.
func (d *Document) ConfirmCancellation() error {
	if d.CancellationStatus != CancellationStatusRequested {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.CancellationStatus, CancellationStatusCancelled)
	}
	d.CancellationStatus = CancellationStatusCancelled
	d.UpdatedAt = time.Now()
	return nil
}

// EligibleForSummary indica si el documento puede incluirse en un resumen
// diario de emisión: solo documentos sin anulación en curso ni confirmada.
func (d *Document) EligibleForSummary() bool {
	return !d.cancellationPending() && !d.VoidedLocally
}
