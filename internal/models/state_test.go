package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSubmittable_AcceptedConflict(t *testing.T) {
	doc := &Document{FullNumber: "F001-00000042", Status: SubmissionStatusAccepted}

	err := doc.CheckSubmittable()
	assert.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestCheckSubmittable_InFlight(t *testing.T) {
	for _, status := range []SubmissionStatus{SubmissionStatusQueued, SubmissionStatusSent} {
		doc := &Document{Status: status}
		err := doc.CheckSubmittable()
		assert.ErrorIs(t, err, ErrInFlight, "estado %s", status)
	}
}

func TestCheckSubmittable_ResubmittableStatuses(t *testing.T) {
	for _, status := range ResubmittableStatuses() {
		doc := &Document{Status: status}
		assert.NoError(t, doc.CheckSubmittable(), "estado %s", status)
	}
}

func TestCheckSubmittable_VoidedBlocksResubmission(t *testing.T) {
	doc := &Document{Status: SubmissionStatusPending, VoidedLocally: true}

	err := doc.CheckSubmittable()
	assert.ErrorIs(t, err, ErrDocumentVoided)
}

func TestCheckSubmittable_CancellationPendingBlocks(t *testing.T) {
	doc := &Document{Status: SubmissionStatusAccepted, CancellationStatus: CancellationStatusRequested}

	err := doc.CheckSubmittable()
	assert.ErrorIs(t, err, ErrCancellationPending)
}

func TestCheckSubmittable_ZeroValueCancellationIsNone(t *testing.T) {
	// Un Document construido en memoria sin CancellationStatus explícito no
	// debe leerse como anulación en curso
	doc := &Document{Status: SubmissionStatusPending}

	assert.NoError(t, doc.CheckSubmittable())
	assert.NoError(t, doc.ResetForEdit())
	assert.True(t, (&Document{Status: SubmissionStatusAccepted}).EligibleForSummary())
}

func TestTransitionSubmission_SentReturnsToQueueForRecovery(t *testing.T) {
	doc := &Document{Status: SubmissionStatusSent}

	require.NoError(t, doc.TransitionSubmission(SubmissionStatusQueued))
	assert.Equal(t, SubmissionStatusQueued, doc.Status)
}

func TestTransitionSubmission_LegalPath(t *testing.T) {
	doc := &Document{Status: SubmissionStatusPending}

	require.NoError(t, doc.TransitionSubmission(SubmissionStatusQueued))
	require.NoError(t, doc.TransitionSubmission(SubmissionStatusSent))
	require.NoError(t, doc.TransitionSubmission(SubmissionStatusAccepted))
	assert.Equal(t, SubmissionStatusAccepted, doc.Status)
}

func TestTransitionSubmission_IllegalJump(t *testing.T) {
	doc := &Document{Status: SubmissionStatusPending}

	err := doc.TransitionSubmission(SubmissionStatusAccepted)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, SubmissionStatusPending, doc.Status, "el estado no debe cambiar en una transición ilegal")
}

func TestTransitionSubmission_AcceptedIsTerminal(t *testing.T) {
	for _, to := range []SubmissionStatus{SubmissionStatusQueued, SubmissionStatusSent, SubmissionStatusRejected, SubmissionStatusError} {
		doc := &Document{Status: SubmissionStatusAccepted}
		err := doc.TransitionSubmission(to)
		assert.ErrorIs(t, err, ErrAlreadyAccepted, "ACCEPTED -> %s", to)
	}
}

func TestTransitionSubmission_RetryAfterRejection(t *testing.T) {
	doc := &Document{Status: SubmissionStatusRejected}

	require.NoError(t, doc.TransitionSubmission(SubmissionStatusQueued))
	assert.Equal(t, SubmissionStatusQueued, doc.Status)
}

func TestResetForEdit_FromRejectedClearsArtifact(t *testing.T) {
	code, msg, hash := "2324", "El comprobante fue rechazado", "abc123"
	doc := &Document{
		Status:           SubmissionStatusRejected,
		AuthorityCode:    &code,
		AuthorityMessage: &msg,
		AuthorityHash:    &hash,
	}

	require.NoError(t, doc.ResetForEdit())

	assert.Equal(t, SubmissionStatusPending, doc.Status)
	assert.Nil(t, doc.AuthorityCode)
	assert.Nil(t, doc.AuthorityMessage)
	assert.Nil(t, doc.AuthorityHash)
}

func TestResetForEdit_InFlightConflicts(t *testing.T) {
	for _, status := range []SubmissionStatus{SubmissionStatusQueued, SubmissionStatusSent} {
		doc := &Document{Status: status}
		err := doc.ResetForEdit()
		assert.ErrorIs(t, err, ErrInFlight, "estado %s", status)
	}
}

func TestResetForEdit_AcceptedRequiresResubmission(t *testing.T) {
	code := "0"
	doc := &Document{Status: SubmissionStatusAccepted, AuthorityCode: &code}

	// Editar un documento aceptado descarta la aceptación previa
	require.NoError(t, doc.ResetForEdit())
	assert.Equal(t, SubmissionStatusPending, doc.Status)
	assert.Nil(t, doc.AuthorityCode)
}

func TestVoidLocally(t *testing.T) {
	doc := &Document{Status: SubmissionStatusPending}

	require.NoError(t, doc.VoidLocally("emitido por error"))
	assert.True(t, doc.VoidedLocally)
	require.NotNil(t, doc.VoidReason)
	assert.Equal(t, "emitido por error", *doc.VoidReason)
	assert.NotNil(t, doc.VoidedAt)

	// Un documento anulado no vuelve a anularse
	err := doc.VoidLocally("otra razón")
	assert.ErrorIs(t, err, ErrDocumentVoided)
}

func TestVoidLocally_InFlightConflicts(t *testing.T) {
	doc := &Document{Status: SubmissionStatusSent}

	err := doc.VoidLocally("emitido por error")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.False(t, doc.VoidedLocally)
}

func TestRequestCancellation_OnlyFromAccepted(t *testing.T) {
	doc := &Document{Status: SubmissionStatusAccepted, CancellationStatus: CancellationStatusNone}

	require.NoError(t, doc.RequestCancellation("datos del cliente incorrectos"))
	assert.Equal(t, CancellationStatusRequested, doc.CancellationStatus)
	require.NotNil(t, doc.CancellationReason)
	assert.Equal(t, "datos del cliente incorrectos", *doc.CancellationReason)

	// No se puede solicitar dos veces
	err := doc.RequestCancellation("de nuevo")
	assert.ErrorIs(t, err, ErrCancellationPending)
}

func TestRequestCancellation_NotAccepted(t *testing.T) {
	for _, status := range []SubmissionStatus{SubmissionStatusPending, SubmissionStatusQueued, SubmissionStatusSent, SubmissionStatusRejected, SubmissionStatusError} {
		doc := &Document{Status: status}
		err := doc.RequestCancellation("razón")
		assert.ErrorIs(t, err, ErrNotAccepted, "estado %s", status)
	}
}

func TestConfirmCancellation(t *testing.T) {
	doc := &Document{Status: SubmissionStatusAccepted, CancellationStatus: CancellationStatusRequested}

	require.NoError(t, doc.ConfirmCancellation())
	assert.Equal(t, CancellationStatusCancelled, doc.CancellationStatus)

	// Confirmar sin solicitud previa es ilegal
	fresh := &Document{Status: SubmissionStatusAccepted, CancellationStatus: CancellationStatusNone}
	assert.ErrorIs(t, fresh.ConfirmCancellation(), ErrIllegalTransition)
}

func TestEligibleForSummary(t *testing.T) {
	clean := &Document{DocumentType: DocumentTypeBoleta, Status: SubmissionStatusAccepted}
	assert.True(t, clean.EligibleForSummary())

	voided := &Document{DocumentType: DocumentTypeBoleta, VoidedLocally: true}
	assert.False(t, voided.EligibleForSummary())

	cancelling := &Document{DocumentType: DocumentTypeBoleta, CancellationStatus: CancellationStatusRequested}
	assert.False(t, cancelling.EligibleForSummary())
}
