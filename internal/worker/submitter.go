package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/andes-labs/sunat-service/internal/sunat"
)

// DocumentStore expone las operaciones de persistencia que necesita el worker.
// TransitionStatus es compare-and-set: falla con un error de conflicto si el
// documento ya no está en ninguno de los estados `from`.
type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SubmissionStatus, to models.SubmissionStatus) error
	SetAuthorityResponse(ctx context.Context, id uuid.UUID, status models.SubmissionStatus, code, message, hash *string) error
	ListInFlight(ctx context.Context, updatedBefore time.Time) ([]uuid.UUID, error)
}

// CompanyStore resuelve la empresa emisora del documento
type CompanyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
}

// AttemptStore registra el historial de intentos
type AttemptStore interface {
	Append(ctx context.Context, attempt *models.SubmissionAttempt) error
}

// AuthorityClient envía un documento a SUNAT
type AuthorityClient interface {
	Submit(ctx context.Context, company *models.Company, doc *models.Document) (*sunat.Result, error)
}

// Submitter ejecuta los envíos a SUNAT con política de reintentos. El envío
// asíncrono pasa por una cola interna atendida por un pool de goroutines; el
// síncrono ejecuta el mismo ciclo de intentos en la goroutine del llamador.
type Submitter struct {
	docs      DocumentStore
	companies CompanyStore
	attempts  AttemptStore
	authority AuthorityClient
	bus       *events.Bus
	logger    *logrus.Logger
	cfg       config.SUNATConfig

	queue     chan uuid.UUID
	wg        sync.WaitGroup
	sweeperWG sync.WaitGroup
	cancel    context.CancelFunc
}

// NewSubmitter crea una nueva instancia del worker de envío
func NewSubmitter(docs DocumentStore, companies CompanyStore, attempts AttemptStore, authority AuthorityClient, bus *events.Bus, cfg config.SUNATConfig, logger *logrus.Logger) *Submitter {
	return &Submitter{
		docs:      docs,
		companies: companies,
		attempts:  attempts,
		authority: authority,
		bus:       bus,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan uuid.UUID, cfg.QueueSize),
	}
}

// Start arranca el pool de workers
func (s *Submitter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.sweeperWG.Add(1)
	go s.recoveryLoop(ctx)

	s.logger.WithField("workers", s.cfg.Workers).Info("Submission worker pool started")
}

// Stop detiene el pool y espera a que terminen los envíos en curso. El
// barrido de recuperación debe detenerse antes de cerrar la cola.
func (s *Submitter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.sweeperWG.Wait()
	close(s.queue)
	s.wg.Wait()
	s.logger.Info("Submission worker pool stopped")
}

// recoveryLoop re-encola periódicamente los documentos que quedaron QUEUED o
// SENT sin resolver: la cola es volátil y un reinicio del proceso (o un
// intento interrumpido antes de persistir la respuesta) los dejaría huérfanos
// para siempre, porque el compare-and-set rechaza todo documento en vuelo.
func (s *Submitter) recoveryLoop(ctx context.Context) {
	defer s.sweeperWG.Done()

	s.recover(ctx)

	ticker := time.NewTicker(s.cfg.RecoverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recover(ctx)
		}
	}
}

func (s *Submitter) recover(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.RecoverAfter)
	ids, err := s.docs.ListInFlight(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Could not sweep in-flight documents")
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.WithField("count", len(ids)).Warn("Recovering orphaned in-flight documents")
	for _, id := range ids {
		// Un SENT huérfano vuelve a QUEUED; si el CAS falla es porque otro
		// proceso lo resolvió entre el barrido y este punto
		_ = s.docs.TransitionStatus(ctx, id, []models.SubmissionStatus{models.SubmissionStatusSent}, models.SubmissionStatusQueued)

		select {
		case s.queue <- id:
		default:
			// Cola llena: el próximo barrido retoma el resto
			return
		}
	}
}

func (s *Submitter) worker(ctx context.Context) {
	defer s.wg.Done()
	for docID := range s.queue {
		if ctx.Err() != nil {
			return
		}
		if err := s.process(ctx, docID); err != nil {
			s.logger.WithFields(logrus.Fields{
				"document_id": docID,
				"error":       err.Error(),
			}).Error("Async submission failed")
		}
	}
}

// Enqueue encola un documento para envío asíncrono. La puerta de exclusión es
// el compare-and-set a QUEUED: un segundo Enqueue concurrente sobre el mismo
// documento recibe el error de conflicto y nunca entra a la cola.
func (s *Submitter) Enqueue(ctx context.Context, docID uuid.UUID) error {
	if err := s.docs.TransitionStatus(ctx, docID, models.ResubmittableStatuses(), models.SubmissionStatusQueued); err != nil {
		return err
	}

	select {
	case s.queue <- docID:
		return nil
	default:
		// Cola llena: revertir para que el cliente pueda reintentar
		if err := s.docs.TransitionStatus(ctx, docID, []models.SubmissionStatus{models.SubmissionStatusQueued}, models.SubmissionStatusError); err != nil {
			s.logger.WithField("document_id", docID).Error("Could not roll back queued status after full queue")
		}
		return fmt.Errorf("submission queue is full")
	}
}

// Submit ejecuta un envío síncrono: misma política de intentos, en la
// goroutine del llamador. El ciclo de intentos se desacopla de la
// cancelación del contexto entrante: una desconexión del cliente HTTP a
// mitad de intento no debe finalizar el documento en ERROR.
func (s *Submitter) Submit(ctx context.Context, docID uuid.UUID) error {
	if err := s.docs.TransitionStatus(ctx, docID, models.ResubmittableStatuses(), models.SubmissionStatusSent); err != nil {
		return err
	}
	return s.runAttempts(context.WithoutCancel(ctx), docID)
}

// process atiende un documento encolado
func (s *Submitter) process(ctx context.Context, docID uuid.UUID) error {
	if err := s.docs.TransitionStatus(ctx, docID, []models.SubmissionStatus{models.SubmissionStatusQueued}, models.SubmissionStatusSent); err != nil {
		// El documento fue anulado o editado mientras esperaba en cola:
		// se abandona sin efecto
		s.logger.WithFields(logrus.Fields{
			"document_id": docID,
			"reason":      err.Error(),
		}).Info("Queued submission abandoned")
		return nil
	}
	return s.runAttempts(ctx, docID)
}

// runAttempts ejecuta el ciclo de intentos contra SUNAT. Un rechazo de negocio
// es definitivo y no consume el presupuesto restante; solo las fallas de
// transporte se reintentan.
func (s *Submitter) runAttempts(ctx context.Context, docID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("error loading document for submission: %w", err)
	}

	company, err := s.companies.GetByID(ctx, doc.CompanyID)
	if err != nil {
		return fmt.Errorf("error loading company for submission: %w", err)
	}

	var lastErr error
	for attemptNo := 1; attemptNo <= s.cfg.MaxAttempts; attemptNo++ {
		if attemptNo > 1 {
			if err := s.waitBackoff(ctx, attemptNo-2); err != nil {
				lastErr = err
				break
			}
			// El documento pudo anularse durante la espera
			fresh, err := s.docs.GetByID(ctx, docID)
			if err != nil {
				return fmt.Errorf("error reloading document between attempts: %w", err)
			}
			if fresh.VoidedLocally {
				s.logger.WithField("document_id", docID).Info("Submission abandoned, document voided mid-flight")
				return nil
			}
		}

		result, err := s.attempt(ctx, company, doc, attemptNo)
		if err != nil {
			lastErr = err
			s.logger.WithFields(logrus.Fields{
				"document_id": docID,
				"full_number": doc.FullNumber,
				"attempt":     attemptNo,
				"max":         s.cfg.MaxAttempts,
				"error":       err.Error(),
			}).Warn("SUNAT submission attempt failed")
			continue
		}

		if result.Accepted {
			return s.finish(ctx, doc, models.SubmissionStatusAccepted, result, models.EventDocumentAccepted)
		}
		return s.finish(ctx, doc, models.SubmissionStatusRejected, result, models.EventDocumentRejected)
	}

	// Presupuesto de intentos agotado
	detail := "attempt budget exhausted"
	if lastErr != nil {
		detail = lastErr.Error()
	}
	if err := s.docs.SetAuthorityResponse(ctx, docID, models.SubmissionStatusError, nil, &detail, nil); err != nil {
		return fmt.Errorf("error marking document as errored: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": docID,
		"full_number": doc.FullNumber,
		"attempts":    s.cfg.MaxAttempts,
		"last_error":  detail,
	}).Error("SUNAT submission exhausted attempt budget")

	doc.Status = models.SubmissionStatusError
	s.bus.Publish(models.EventDocumentError, doc)
	return nil
}

// attempt ejecuta un intento individual acotado por el timeout configurado y
// lo registra en el historial
func (s *Submitter) attempt(ctx context.Context, company *models.Company, doc *models.Document, attemptNo int) (*sunat.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.authority.Submit(attemptCtx, company, doc)
	finished := time.Now()

	record := &models.SubmissionAttempt{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		AttemptNo:  attemptNo,
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err != nil {
		detail := err.Error()
		record.Outcome = models.AttemptOutcomeTransportError
		record.ErrorDetail = &detail
	} else if result.Accepted {
		record.Outcome = models.AttemptOutcomeAccepted
		record.AuthorityCode = &result.Code
		record.AuthorityMessage = &result.Message
	} else {
		record.Outcome = models.AttemptOutcomeRejected
		record.AuthorityCode = &result.Code
		record.AuthorityMessage = &result.Message
	}

	if appendErr := s.attempts.Append(ctx, record); appendErr != nil {
		s.logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"attempt":     attemptNo,
			"error":       appendErr.Error(),
		}).Error("Could not record submission attempt")
	}

	return result, err
}

// finish persiste la respuesta definitiva de SUNAT y publica el evento
func (s *Submitter) finish(ctx context.Context, doc *models.Document, status models.SubmissionStatus, result *sunat.Result, eventType string) error {
	var hash *string
	if result.Hash != "" {
		hash = &result.Hash
	}
	if err := s.docs.SetAuthorityResponse(ctx, doc.ID, status, &result.Code, &result.Message, hash); err != nil {
		return fmt.Errorf("error persisting authority response: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"status":      status,
		"sunat_code":  result.Code,
	}).Info("SUNAT submission resolved")

	doc.Status = status
	doc.AuthorityCode = &result.Code
	doc.AuthorityMessage = &result.Message
	doc.AuthorityHash = hash
	s.bus.Publish(eventType, doc)
	return nil
}

// waitBackoff espera el retraso configurado antes del siguiente intento
func (s *Submitter) waitBackoff(ctx context.Context, index int) error {
	if index < 0 || index >= len(s.cfg.Backoff) {
		index = len(s.cfg.Backoff) - 1
	}
	timer := time.NewTimer(s.cfg.Backoff[index])
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
