package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/andes-labs/sunat-service/internal/sunat"
)

// fakeDocumentStore aplica las reglas de transición en memoria
type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
}

func newFakeDocumentStore(docs ...*models.Document) *fakeDocumentStore {
	store := &fakeDocumentStore{docs: make(map[uuid.UUID]*models.Document)}
	for _, d := range docs {
		store.docs[d.ID] = d
	}
	return store
}

func (f *fakeDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SubmissionStatus, to models.SubmissionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	blocked := doc.VoidedLocally || doc.Retired ||
		(doc.CancellationStatus != "" && doc.CancellationStatus != models.CancellationStatusNone)
	if !blocked {
		for _, s := range from {
			if doc.Status == s {
				doc.Status = to
				doc.UpdatedAt = time.Now()
				return nil
			}
		}
	}
	if err := doc.CheckSubmittable(); err != nil {
		return err
	}
	return models.ErrIllegalTransition
}

func (f *fakeDocumentStore) ListInFlight(ctx context.Context, updatedBefore time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, doc := range f.docs {
		if doc.Status != models.SubmissionStatusQueued && doc.Status != models.SubmissionStatusSent {
			continue
		}
		if doc.VoidedLocally || doc.Retired || !doc.UpdatedAt.Before(updatedBefore) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeDocumentStore) SetAuthorityResponse(ctx context.Context, id uuid.UUID, status models.SubmissionStatus, code, message, hash *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	doc.Status = status
	doc.AuthorityCode = code
	doc.AuthorityMessage = message
	doc.AuthorityHash = hash
	return nil
}

func (f *fakeDocumentStore) void(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id].VoidedLocally = true
}

func (f *fakeDocumentStore) status(id uuid.UUID) models.SubmissionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

type fakeCompanyStore struct {
	company *models.Company
}

func (f *fakeCompanyStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return f.company, nil
}

type fakeAttemptStore struct {
	mu      sync.Mutex
	records []*models.SubmissionAttempt
}

func (f *fakeAttemptStore) Append(ctx context.Context, attempt *models.SubmissionAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, attempt)
	return nil
}

func (f *fakeAttemptStore) all() []*models.SubmissionAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.SubmissionAttempt(nil), f.records...)
}

// fakeAuthority responde según un guion de resultados por intento
type fakeAuthority struct {
	mu     sync.Mutex
	script []func() (*sunat.Result, error)
	calls  int
}

func (f *fakeAuthority) Submit(ctx context.Context, company *models.Company, doc *models.Document) (*sunat.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.script) {
		return nil, errors.New("unexpected extra call")
	}
	return f.script[idx]()
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func accepted() func() (*sunat.Result, error) {
	return func() (*sunat.Result, error) {
		return &sunat.Result{Accepted: true, Code: "0", Message: "La Factura ha sido aceptada", Hash: "h4sh"}, nil
	}
}

func rejected() func() (*sunat.Result, error) {
	return func() (*sunat.Result, error) {
		return &sunat.Result{Accepted: false, Code: "2324", Message: "El comprobante fue rechazado"}, nil
	}
}

func transportFailure() func() (*sunat.Result, error) {
	return func() (*sunat.Result, error) {
		return nil, sunat.ErrTransport
	}
}

func testConfig() config.SUNATConfig {
	return config.SUNATConfig{
		AttemptTimeout:  time.Second,
		MaxAttempts:     3,
		Backoff:         []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		Workers:         1,
		QueueSize:       8,
		RecoverAfter:    time.Minute,
		RecoverInterval: time.Hour,
	}
}

func testDocument() *models.Document {
	return &models.Document{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		FullNumber:   "F001-00000042",
		Status:       models.SubmissionStatusPending,
		DocumentType: models.DocumentTypeInvoice,
		Currency:     "PEN",
	}
}

func newTestSubmitter(docs *fakeDocumentStore, authority *fakeAuthority, attempts *fakeAttemptStore, bus *events.Bus) *Submitter {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return NewSubmitter(docs, &fakeCompanyStore{company: &models.Company{RUC: "20123456789"}}, attempts, authority, bus, testConfig(), logger)
}

func TestSubmit_AcceptedFirstAttempt(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){accepted()}}
	attempts := &fakeAttemptStore{}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := events.NewBus(logger)
	var published []string
	bus.Subscribe(func(e events.Event) { published = append(published, e.Type) },
		models.EventDocumentAccepted, models.EventDocumentRejected, models.EventDocumentError)

	sub := newTestSubmitter(store, authority, attempts, bus)

	require.NoError(t, sub.Submit(context.Background(), doc.ID))

	assert.Equal(t, models.SubmissionStatusAccepted, store.status(doc.ID))
	assert.Equal(t, 1, authority.callCount())
	assert.Equal(t, []string{models.EventDocumentAccepted}, published)

	records := attempts.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.AttemptOutcomeAccepted, records[0].Outcome)
	assert.Equal(t, 1, records[0].AttemptNo)
}

func TestSubmit_RejectionIsNotRetried(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){rejected()}}
	attempts := &fakeAttemptStore{}
	sub := newTestSubmitter(store, authority, attempts, nil)

	require.NoError(t, sub.Submit(context.Background(), doc.ID))

	assert.Equal(t, models.SubmissionStatusRejected, store.status(doc.ID))
	assert.Equal(t, 1, authority.callCount(), "un rechazo de negocio no consume más intentos")

	records := attempts.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.AttemptOutcomeRejected, records[0].Outcome)
	require.NotNil(t, records[0].AuthorityCode)
	assert.Equal(t, "2324", *records[0].AuthorityCode)
}

func TestSubmit_TransportFailuresExhaustBudget(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){
		transportFailure(), transportFailure(), transportFailure(),
	}}
	attempts := &fakeAttemptStore{}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	bus := events.NewBus(logger)
	var published []string
	bus.Subscribe(func(e events.Event) { published = append(published, e.Type) }, models.EventDocumentError)

	sub := newTestSubmitter(store, authority, attempts, bus)

	require.NoError(t, sub.Submit(context.Background(), doc.ID))

	assert.Equal(t, models.SubmissionStatusError, store.status(doc.ID))
	assert.Equal(t, 3, authority.callCount())
	assert.Equal(t, []string{models.EventDocumentError}, published)

	records := attempts.all()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, models.AttemptOutcomeTransportError, r.Outcome)
		assert.Equal(t, i+1, r.AttemptNo)
		assert.NotNil(t, r.ErrorDetail)
	}
}

func TestSubmit_RecoversAfterTransportFailure(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){
		transportFailure(), accepted(),
	}}
	attempts := &fakeAttemptStore{}
	sub := newTestSubmitter(store, authority, attempts, nil)

	require.NoError(t, sub.Submit(context.Background(), doc.ID))

	assert.Equal(t, models.SubmissionStatusAccepted, store.status(doc.ID))
	assert.Equal(t, 2, authority.callCount())

	records := attempts.all()
	require.Len(t, records, 2)
	assert.Equal(t, models.AttemptOutcomeTransportError, records[0].Outcome)
	assert.Equal(t, models.AttemptOutcomeAccepted, records[1].Outcome)
}

func TestSubmit_AcceptedDocumentConflicts(t *testing.T) {
	doc := testDocument()
	doc.Status = models.SubmissionStatusAccepted
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{}
	sub := newTestSubmitter(store, authority, &fakeAttemptStore{}, nil)

	err := sub.Submit(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyAccepted)
	assert.Equal(t, 0, authority.callCount(), "no debe haber llamadas remotas ante un conflicto")
}

func TestSubmit_VoidedMidFlightAbandons(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	attempts := &fakeAttemptStore{}
	authority := &fakeAuthority{}
	authority.script = []func() (*sunat.Result, error){
		func() (*sunat.Result, error) {
			// Se anula el documento mientras el primer intento está en vuelo
			store.void(doc.ID)
			return nil, sunat.ErrTransport
		},
		accepted(),
	}
	sub := newTestSubmitter(store, authority, attempts, nil)

	require.NoError(t, sub.Submit(context.Background(), doc.ID))

	assert.Equal(t, 1, authority.callCount(), "tras la anulación no debe reintentarse")
	assert.Equal(t, models.SubmissionStatusSent, store.status(doc.ID))
}

func TestEnqueue_SetsQueuedAndProcesses(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){accepted()}}
	attempts := &fakeAttemptStore{}
	sub := newTestSubmitter(store, authority, attempts, nil)

	sub.Start()
	require.NoError(t, sub.Enqueue(context.Background(), doc.ID))
	sub.Stop()

	assert.Equal(t, models.SubmissionStatusAccepted, store.status(doc.ID))
	assert.Equal(t, 1, authority.callCount())
}

func TestEnqueue_DoubleEnqueueConflicts(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	sub := newTestSubmitter(store, &fakeAuthority{}, &fakeAttemptStore{}, nil)

	// Sin arrancar los workers: el documento queda QUEUED y el segundo
	// Enqueue debe chocar con la puerta compare-and-set
	require.NoError(t, sub.Enqueue(context.Background(), doc.ID))
	err := sub.Enqueue(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrInFlight)
}

func TestSubmit_CallerDisconnectDoesNotAbortRetries(t *testing.T) {
	doc := testDocument()
	store := newFakeDocumentStore(doc)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){
		transportFailure(), accepted(),
	}}
	attempts := &fakeAttemptStore{}
	sub := newTestSubmitter(store, authority, attempts, nil)

	// El contexto del llamador ya está cancelado: el ciclo de intentos debe
	// continuar igual y no finalizar el documento en ERROR
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sub.Submit(ctx, doc.ID))

	assert.Equal(t, models.SubmissionStatusAccepted, store.status(doc.ID))
	assert.Equal(t, 2, authority.callCount())
}

func TestStart_RecoversOrphanedInFlightDocuments(t *testing.T) {
	// Documentos que un proceso anterior dejó QUEUED y SENT: la cola en
	// memoria ya no los contiene y solo el barrido puede retomarlos
	queued := testDocument()
	queued.Status = models.SubmissionStatusQueued
	queued.UpdatedAt = time.Now().Add(-time.Hour)
	sent := testDocument()
	sent.Status = models.SubmissionStatusSent
	sent.UpdatedAt = time.Now().Add(-time.Hour)

	store := newFakeDocumentStore(queued, sent)
	authority := &fakeAuthority{script: []func() (*sunat.Result, error){accepted(), accepted()}}
	sub := newTestSubmitter(store, authority, &fakeAttemptStore{}, nil)

	sub.Start()
	defer sub.Stop()

	require.Eventually(t, func() bool {
		return store.status(queued.ID) == models.SubmissionStatusAccepted &&
			store.status(sent.ID) == models.SubmissionStatusAccepted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, authority.callCount())
}

func TestEnqueue_VoidedDocumentRejected(t *testing.T) {
	doc := testDocument()
	doc.VoidedLocally = true
	store := newFakeDocumentStore(doc)
	sub := newTestSubmitter(store, &fakeAuthority{}, &fakeAttemptStore{}, nil)

	err := sub.Enqueue(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrDocumentVoided)
}
