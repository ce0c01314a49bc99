package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
)

type fakeSubscriptionStore struct {
	mu         sync.Mutex
	subs       []*models.WebhookSubscription
	deliveries []*models.DeliveryRecord
}

func (f *fakeSubscriptionStore) ListActiveByEvent(ctx context.Context, companyID uuid.UUID, event string) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if s.IsActive && s.CompanyID == companyID && s.SubscribesTo(event) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionStore) AppendDelivery(ctx context.Context, record *models.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, record)
	return nil
}

func (f *fakeSubscriptionStore) all() []*models.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.DeliveryRecord(nil), f.deliveries...)
}

func testSubscription(companyID uuid.UUID, url string) *models.WebhookSubscription {
	return &models.WebhookSubscription{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       "erp-integration",
		URL:        url,
		Secret:     "whsec_abc123",
		Events:     []string{models.EventDocumentAccepted, models.EventDocumentRejected},
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		IsActive:   true,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	companyID := uuid.New()
	doc := &models.Document{ID: uuid.New(), CompanyID: companyID, FullNumber: "F001-00000042"}

	var mu sync.Mutex
	var gotEvent, gotSignature string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotBody = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeSubscriptionStore{subs: []*models.WebhookSubscription{testSubscription(companyID, server.URL)}}
	bus := events.NewBus(testLogger())
	dispatcher := NewDispatcher(store, testLogger())
	dispatcher.Register(bus)

	bus.Publish(models.EventDocumentAccepted, doc)
	dispatcher.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.EventDocumentAccepted, gotEvent)
	assert.True(t, Verify("whsec_abc123", gotBody, gotSignature), "la firma debe validar contra el cuerpo entregado")

	var received payload
	require.NoError(t, json.Unmarshal(gotBody, &received))
	assert.Equal(t, models.EventDocumentAccepted, received.Event)
	assert.Equal(t, "F001-00000042", received.Data.FullNumber)

	records := store.all()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, http.StatusOK, records[0].StatusCode)
}

func TestDispatcher_RetriesAndAuditsEveryAttempt(t *testing.T) {
	companyID := uuid.New()
	doc := &models.Document{ID: uuid.New(), CompanyID: companyID}

	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeSubscriptionStore{subs: []*models.WebhookSubscription{testSubscription(companyID, server.URL)}}
	bus := events.NewBus(testLogger())
	dispatcher := NewDispatcher(store, testLogger())
	dispatcher.Register(bus)

	bus.Publish(models.EventDocumentAccepted, doc)
	dispatcher.Wait()

	records := store.all()
	require.Len(t, records, 3, "cada intento queda en la auditoría")
	assert.False(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.True(t, records[2].Success)
	assert.Equal(t, 1, records[0].AttemptNo)
	assert.Equal(t, 3, records[2].AttemptNo)
}

func TestDispatcher_StopsAfterMaxRetries(t *testing.T) {
	companyID := uuid.New()
	doc := &models.Document{ID: uuid.New(), CompanyID: companyID}

	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := &fakeSubscriptionStore{subs: []*models.WebhookSubscription{testSubscription(companyID, server.URL)}}
	bus := events.NewBus(testLogger())
	dispatcher := NewDispatcher(store, testLogger())
	dispatcher.Register(bus)

	bus.Publish(models.EventDocumentRejected, doc)
	dispatcher.Wait()

	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()

	records := store.all()
	require.Len(t, records, 3)
	for _, r := range records {
		assert.False(t, r.Success)
		assert.Equal(t, http.StatusBadGateway, r.StatusCode)
	}
}

func TestDispatcher_FiltersByEventAndCompany(t *testing.T) {
	companyID := uuid.New()
	doc := &models.Document{ID: uuid.New(), CompanyID: companyID}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	otherCompany := testSubscription(uuid.New(), server.URL)
	wrongEvent := testSubscription(companyID, server.URL)
	wrongEvent.Events = []string{models.EventDocumentCancelled}
	inactive := testSubscription(companyID, server.URL)
	inactive.IsActive = false

	store := &fakeSubscriptionStore{subs: []*models.WebhookSubscription{otherCompany, wrongEvent, inactive}}
	bus := events.NewBus(testLogger())
	dispatcher := NewDispatcher(store, testLogger())
	dispatcher.Register(bus)

	bus.Publish(models.EventDocumentAccepted, doc)
	dispatcher.Wait()

	assert.Empty(t, store.all(), "ninguna suscripción coincide con el evento")
}

func TestDispatcher_CustomHeadersForwarded(t *testing.T) {
	companyID := uuid.New()
	doc := &models.Document{ID: uuid.New(), CompanyID: companyID}

	var mu sync.Mutex
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotHeader = r.Header.Get("X-Tenant")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := testSubscription(companyID, server.URL)
	sub.Headers = map[string]string{"X-Tenant": "andes"}

	store := &fakeSubscriptionStore{subs: []*models.WebhookSubscription{sub}}
	bus := events.NewBus(testLogger())
	dispatcher := NewDispatcher(store, testLogger())
	dispatcher.Register(bus)

	bus.Publish(models.EventDocumentAccepted, doc)
	dispatcher.Wait()

	mu.Lock()
	assert.Equal(t, "andes", gotHeader)
	mu.Unlock()
}

func TestDispatcher_TestFire(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "webhook.test", r.Header.Get("X-Webhook-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeSubscriptionStore{}
	dispatcher := NewDispatcher(store, testLogger())

	result := dispatcher.TestFire(context.Background(), testSubscription(uuid.New(), server.URL))

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Empty(t, store.all(), "el disparo de prueba no se audita")
}

func TestDispatcher_UnreachableEndpoint(t *testing.T) {
	store := &fakeSubscriptionStore{}
	dispatcher := NewDispatcher(store, testLogger())

	sub := testSubscription(uuid.New(), "http://127.0.0.1:1/webhook")
	result := dispatcher.TestFire(context.Background(), sub)

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
}
