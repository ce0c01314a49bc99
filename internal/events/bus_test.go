package events

import (
	"io"
	"testing"

	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	var first, second int
	bus.Subscribe(func(Event) { first++ }, models.EventDocumentAccepted)
	bus.Subscribe(func(Event) { second++ }, models.EventDocumentAccepted)

	bus.Publish(models.EventDocumentAccepted, &models.Document{})

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestPublishOnlyMatchingEventType(t *testing.T) {
	bus := NewBus(testLogger())

	var accepted, rejected int
	bus.Subscribe(func(Event) { accepted++ }, models.EventDocumentAccepted)
	bus.Subscribe(func(Event) { rejected++ }, models.EventDocumentRejected)

	bus.Publish(models.EventDocumentRejected, &models.Document{})

	assert.Equal(t, 0, accepted)
	assert.Equal(t, 1, rejected)
}

func TestSubscriberPanicDoesNotBlockOthers(t *testing.T) {
	bus := NewBus(testLogger())

	var survived bool
	bus.Subscribe(func(Event) { panic("boom") }, models.EventDocumentError)
	bus.Subscribe(func(Event) { survived = true }, models.EventDocumentError)

	assert.NotPanics(t, func() {
		bus.Publish(models.EventDocumentError, &models.Document{})
	})
	assert.True(t, survived)
}

func TestPerDocumentEventOrderPreserved(t *testing.T) {
	bus := NewBus(testLogger())

	var got []string
	record := func(e Event) { got = append(got, e.Type) }
	bus.Subscribe(record, models.EventDocumentAccepted, models.EventDocumentCancelled)

	doc := &models.Document{}
	bus.Publish(models.EventDocumentAccepted, doc)
	bus.Publish(models.EventDocumentCancelled, doc)

	assert.Equal(t, []string{models.EventDocumentAccepted, models.EventDocumentCancelled}, got)
}
