// Package events implementa el bus de eventos en proceso que desacopla las
// transiciones de estado de los documentos de sus consumidores (webhooks,
// notificaciones, logging).
package events

import (
	"sync"
	"time"

	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Event representa una transición de estado publicada en el bus
type Event struct {
	Type       string
	Document   *models.Document
	OccurredAt time.Time
}

// Handler procesa un evento. Los handlers de larga duración deben
// desacoplarse internamente: el bus los invoca en orden de publicación
// para preservar el orden de eventos por documento.
type Handler func(Event)

// Bus es un publish/subscribe en proceso. El fallo (o panic) de un
// suscriptor no impide que el resto reciba el evento.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *logrus.Logger
}

// NewBus crea un nuevo bus de eventos
func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registra un handler para los tipos de evento dados
func (b *Bus) Subscribe(handler Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish entrega el evento a todos los suscriptores registrados para su
// tipo. La entrega es síncrona respecto al publicador para garantizar que
// los eventos de un mismo documento se observen en el orden en que
// ocurrieron; cada suscriptor queda aislado de los panics de los demás.
func (b *Bus) Publish(eventType string, doc *models.Document) {
	event := Event{
		Type:       eventType,
		Document:   doc,
		OccurredAt: time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *Bus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": event.Type,
				"panic": r,
			}).Error("Event subscriber panicked")
		}
	}()
	handler(event)
}
