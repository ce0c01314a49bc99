package email

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/database"
	"github.com/andes-labs/sunat-service/internal/events"
	"github.com/andes-labs/sunat-service/internal/models"
)

// Notifier conecta el bus de eventos con el servicio de correo: envía la
// notificación de aceptación al cliente y alerta al operador cuando un envío
// agota sus intentos
type Notifier struct {
	resend      *ResendService
	companyRepo *database.CompanyRepository
	clientRepo  *database.ClientRepository
	logger      *logrus.Logger
}

// NewNotifier crea una nueva instancia del notificador
func NewNotifier(resend *ResendService, companyRepo *database.CompanyRepository, clientRepo *database.ClientRepository, logger *logrus.Logger) *Notifier {
	return &Notifier{
		resend:      resend,
		companyRepo: companyRepo,
		clientRepo:  clientRepo,
		logger:      logger,
	}
}

// Register suscribe el notificador a los eventos de documento
func (n *Notifier) Register(bus *events.Bus) {
	bus.Subscribe(n.onAccepted, models.EventDocumentAccepted)
	bus.Subscribe(n.onError, models.EventDocumentError)
}

func (n *Notifier) onAccepted(event events.Event) {
	ctx := context.Background()
	doc := event.Document

	company, err := n.companyRepo.GetByID(ctx, doc.CompanyID)
	if err != nil {
		n.logger.Warnf("Could not load company for acceptance email: %v", err)
		return
	}
	client, err := n.clientRepo.GetByID(ctx, doc.CompanyID, doc.ClientID)
	if err != nil {
		n.logger.Warnf("Could not load client for acceptance email: %v", err)
		return
	}

	if err := n.resend.SendAcceptanceEmail(doc, client, company); err != nil {
		n.logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"error":       err.Error(),
		}).Warn("Could not send acceptance email")
	}
}

func (n *Notifier) onError(event events.Event) {
	if err := n.resend.SendFailureAlert(event.Document); err != nil {
		n.logger.WithFields(logrus.Fields{
			"document_id": event.Document.ID,
			"error":       err.Error(),
		}).Warn("Could not send failure alert")
	}
}
