package email

import (
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/models"
)

// ResendService maneja el envío de correos electrónicos usando Resend API
type ResendService struct {
	client        *resend.Client
	fromEmail     string
	operatorEmail string
	logger        *logrus.Logger
}

// NewResendService crea una nueva instancia de ResendService
func NewResendService(apiKey, operatorEmail string, logger *logrus.Logger) *ResendService {
	return &ResendService{
		client:        resend.NewClient(apiKey),
		fromEmail:     "comprobantes@resend.dev",
		operatorEmail: operatorEmail,
		logger:        logger,
	}
}

// SendAcceptanceEmail notifica al cliente que su comprobante fue aceptado
// por SUNAT
func (s *ResendService) SendAcceptanceEmail(doc *models.Document, client *models.Client, company *models.Company) error {
	if client.Email == nil || *client.Email == "" {
		s.logger.WithField("document_id", doc.ID).Debug("Client has no email, skipping acceptance notification")
		return nil
	}

	subject := fmt.Sprintf("Comprobante %s - %s", doc.FullNumber, company.BusinessName)
	totals := doc.RoundedTotals()

	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Comprobante Electrónico</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 8px; }
        .total { font-size: 18px; font-weight: bold; color: #007bff; }
        .footer { margin-top: 30px; padding: 20px; background-color: #f8f9fa; border-radius: 8px; font-size: 14px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Comprobante Electrónico</h1>
            <p>Número: %s</p>
            <p>Fecha: %s</p>
        </div>
        <div class="content">
            <h2>Hola %s,</h2>
            <p>Tu comprobante electrónico fue aceptado por SUNAT:</p>
            <ul>
                <li><strong>Emisor:</strong> %s</li>
                <li><strong>RUC:</strong> %s</li>
                <li><strong>Comprobante:</strong> %s</li>
                <li><strong>Moneda:</strong> %s</li>
                <li><strong>Total:</strong> <span class="total">%s</span></li>
            </ul>
        </div>
        <div class="footer">
            <p>Este es un email automático del sistema de emisión electrónica.</p>
        </div>
    </div>
</body>
</html>`,
		doc.FullNumber,
		doc.IssueDate.Format("02/01/2006"),
		client.Name,
		company.BusinessName,
		company.RUC,
		doc.FullNumber,
		doc.Currency,
		totals.Total,
	)

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{*client.Email},
		Subject: subject,
		Html:    htmlContent,
	}

	sent, err := s.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("error sending acceptance email: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"email_id":    sent.Id,
		"to":          *client.Email,
	}).Info("Acceptance email sent")

	return nil
}

// SendFailureAlert notifica al operador que un documento agotó su presupuesto
// de intentos de envío
func (s *ResendService) SendFailureAlert(doc *models.Document) error {
	if s.operatorEmail == "" {
		return nil
	}

	detail := "sin detalle"
	if doc.AuthorityMessage != nil {
		detail = *doc.AuthorityMessage
	}

	subject := fmt.Sprintf("[ALERTA] Envío fallido: %s", doc.FullNumber)
	htmlContent := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body>
    <h2>Envío a SUNAT fallido</h2>
    <p>El comprobante <strong>%s</strong> agotó sus intentos de envío.</p>
    <ul>
        <li><strong>ID:</strong> %s</li>
        <li><strong>Último error:</strong> %s</li>
    </ul>
    <p>Revisar el historial de intentos y reenviar manualmente.</p>
</body>
</html>`,
		doc.FullNumber,
		doc.ID,
		detail,
	)

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{s.operatorEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	if _, err := s.client.Emails.Send(params); err != nil {
		return fmt.Errorf("error sending failure alert: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"to":          s.operatorEmail,
	}).Info("Failure alert sent to operator")

	return nil
}
