package sunat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/models"
)

// ErrTransport marca fallas de transporte o del gateway (timeout, 5xx,
// respuesta malformada). El worker las reintenta; un rechazo de negocio no.
var ErrTransport = errors.New("sunat transport error")

// Result representa la respuesta de SUNAT a un envío. Accepted=false con
// Code poblado es un rechazo de negocio, que es definitivo para ese contenido.
type Result struct {
	Accepted bool
	Code     string
	Message  string
	Hash     string
}

// Client envía comprobantes al gateway de SUNAT
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// NewClient crea una nueva instancia del cliente de SUNAT
func NewClient(cfg config.SUNATConfig, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.AttemptTimeout},
		baseURL:    cfg.APIURL,
		logger:     logger,
	}
}

// submissionPayload es el cuerpo que espera el gateway
type submissionPayload struct {
	DocumentType string            `json:"document_type"`
	Series       string            `json:"series"`
	Correlative  int64             `json:"correlative"`
	IssueDate    string            `json:"issue_date"`
	Currency     string            `json:"currency"`
	RUC          string            `json:"ruc"`
	Items        []submissionItem  `json:"items"`
	Totals       map[string]string `json:"totals"`
}

type submissionItem struct {
	Description     string `json:"description"`
	Quantity        string `json:"quantity"`
	UnitValue       string `json:"unit_value"`
	AffectationCode string `json:"affectation_code"`
	IGV             string `json:"igv"`
}

// submissionResult es la respuesta del gateway
type submissionResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hash    string `json:"hash"`
}

// Submit envía un documento a SUNAT. El contexto acota la duración del
// intento; el llamador decide la política de reintentos.
func (c *Client) Submit(ctx context.Context, company *models.Company, doc *models.Document) (*Result, error) {
	payload := c.buildPayload(company, doc)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling submission payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/documents", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Credenciales SOL: el usuario se compone de RUC + usuario secundario
	req.SetBasicAuth(company.RUC+company.SOLUser, company.SOLPassword)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned %d", ErrTransport, resp.StatusCode)
	}

	var result submissionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrTransport, err)
	}

	c.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"full_number": doc.FullNumber,
		"accepted":    result.Success,
		"sunat_code":  result.Code,
		"latency_ms":  time.Since(start).Milliseconds(),
	}).Info("SUNAT submission completed")

	return &Result{
		Accepted: result.Success,
		Code:     result.Code,
		Message:  result.Message,
		Hash:     result.Hash,
	}, nil
}

// buildPayload arma el cuerpo de envío a partir del documento
func (c *Client) buildPayload(company *models.Company, doc *models.Document) submissionPayload {
	items := make([]submissionItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, submissionItem{
			Description:     it.Description,
			Quantity:        it.Quantity.String(),
			UnitValue:       it.UnitValue.StringFixed(2),
			AffectationCode: it.AffectationCode,
			IGV:             it.IGV.StringFixed(2),
		})
	}

	totals := doc.RoundedTotals()
	return submissionPayload{
		DocumentType: string(doc.DocumentType),
		Series:       doc.Series,
		Correlative:  doc.Correlative,
		IssueDate:    doc.IssueDate.Format("2006-01-02"),
		Currency:     doc.Currency,
		RUC:          company.RUC,
		Items:        items,
		Totals: map[string]string{
			"taxed_ops":      totals.TaxedOps,
			"exempt_ops":     totals.ExemptOps,
			"unaffected_ops": totals.UnaffectedOps,
			"export_ops":     totals.ExportOps,
			"free_ops":       totals.FreeOps,
			"igv":            totals.IGV,
			"icbper":         totals.ICBPER,
			"total":          totals.Total,
		},
	}
}
