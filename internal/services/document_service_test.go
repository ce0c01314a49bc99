package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andes-labs/sunat-service/internal/compliance"
	"github.com/andes-labs/sunat-service/internal/config"
	"github.com/andes-labs/sunat-service/internal/models"
)

func testDocumentService() *DocumentService {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &DocumentService{
		validator: compliance.NewValidator(map[string]decimal.Decimal{
			"PEN": decimal.RequireFromString("2000.00"),
		}, nil),
		cfg:    &config.Config{},
		logger: logger,
	}
}

func strPtr(s string) *string { return &s }

func TestApplyComplianceRejectsUnparsablePaymentDate(t *testing.T) {
	svc := testDocumentService()
	doc := &models.Document{
		Total:    decimal.RequireFromString("3000.00"),
		Currency: "PEN",
	}

	err := svc.applyCompliance(doc, &models.PaymentMeansRequest{
		Code:            "003",
		OperationNumber: strPtr("OP-123"),
		Bank:            strPtr("BCP"),
		PaymentDate:     strPtr("01/06/2025"),
	})

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, string(models.ErrorCodeInvalidRequest), apiErr.ErrorResponse.Error.Code)
	assert.Nil(t, doc.PaymentMeansCode, "un request inválido no debe dejar campos a medias")
}

func TestToResponseSurfacesDescriptorErrors(t *testing.T) {
	svc := testDocumentService()
	doc := &models.Document{
		Total:    decimal.RequireFromString("3000.00"),
		Currency: "PEN",
	}

	// Transferencia de fondos sin banco ni fecha: el veredicto enumera los
	// subcampos faltantes y la respuesta los expone
	require.NoError(t, svc.applyCompliance(doc, &models.PaymentMeansRequest{
		Code:            "003",
		OperationNumber: strPtr("OP-123"),
	}))
	assert.True(t, doc.ComplianceApplies)
	assert.False(t, doc.ComplianceValidated)

	resp := svc.toResponse(doc)
	require.NotNil(t, resp.Compliance)
	assert.False(t, resp.Compliance.Validated)
	assert.Len(t, resp.Compliance.Errors, 2)
	assert.NotEmpty(t, resp.Compliance.Warning)
}

func TestToResponseValidatedHasNoErrors(t *testing.T) {
	svc := testDocumentService()
	doc := &models.Document{
		Total:    decimal.RequireFromString("3000.00"),
		Currency: "PEN",
	}

	require.NoError(t, svc.applyCompliance(doc, &models.PaymentMeansRequest{
		Code:            "001",
		OperationNumber: strPtr("OP-123"),
		Bank:            strPtr("BCP"),
	}))
	assert.True(t, doc.ComplianceValidated)

	resp := svc.toResponse(doc)
	require.NotNil(t, resp.Compliance)
	assert.Empty(t, resp.Compliance.Errors)
	assert.Equal(t, compliance.LegendText, resp.Compliance.Legend)
}
