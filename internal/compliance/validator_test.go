package compliance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator() *Validator {
	return NewValidator(map[string]decimal.Decimal{
		"PEN": decimal.RequireFromString("2000.00"),
		"USD": decimal.RequireFromString("500.00"),
	}, nil)
}

func strPtr(s string) *string { return &s }

func TestEvaluateBelowThresholdDoesNotApply(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("1999.99"), "PEN", nil)

	assert.False(t, verdict.Applies)
	assert.Equal(t, WarningNone, verdict.Warning)
}

func TestEvaluateExactThresholdDoesNotApply(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("2000.00"), "PEN", nil)
	assert.False(t, verdict.Applies)
}

func TestEvaluateAboveThresholdWithoutDescriptor(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("2500.00"), "PEN", nil)

	assert.True(t, verdict.Applies)
	assert.True(t, verdict.Threshold.Equal(decimal.RequireFromString("2000.00")))
	assert.Equal(t, WarningMissingDescriptor, verdict.Warning)
	assert.False(t, verdict.Validated)
}

func TestEvaluateUnknownCurrencyNeverApplies(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("1000000.00"), "EUR", nil)
	assert.False(t, verdict.Applies)
}

func TestEvaluateUSDThreshold(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("500.01"), "USD", nil)
	assert.True(t, verdict.Applies)
}

func TestEvaluateValidDescriptor(t *testing.T) {
	v := testValidator()
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	verdict := v.Evaluate(decimal.RequireFromString("3000.00"), "PEN", &Descriptor{
		Code:            "003",
		OperationNumber: strPtr("OP-12345"),
		Bank:            strPtr("BCP"),
		PaymentDate:     &date,
	})

	assert.True(t, verdict.Applies)
	assert.Equal(t, WarningNone, verdict.Warning)
	assert.True(t, verdict.Validated)
	assert.Empty(t, verdict.Errors)
}

func TestEvaluateDescriptorMissingSubfields(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("3000.00"), "PEN", &Descriptor{
		Code: "003", // transferencia: requiere operación, banco y fecha
	})

	assert.True(t, verdict.Applies)
	assert.Equal(t, WarningInvalidDescriptor, verdict.Warning)
	require.Len(t, verdict.Errors, 3)
	assert.False(t, verdict.Validated)
}

func TestEvaluateUnknownPaymentMeans(t *testing.T) {
	v := testValidator()
	verdict := v.Evaluate(decimal.RequireFromString("3000.00"), "PEN", &Descriptor{
		Code: "999",
	})

	assert.Equal(t, WarningInvalidDescriptor, verdict.Warning)
	require.Len(t, verdict.Errors, 1)
}

func TestEvaluateIsPure(t *testing.T) {
	v := testValidator()
	amount := decimal.RequireFromString("2500.00")
	desc := &Descriptor{Code: "001", OperationNumber: strPtr("123"), Bank: strPtr("BBVA")}

	first := v.Evaluate(amount, "PEN", desc)
	for i := 0; i < 100; i++ {
		again := v.Evaluate(amount, "PEN", desc)
		assert.Equal(t, first.Applies, again.Applies)
		assert.Equal(t, first.Warning, again.Warning)
		assert.Equal(t, first.Validated, again.Validated)
		assert.Equal(t, first.Errors, again.Errors)
	}
}

func TestMeansReturnsInjectedCatalog(t *testing.T) {
	custom := []PaymentMeans{
		{Code: "101", Description: "Billetera digital"},
		{Code: "009", Description: "Letra de cambio", RequiresBank: true},
	}
	v := NewValidator(map[string]decimal.Decimal{"PEN": decimal.RequireFromString("2000.00")}, custom)

	got := v.Means()
	require.Len(t, got, 2)
	assert.Equal(t, "009", got[0].Code)
	assert.Equal(t, "101", got[1].Code)
}
