package tax

import (
	"testing"

	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var icbperRate = decimal.RequireFromString("0.50")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeDomesticTaxedLine(t *testing.T) {
	lines, totals, err := Compute([]LineInput{
		{
			Description:     "Servicio de consultoría",
			Quantity:        dec("2"),
			UnitValue:       dec("100.00"),
			AffectationCode: models.AffectationTaxed,
			IGVPercent:      dec("18"),
		},
	}, models.OperationTypeDomestic, icbperRate)

	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	assert.True(t, line.SaleValue.Equal(dec("200.00")), "sale value = %s", line.SaleValue)
	assert.True(t, line.TaxBase.Equal(dec("200.00")), "tax base = %s", line.TaxBase)
	assert.True(t, line.IGV.Equal(dec("36.00")), "igv = %s", line.IGV)
	assert.True(t, line.GrossUnitPrice.Equal(dec("118.00")), "gross unit = %s", line.GrossUnitPrice)

	assert.True(t, totals.TaxedOps.Equal(dec("200.00")))
	assert.True(t, totals.IGV.Equal(dec("36.00")))
	assert.True(t, totals.Total.Equal(dec("236.00")))
}

func TestComputeExportForcesZeroRate(t *testing.T) {
	lines, totals, err := Compute([]LineInput{
		{
			Description:     "Exportación de servicios",
			Quantity:        dec("2"),
			UnitValue:       dec("100.00"),
			AffectationCode: models.AffectationTaxed,
			IGVPercent:      dec("18"), // la tasa recibida se ignora en exportaciones
		},
	}, models.OperationTypeExport, icbperRate)

	require.NoError(t, err)
	line := lines[0]
	assert.Equal(t, models.AffectationExport, line.AffectationCode)
	assert.True(t, line.IGV.IsZero(), "igv = %s", line.IGV)
	assert.True(t, line.TaxBase.Equal(dec("200.00")), "tax base = %s", line.TaxBase)
	assert.True(t, line.GrossUnitPrice.Equal(dec("100.00")), "gross unit = %s", line.GrossUnitPrice)
	assert.True(t, totals.ExportOps.Equal(dec("200.00")))
	assert.True(t, totals.IGV.IsZero())
	assert.True(t, totals.Total.Equal(dec("200.00")))
}

func TestComputeUntaxedAffectationsHaveZeroBase(t *testing.T) {
	cases := []struct {
		affectation string
	}{
		{models.AffectationExempt},
		{models.AffectationUnaffected},
	}

	for _, tc := range cases {
		lines, _, err := Compute([]LineInput{
			{
				Description:     "Producto",
				Quantity:        dec("1"),
				UnitValue:       dec("50.00"),
				AffectationCode: tc.affectation,
				IGVPercent:      dec("18"),
			},
		}, models.OperationTypeDomestic, icbperRate)

		require.NoError(t, err)
		assert.True(t, lines[0].TaxBase.IsZero(), "affectation %s", tc.affectation)
		assert.True(t, lines[0].IGV.IsZero(), "affectation %s", tc.affectation)
	}
}

func TestComputeZeroQuantityIsValidationError(t *testing.T) {
	_, _, err := Compute([]LineInput{
		{Description: "Inválido", Quantity: decimal.Zero, UnitValue: dec("10.00")},
	}, models.OperationTypeDomestic, icbperRate)

	require.ErrorIs(t, err, ErrZeroQuantity)
}

func TestComputeNegativeUnitValueIsValidationError(t *testing.T) {
	_, _, err := Compute([]LineInput{
		{Description: "Inválido", Quantity: dec("1"), UnitValue: dec("-10.00")},
	}, models.OperationTypeDomestic, icbperRate)

	require.ErrorIs(t, err, ErrNegativeUnitValue)
}

func TestComputeEmptyItems(t *testing.T) {
	_, _, err := Compute(nil, models.OperationTypeDomestic, icbperRate)
	require.ErrorIs(t, err, ErrNoItems)
}

func TestComputeICBPERLevy(t *testing.T) {
	_, totals, err := Compute([]LineInput{
		{
			Description:     "Bolsa plástica",
			Quantity:        dec("3"),
			UnitValue:       dec("0.10"),
			AffectationCode: models.AffectationTaxed,
			IGVPercent:      dec("18"),
			BagQuantity:     3,
		},
	}, models.OperationTypeDomestic, icbperRate)

	require.NoError(t, err)
	assert.True(t, totals.ICBPER.Equal(dec("1.50")), "icbper = %s", totals.ICBPER)
	assert.True(t, totals.TotalTaxes.Equal(totals.IGV.Add(totals.ICBPER)))
}

func TestComputeIsDeterministic(t *testing.T) {
	input := []LineInput{
		{Description: "A", Quantity: dec("3"), UnitValue: dec("33.333333"), AffectationCode: models.AffectationTaxed, IGVPercent: dec("18")},
		{Description: "B", Quantity: dec("7"), UnitValue: dec("0.07"), AffectationCode: models.AffectationExempt},
	}

	_, first, err := Compute(input, models.OperationTypeDomestic, icbperRate)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, again, err := Compute(input, models.OperationTypeDomestic, icbperRate)
		require.NoError(t, err)
		assert.True(t, first.Total.Equal(again.Total))
		assert.True(t, first.IGV.Equal(again.IGV))
	}
}

func TestComputeNoMidCalculationRounding(t *testing.T) {
	// Cantidades fraccionarias no deben acumular deriva de redondeo:
	// el precio bruto por la cantidad debe reconstruir venta + impuesto.
	lines, _, err := Compute([]LineInput{
		{Description: "Granel", Quantity: dec("3.333"), UnitValue: dec("9.99"), AffectationCode: models.AffectationTaxed, IGVPercent: dec("18")},
	}, models.OperationTypeDomestic, icbperRate)

	require.NoError(t, err)
	line := lines[0]
	reconstructed := line.GrossUnitPrice.Mul(line.Quantity)
	diff := reconstructed.Sub(line.SaleValue.Add(line.IGV)).Abs()
	assert.True(t, diff.LessThan(dec("0.000001")), "drift = %s", diff)
}

func TestComputeFreeOperationsExcludedFromTotal(t *testing.T) {
	_, totals, err := Compute([]LineInput{
		{Description: "Venta", Quantity: dec("1"), UnitValue: dec("100.00"), AffectationCode: models.AffectationTaxed, IGVPercent: dec("18")},
		{Description: "Bonificación", Quantity: dec("1"), UnitValue: dec("20.00"), AffectationCode: "11"},
	}, models.OperationTypeDomestic, icbperRate)

	require.NoError(t, err)
	assert.True(t, totals.FreeOps.Equal(dec("20.00")))
	assert.True(t, totals.Subtotal.Equal(dec("100.00")))
	assert.True(t, totals.Total.Equal(dec("118.00")))
}
