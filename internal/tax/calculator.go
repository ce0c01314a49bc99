// Package tax implementa el cálculo de montos e impuestos de líneas de
// documentos fiscales. Todo el cálculo usa aritmética decimal exacta; el
// redondeo a 2 decimales ocurre solo en la frontera de presentación.
package tax

import (
	"errors"
	"fmt"

	"github.com/andes-labs/sunat-service/internal/models"
	"github.com/shopspring/decimal"
)

// Errores de validación de entrada. Se rechazan antes de cualquier cálculo.
var (
	ErrZeroQuantity      = errors.New("line quantity must be greater than zero")
	ErrNegativeUnitValue = errors.New("line unit value must not be negative")
	ErrNoItems           = errors.New("document requires at least one line item")
)

// LineInput representa una línea cruda, antes de ser valorizada
type LineInput struct {
	Description     string
	UnitCode        string
	Quantity        decimal.Decimal
	UnitValue       decimal.Decimal
	AffectationCode string
	IGVPercent      decimal.Decimal
	BagQuantity     int64
}

// Line representa una línea valorizada con sus impuestos
type Line struct {
	Description     string
	UnitCode        string
	Quantity        decimal.Decimal
	UnitValue       decimal.Decimal
	AffectationCode string
	IGVPercent      decimal.Decimal
	BagQuantity     int64

	SaleValue      decimal.Decimal
	TaxBase        decimal.Decimal
	IGV            decimal.Decimal
	ICBPER         decimal.Decimal
	TotalTaxes     decimal.Decimal
	GrossUnitPrice decimal.Decimal
}

// Totals representa los totales del documento
type Totals struct {
	TaxedOps      decimal.Decimal
	ExemptOps     decimal.Decimal
	UnaffectedOps decimal.Decimal
	ExportOps     decimal.Decimal
	FreeOps       decimal.Decimal
	IGV           decimal.Decimal
	ICBPER        decimal.Decimal
	TotalTaxes    decimal.Decimal
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// taxedAffectations es el conjunto de códigos de afectación gravados
var taxedAffectations = map[string]bool{
	models.AffectationTaxed:     true,
	models.AffectationTaxedIVAP: true,
}

// freeAffectations cubre las operaciones gratuitas del catálogo 07
// (retiros, bonificaciones y transferencias a título gratuito)
var freeAffectations = map[string]bool{
	"11": true, "12": true, "13": true, "14": true, "15": true, "16": true,
	"21": true,
	"31": true, "32": true, "33": true, "34": true, "35": true, "36": true,
}

// Compute valoriza las líneas y acumula los totales del documento. Es una
// función pura: mismo input produce siempre el mismo output.
//
// Para operaciones de exportación (tipo 0200) la tasa de IGV se fuerza a 0 y
// la afectación al código 40 para toda línea, sin importar lo recibido; la
// base imponible es igual al valor de venta y no se grava impuesto alguno.
func Compute(items []LineInput, operationType string, icbperRate decimal.Decimal) ([]models.LineItem, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, ErrNoItems
	}

	isExport := operationType == models.OperationTypeExport

	lines := make([]models.LineItem, 0, len(items))
	var totals Totals

	for i, in := range items {
		if in.Quantity.Sign() <= 0 {
			return nil, Totals{}, fmt.Errorf("line %d: %w", i+1, ErrZeroQuantity)
		}
		if in.UnitValue.Sign() < 0 {
			return nil, Totals{}, fmt.Errorf("line %d: %w", i+1, ErrNegativeUnitValue)
		}

		affectation := in.AffectationCode
		if affectation == "" {
			affectation = models.AffectationTaxed
		}
		igvPercent := in.IGVPercent
		if isExport {
			affectation = models.AffectationExport
			igvPercent = decimal.Zero
		}

		unitCode := in.UnitCode
		if unitCode == "" {
			unitCode = "NIU"
		}

		saleValue := in.Quantity.Mul(in.UnitValue)

		var taxBase, igv decimal.Decimal
		switch {
		case isExport:
			// En exportaciones la base imponible es el valor de venta,
			// pero no se grava IGV
			taxBase = saleValue
			igv = decimal.Zero
		case taxedAffectations[affectation]:
			taxBase = saleValue
			igv = taxBase.Mul(igvPercent).Div(hundred)
		default:
			taxBase = decimal.Zero
			igv = decimal.Zero
		}

		var icbper decimal.Decimal
		if in.BagQuantity > 0 {
			icbper = icbperRate.Mul(decimal.NewFromInt(in.BagQuantity))
		}

		totalTaxes := igv.Add(icbper)
		grossUnitPrice := saleValue.Add(igv).Div(in.Quantity)

		lines = append(lines, models.LineItem{
			LineNo:          i + 1,
			Description:     in.Description,
			UnitCode:        unitCode,
			Quantity:        in.Quantity,
			UnitValue:       in.UnitValue,
			AffectationCode: affectation,
			IGVPercent:      igvPercent,
			BagQuantity:     in.BagQuantity,
			SaleValue:       saleValue,
			TaxBase:         taxBase,
			IGV:             igv,
			ICBPER:          icbper,
			TotalTaxes:      totalTaxes,
			GrossUnitPrice:  grossUnitPrice,
		})

		switch {
		case affectation == models.AffectationExport:
			totals.ExportOps = totals.ExportOps.Add(saleValue)
		case taxedAffectations[affectation]:
			totals.TaxedOps = totals.TaxedOps.Add(saleValue)
		case affectation == models.AffectationExempt:
			totals.ExemptOps = totals.ExemptOps.Add(saleValue)
		case affectation == models.AffectationUnaffected:
			totals.UnaffectedOps = totals.UnaffectedOps.Add(saleValue)
		case freeAffectations[affectation]:
			totals.FreeOps = totals.FreeOps.Add(saleValue)
		default:
			totals.UnaffectedOps = totals.UnaffectedOps.Add(saleValue)
		}

		if !freeAffectations[affectation] {
			totals.Subtotal = totals.Subtotal.Add(saleValue)
			totals.IGV = totals.IGV.Add(igv)
			totals.ICBPER = totals.ICBPER.Add(icbper)
		}
	}

	totals.TotalTaxes = totals.IGV.Add(totals.ICBPER)
	totals.Total = totals.Subtotal.Add(totals.TotalTaxes)

	return lines, totals, nil
}

// Apply copia las líneas valorizadas y los totales sobre el documento
func Apply(doc *models.Document, lines []models.LineItem, totals Totals) {
	doc.Items = lines
	doc.TaxedOps = totals.TaxedOps
	doc.ExemptOps = totals.ExemptOps
	doc.UnaffectedOps = totals.UnaffectedOps
	doc.ExportOps = totals.ExportOps
	doc.FreeOps = totals.FreeOps
	doc.IGV = totals.IGV
	doc.ICBPER = totals.ICBPER
	doc.TotalTaxes = totals.TotalTaxes
	doc.Subtotal = totals.Subtotal
	doc.Total = totals.Total
}
