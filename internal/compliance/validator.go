// Package compliance implementa la validación de bancarización según la
// Ley N° 28194: las operaciones que superan un umbral por moneda deben
// declarar un medio de pago bancario válido para ser deducibles.
package compliance

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Warning clasifica el veredicto de la validación
type Warning string

const (
	WarningNone              Warning = ""
	WarningMissingDescriptor Warning = "missing_payment_means"
	WarningInvalidDescriptor Warning = "invalid_payment_means"
)

// Legend de bancarización que se adjunta al documento cuando aplica
const (
	LegendCode = "2005"
	LegendText = "OPERACIÓN SUJETA A BANCARIZACIÓN - LEY N° 28194"
)

// PaymentMeans describe un medio de pago permitido del catálogo de
// bancarización y los subcampos que exige.
type PaymentMeans struct {
	Code                    string
	Description             string
	RequiresOperationNumber bool
	RequiresBank            bool
	RequiresDate            bool
}

// Descriptor representa el medio de pago declarado en un documento
type Descriptor struct {
	Code            string
	OperationNumber *string
	Bank            *string
	PaymentDate     *time.Time
	Notes           *string
}

// Verdict es el resultado de la evaluación. Es derivable puramente de
// (monto, moneda, descriptor): mismos inputs producen siempre el mismo
// veredicto.
type Verdict struct {
	Applies   bool
	Threshold decimal.Decimal
	Warning   Warning
	Errors    []string
	Validated bool
}

// Validator evalúa bancarización contra una tabla de umbrales inyectada
// (configurable por región, nunca constantes globales) y una tabla de
// referencia de medios de pago.
type Validator struct {
	thresholds map[string]decimal.Decimal
	means      map[string]PaymentMeans
}

// DefaultPaymentMeans devuelve el catálogo de medios de pago admitidos
func DefaultPaymentMeans() []PaymentMeans {
	return []PaymentMeans{
		{Code: "001", Description: "Depósito en cuenta", RequiresOperationNumber: true, RequiresBank: true},
		{Code: "002", Description: "Giro", RequiresOperationNumber: true, RequiresBank: true},
		{Code: "003", Description: "Transferencia de fondos", RequiresOperationNumber: true, RequiresBank: true, RequiresDate: true},
		{Code: "004", Description: "Orden de pago", RequiresOperationNumber: true, RequiresBank: true},
		{Code: "005", Description: "Tarjeta de débito", RequiresBank: true},
		{Code: "006", Description: "Tarjeta de crédito", RequiresBank: true},
		{Code: "007", Description: "Cheque no negociable", RequiresOperationNumber: true, RequiresBank: true, RequiresDate: true},
		{Code: "008", Description: "Remesa", RequiresOperationNumber: true},
	}
}

// NewValidator crea un validador con la tabla de umbrales dada y el
// catálogo de medios de pago indicado (nil usa el catálogo por defecto)
func NewValidator(thresholds map[string]decimal.Decimal, means []PaymentMeans) *Validator {
	if means == nil {
		means = DefaultPaymentMeans()
	}
	table := make(map[string]PaymentMeans, len(means))
	for _, m := range means {
		table[m.Code] = m
	}
	return &Validator{thresholds: thresholds, means: table}
}

// Applies decide si la operación supera el umbral de su moneda.
// Monedas sin umbral configurado nunca aplican.
func (v *Validator) Applies(total decimal.Decimal, currency string) bool {
	threshold, ok := v.thresholds[currency]
	if !ok {
		return false
	}
	return total.GreaterThan(threshold)
}

// Threshold devuelve el umbral de la moneda, si existe
func (v *Validator) Threshold(currency string) (decimal.Decimal, bool) {
	threshold, ok := v.thresholds[currency]
	return threshold, ok
}

// Means devuelve el catálogo de medios de pago en orden estable por código
func (v *Validator) Means() []PaymentMeans {
	codes := make([]string, 0, len(v.means))
	for code := range v.means {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]PaymentMeans, 0, len(codes))
	for _, code := range codes {
		out = append(out, v.means[code])
	}
	return out
}

// ValidateDescriptor valida el medio de pago contra la tabla de referencia.
// Devuelve errores enumerados, no un booleano: cada subcampo faltante
// produce su propio error.
func (v *Validator) ValidateDescriptor(desc Descriptor) []string {
	means, ok := v.means[desc.Code]
	if !ok {
		return []string{fmt.Sprintf("el medio de pago %q no es válido o no está activo", desc.Code)}
	}

	var errs []string
	if means.RequiresOperationNumber && (desc.OperationNumber == nil || *desc.OperationNumber == "") {
		errs = append(errs, fmt.Sprintf("el medio de pago %q requiere número de operación", means.Description))
	}
	if means.RequiresBank && (desc.Bank == nil || *desc.Bank == "") {
		errs = append(errs, fmt.Sprintf("el medio de pago %q requiere especificar el banco", means.Description))
	}
	if means.RequiresDate && desc.PaymentDate == nil {
		errs = append(errs, fmt.Sprintf("el medio de pago %q requiere fecha de pago", means.Description))
	}
	return errs
}

// Evaluate produce el veredicto combinado de bancarización para el monto,
// la moneda y el descriptor dados. No consulta estado externo.
func (v *Validator) Evaluate(total decimal.Decimal, currency string, desc *Descriptor) Verdict {
	verdict := Verdict{}

	threshold, ok := v.thresholds[currency]
	if !ok || !total.GreaterThan(threshold) {
		return verdict
	}

	verdict.Applies = true
	verdict.Threshold = threshold

	if desc == nil || desc.Code == "" {
		verdict.Warning = WarningMissingDescriptor
		return verdict
	}

	if errs := v.ValidateDescriptor(*desc); len(errs) > 0 {
		verdict.Warning = WarningInvalidDescriptor
		verdict.Errors = errs
		return verdict
	}

	verdict.Validated = true
	return verdict
}

// WarningMessage genera el mensaje legal de advertencia cuando la operación
// supera el umbral sin un medio de pago válido
func (v *Validator) WarningMessage(currency string) string {
	threshold := v.thresholds[currency]
	symbol := "S/"
	if currency != "PEN" {
		symbol = "US$"
	}
	return fmt.Sprintf(
		"ADVERTENCIA LEGAL: esta operación supera el umbral de bancarización (%s %s). "+
			"Según la Ley N° 28194, sin un medio de pago bancario válido el gasto no será "+
			"deducible para Impuesto a la Renta ni otorgará crédito fiscal de IGV.",
		symbol, threshold.StringFixed(2),
	)
}
