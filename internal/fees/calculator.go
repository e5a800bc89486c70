package fees

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

// Ставка платформы: 10% с клиента и 10% с исполнителя, симметрично.
var feeRate = decimal.NewFromFloat(0.10)

// Breakdown содержит разбивку комиссий по одному бронированию.
// Все значения округлены до 2 знаков и выводятся только из gross.
type Breakdown struct {
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	ClientFee         decimal.Decimal `json:"client_fee"`
	ProviderFee       decimal.Decimal `json:"provider_fee"`
	PlatformFeeTotal  decimal.Decimal `json:"platform_fee_total"`
	NetProviderAmount decimal.Decimal `json:"net_provider_amount"`
	ClientTotalCharge decimal.Decimal `json:"client_total_charge"`
}

// Calculate считает разбивку комиссий от валовой суммы бронирования.
// Обе стороны платят по 10%, каждая комиссия округляется отдельно,
// platform_fee_total — точная сумма двух комиссий.
func Calculate(gross decimal.Decimal) (Breakdown, error) {
	if gross.IsNegative() {
		return Breakdown{}, apperror.New(apperror.ErrCodeValidation, "сумма не может быть отрицательной")
	}

	gross = gross.Round(2)
	clientFee := gross.Mul(feeRate).Round(2)
	providerFee := gross.Mul(feeRate).Round(2)

	return Breakdown{
		GrossAmount:       gross,
		ClientFee:         clientFee,
		ProviderFee:       providerFee,
		PlatformFeeTotal:  clientFee.Add(providerFee),
		NetProviderAmount: gross.Sub(providerFee),
		ClientTotalCharge: gross.Add(clientFee),
	}, nil
}

// CalculateFromFloat — удобная обёртка для вызова из HTTP слоя.
// Отклоняет NaN и бесконечности до конвертации в decimal.
func CalculateFromFloat(gross float64) (Breakdown, error) {
	if math.IsNaN(gross) || math.IsInf(gross, 0) {
		return Breakdown{}, apperror.New(apperror.ErrCodeValidation, "некорректная сумма")
	}
	return Calculate(decimal.NewFromFloat(gross))
}
