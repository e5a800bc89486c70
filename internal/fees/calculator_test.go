package fees

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashar-khursheed/care-platform-backend/internal/pkg/apperror"
)

func TestCalculate_StandardAmount(t *testing.T) {
	b, err := Calculate(decimal.NewFromFloat(100.00))
	require.NoError(t, err)

	assert.Equal(t, "10", b.ClientFee.String())
	assert.Equal(t, "10", b.ProviderFee.String())
	assert.Equal(t, "20", b.PlatformFeeTotal.String())
	assert.Equal(t, "90", b.NetProviderAmount.String())
	assert.Equal(t, "110", b.ClientTotalCharge.String())
}

func TestCalculate_Zero(t *testing.T) {
	b, err := Calculate(decimal.Zero)
	require.NoError(t, err)

	assert.True(t, b.ClientFee.IsZero())
	assert.True(t, b.ProviderFee.IsZero())
	assert.True(t, b.PlatformFeeTotal.IsZero())
	assert.True(t, b.NetProviderAmount.IsZero())
	assert.True(t, b.ClientTotalCharge.IsZero())
}

func TestCalculate_NegativeRejected(t *testing.T) {
	_, err := Calculate(decimal.NewFromFloat(-0.01))
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestCalculate_Invariants(t *testing.T) {
	amounts := []string{"0.01", "0.05", "1", "33.33", "99.99", "100", "1234.56", "99999.99", "1000000"}

	for _, raw := range amounts {
		gross := decimal.RequireFromString(raw)
		b, err := Calculate(gross)
		require.NoError(t, err, raw)

		// Обе стороны платят симметричные 10%, каждая комиссия округлена отдельно.
		assert.True(t, b.ClientFee.Equal(b.ProviderFee), raw)
		assert.True(t, b.ClientFee.Equal(gross.Mul(decimal.NewFromFloat(0.10)).Round(2)), raw)

		// Точные тождества, без погрешностей.
		assert.True(t, b.PlatformFeeTotal.Equal(b.ClientFee.Add(b.ProviderFee)), raw)
		assert.True(t, b.NetProviderAmount.Equal(gross.Sub(b.ProviderFee)), raw)
		assert.True(t, b.ClientTotalCharge.Equal(gross.Add(b.ClientFee)), raw)

		// Сохранение денег: net + platform_total == gross + client_fee == client_total.
		assert.True(t, b.NetProviderAmount.Add(b.PlatformFeeTotal).Equal(b.ClientTotalCharge), raw)
	}
}

func TestCalculate_RoundingHalfUp(t *testing.T) {
	// 0.05 * 0.10 = 0.005 — округляется вверх до 0.01.
	b, err := Calculate(decimal.RequireFromString("0.05"))
	require.NoError(t, err)
	assert.Equal(t, "0.01", b.ClientFee.String())
	assert.Equal(t, "0.04", b.NetProviderAmount.String())
}

func TestCalculateFromFloat_RejectsNonFinite(t *testing.T) {
	_, err := CalculateFromFloat(math.NaN())
	assert.True(t, apperror.IsValidation(err))

	_, err = CalculateFromFloat(math.Inf(1))
	assert.True(t, apperror.IsValidation(err))

	_, err = CalculateFromFloat(-5)
	assert.True(t, apperror.IsValidation(err))
}
