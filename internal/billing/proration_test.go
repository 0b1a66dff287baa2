package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProrate(t *testing.T) {
	periodStart := date(2025, time.January, 1)
	periodEnd := date(2025, time.January, 31)

	t.Run("factor is 1 at period start", func(t *testing.T) {
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    periodStart,
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.True(t, result.Factor.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, int64(3000), result.CreditCents)
		assert.Equal(t, int64(9000), result.ChargeCents)
		assert.Equal(t, int64(6000), result.NetCents)
		assert.Equal(t, ProrationCharge, result.Kind)
	})

	t.Run("factor is 0 at period end", func(t *testing.T) {
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    periodEnd,
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.True(t, result.Factor.IsZero())
		assert.Zero(t, result.CreditCents)
		assert.Zero(t, result.ChargeCents)
		assert.Zero(t, result.NetCents)
	})

	t.Run("change date before period start clamps factor to 1", func(t *testing.T) {
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    date(2024, time.December, 15),
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.True(t, result.Factor.Equal(decimal.NewFromInt(1)))
	})

	t.Run("change date after period end clamps factor to 0", func(t *testing.T) {
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    date(2025, time.February, 15),
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.True(t, result.Factor.IsZero())
	})

	t.Run("mid-period upgrade", func(t *testing.T) {
		// 30-day period, change on day 21: 10 days remain.
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    date(2025, time.January, 21),
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.Equal(t, 30, result.DaysTotal)
		assert.Equal(t, 10, result.DaysRemaining)
		assert.Equal(t, int64(1000), result.CreditCents)
		assert.Equal(t, int64(3000), result.ChargeCents)
		assert.Equal(t, int64(2000), result.NetCents)
	})

	t.Run("downgrade yields a credit", func(t *testing.T) {
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    date(2025, time.January, 16),
			OldPriceCents: 9000,
			NewPriceCents: 3000,
		})
		require.NoError(t, err)
		assert.Negative(t, result.NetCents)
		assert.Equal(t, ProrationCredit, result.Kind)
	})

	t.Run("credit and charge reconcile with net within a cent", func(t *testing.T) {
		// Odd prices force rounding on both legs.
		result, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodEnd,
			ChangeDate:    date(2025, time.January, 11),
			OldPriceCents: 3333,
			NewPriceCents: 7777,
		})
		require.NoError(t, err)

		exact := decimal.NewFromInt(7777 - 3333).Mul(result.Factor)
		diff := decimal.NewFromInt(result.NetCents).Sub(exact).Abs()
		assert.True(t, diff.LessThanOrEqual(decimal.NewFromInt(1)),
			"net %d deviates more than 1 cent from exact %s", result.NetCents, exact)
	})

	t.Run("factor stays within bounds", func(t *testing.T) {
		for day := -5; day <= 40; day++ {
			result, err := Prorate(ProrationParams{
				PeriodStart:   periodStart,
				PeriodEnd:     periodEnd,
				ChangeDate:    periodStart.AddDate(0, 0, day),
				OldPriceCents: 5000,
				NewPriceCents: 10000,
			})
			require.NoError(t, err)
			assert.True(t, result.Factor.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, result.Factor.LessThanOrEqual(decimal.NewFromInt(1)))
		}
	})

	t.Run("rejects empty period", func(t *testing.T) {
		_, err := Prorate(ProrationParams{
			PeriodStart:   periodStart,
			PeriodEnd:     periodStart,
			ChangeDate:    periodStart,
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.Error(t, err)
	})

	t.Run("dates normalize to UTC midnight", func(t *testing.T) {
		loc := time.FixedZone("PST", -8*3600)
		result, err := Prorate(ProrationParams{
			PeriodStart:   time.Date(2025, time.January, 1, 10, 30, 0, 0, loc),
			PeriodEnd:     time.Date(2025, time.January, 31, 23, 59, 0, 0, time.UTC),
			ChangeDate:    time.Date(2025, time.January, 21, 4, 0, 0, 0, loc),
			OldPriceCents: 3000,
			NewPriceCents: 9000,
		})
		require.NoError(t, err)
		assert.Equal(t, 30, result.DaysTotal)
		assert.Equal(t, 10, result.DaysRemaining)
	})
}
