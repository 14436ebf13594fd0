package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSplitEvenlySumsExactly(t *testing.T) {
	amounts := []string{"1000", "100", "0.05", "33.33", "1234.57", "999999.99", "10.005"}
	for _, raw := range amounts {
		amount := decimal.RequireFromString(raw)
		for n := 1; n <= 7; n++ {
			shares := splitEvenly(amount, n)
			assert.Len(t, shares, n)

			sum := decimal.Zero
			for _, s := range shares {
				sum = sum.Add(s)
			}
			assert.True(t, sum.Equal(amount), "amount %s over %d: shares sum to %s", raw, n, sum)

			for i := 1; i < n; i++ {
				assert.True(t, shares[i].Equal(shares[1]), "only the first share may differ")
				assert.True(t, shares[0].GreaterThanOrEqual(shares[i]))
			}
		}
	}
}

func TestSplitEvenlyGivesResidualToFirst(t *testing.T) {
	shares := splitEvenly(decimal.RequireFromString("100"), 3)

	assert.Equal(t, "33.34", shares[0].StringFixed(2))
	assert.Equal(t, "33.33", shares[1].StringFixed(2))
	assert.Equal(t, "33.33", shares[2].StringFixed(2))
}
