package iso8583

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonanatree/visapay/visa/models"
)

// maxMinorUnits is the largest amount field 4 can carry.
const maxMinorUnits = 999_999_999_999

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount float64) (int64, error) {
	minor := decimal.NewFromFloat(amount).Shift(2).Round(0)
	if minor.IsNegative() || minor.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, &models.ValidationError{Field: "importe", Reason: fmt.Sprintf("%v does not fit field 4", amount)}
	}
	return minor.IntPart(), nil
}

func FromMinorUnits(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}
