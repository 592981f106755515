package payments

import (
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Classify maps the running total of an order's payments to a status.
func Classify(sum, orderTotal decimal.Decimal) enums.PaymentStatus {
	switch {
	case sum.IsPositive() && sum.GreaterThanOrEqual(orderTotal):
		return enums.PaymentStatusFullyPaid
	case sum.IsPositive():
		return enums.PaymentStatusPartiallyPaid
	default:
		return enums.PaymentStatusInReview
	}
}

// Sum adds the applied amounts of every payment row.
func Sum(rows []models.OrderPayment) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.AmountApplied)
	}
	return total
}
