package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// orderEventColumns is the table schema OrderEventRow.Save writes into.
var orderEventColumns = []string{
	"event_id", "event_type", "order_id", "order_number", "user_id", "status",
	"design_type", "order_option", "quantity", "total_price", "occurred_at",
}

// OrderEventRow is one analytics record in the order events table.
type OrderEventRow struct {
	EventID     string    `bigquery:"event_id"`
	EventType   string    `bigquery:"event_type"`
	OrderID     string    `bigquery:"order_id"`
	OrderNumber string    `bigquery:"order_number"`
	UserID      string    `bigquery:"user_id"`
	Status      string    `bigquery:"status"`
	DesignType  string    `bigquery:"design_type"`
	OrderOption string    `bigquery:"order_option"`
	Quantity    int64     `bigquery:"quantity"`
	TotalPrice  string    `bigquery:"total_price"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
}

// Save implements bigquery.ValueSaver so retried inserts dedupe on the event id.
func (r *OrderEventRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"event_id":     r.EventID,
		"event_type":   r.EventType,
		"order_id":     r.OrderID,
		"order_number": r.OrderNumber,
		"user_id":      r.UserID,
		"status":       r.Status,
		"design_type":  r.DesignType,
		"order_option": r.OrderOption,
		"quantity":     r.Quantity,
		"total_price":  r.TotalPrice,
		"occurred_at":  r.OccurredAt,
	}, r.EventID, nil
}
