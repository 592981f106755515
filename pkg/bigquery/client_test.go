package bigquery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/threadline-backend/pkg/config"
)

func TestOrderEventRowSaveUsesEventIDAsInsertID(t *testing.T) {
	row := &OrderEventRow{EventID: "evt-1", EventType: "order_placed", Quantity: 40, TotalPrice: "1200.00"}

	values, insertID, err := row.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if insertID != "evt-1" {
		t.Fatalf("expected insert id evt-1, got %s", insertID)
	}
	if values["quantity"] != int64(40) {
		t.Fatalf("unexpected quantity %v", values["quantity"])
	}
	if values["total_price"] != "1200.00" {
		t.Fatalf("unexpected total price %v", values["total_price"])
	}
	if len(values) != len(orderEventColumns) {
		t.Fatalf("save writes %d columns, schema check expects %d", len(values), len(orderEventColumns))
	}
	for _, column := range orderEventColumns {
		if _, ok := values[column]; !ok {
			t.Fatalf("save does not write column %s", column)
		}
	}
}

func TestMissingColumns(t *testing.T) {
	full := bigquery.Schema{}
	for _, column := range orderEventColumns {
		full = append(full, &bigquery.FieldSchema{Name: strings.ToUpper(column)})
	}
	if missing := missingColumns(full); len(missing) != 0 {
		t.Fatalf("expected complete schema, missing %v", missing)
	}

	partial := bigquery.Schema{{Name: "event_id"}, {Name: "order_id"}}
	missing := missingColumns(partial)
	if len(missing) != len(orderEventColumns)-2 {
		t.Fatalf("unexpected missing columns %v", missing)
	}
	if missing[0] != "event_type" {
		t.Fatalf("expected event_type first, got %s", missing[0])
	}
}

func TestDescribeInsertErrorNamesRejectedEvents(t *testing.T) {
	batch := []OrderEventRow{{EventID: "evt-a"}, {EventID: "evt-b"}}
	multi := bigquery.PutMultiError{{RowIndex: 1}, {RowIndex: 7}}

	err := describeInsertError(multi, batch)
	if !strings.Contains(err.Error(), "2 rejected (evt-b, row 7)") {
		t.Fatalf("unexpected message %q", err)
	}
	var unwrapped bigquery.PutMultiError
	if !errors.As(err, &unwrapped) {
		t.Fatal("expected the insert error to stay in the chain")
	}

	plain := describeInsertError(errors.New("quota exceeded"), batch)
	if !strings.Contains(plain.Error(), "quota exceeded") {
		t.Fatalf("unexpected message %q", plain)
	}
}

func TestInsertOrderEventsWithoutClient(t *testing.T) {
	var c *Client
	if err := c.InsertOrderEvents(context.Background(), OrderEventRow{EventID: "e"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if err := c.InsertOrderEvents(context.Background()); err != nil {
		t.Fatalf("expected no-op for empty rows, got %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error for nil client")
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project id error, got %v", err)
	}
	gcp := config.GCPConfig{ProjectID: "threadline"}
	if _, err := NewClient(ctx, gcp, config.BigQueryConfig{OrderEventsTable: "t"}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, gcp, config.BigQueryConfig{Dataset: "d", OrderEventsTable: "  "}, nil); !errors.Is(err, errTableNameRequired) {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	cases := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{name: "json wins", gcp: config.GCPConfig{CredentialsJSON: `{"dummy": "value"}`, ApplicationCredentials: "/tmp/creds"}, want: 1},
		{name: "file", gcp: config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, want: 1},
		{name: "ambient", gcp: config.GCPConfig{}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(clientOptions(tc.gcp)); got != tc.want {
				t.Fatalf("expected %d options, got %d", tc.want, got)
			}
		})
	}
}
