package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusUnprocessableEntity, publicMsg: "order cannot be fulfilled with current stock", detailsOK: true},
		{code: CodeConcurrency, status: http.StatusConflict, publicMsg: "resource busy, retry the request", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestCodeOfAndRetryable(t *testing.T) {
	conflict := Wrap(CodeConcurrency, stdErrors.New("lock timeout"), "deduct material")
	if CodeOf(conflict) != CodeConcurrency {
		t.Fatalf("unexpected code %s", CodeOf(conflict))
	}
	if !IsRetryable(conflict) {
		t.Fatal("expected concurrency conflict to be retryable")
	}
	if IsRetryable(New(CodeInsufficientStock, "short")) {
		t.Fatal("insufficient stock must not be retryable")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatal("untyped errors should map to internal")
	}
	if IsRetryable(nil) {
		t.Fatal("nil error is not retryable")
	}
}

func TestDiagnoseLiftsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23503",
		ConstraintName: "orders_product_id_fkey",
		TableName:      "orders",
		Detail:         "Key (product_id) is not present in table \"products\".",
	}
	err := Wrap(CodeNotFound, fmt.Errorf("insert order: %w", pgErr), "create order")

	d := Diagnose(err)
	if d.Code != CodeNotFound {
		t.Fatalf("expected not found code, got %s", d.Code)
	}
	if d.SQLState != "23503" || d.Constraint != "orders_product_id_fkey" || d.Table != "orders" {
		t.Fatalf("unexpected database fields: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %v", d.Chain)
	}

	fields := d.Fields()
	if fields["db_constraint"] != "orders_product_id_fkey" {
		t.Fatalf("expected constraint field, got %v", fields)
	}
	if _, ok := fields["db_column"]; ok {
		t.Fatal("empty database fields should be omitted")
	}
}

func TestDiagnosePlainError(t *testing.T) {
	d := Diagnose(stdErrors.New("boom"))
	if d.Code != CodeInternal || d.SQLState != "" {
		t.Fatalf("unexpected diagnostics: %+v", d)
	}
	if _, ok := d.Fields()["sql_state"]; ok {
		t.Fatal("sql_state should be omitted without a database error")
	}
	if got := Diagnose(nil); got.Message != "" || got.Chain != nil {
		t.Fatalf("expected empty diagnostics for nil, got %+v", got)
	}
}
