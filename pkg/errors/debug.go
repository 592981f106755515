package errors

import (
	"errors"
	"fmt"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 8

// Diagnostics is the log-only view of a failure. None of it reaches clients.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	// Server-side fields, set when a Postgres driver error is in the chain.
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
}

// Diagnose walks err's wrap chain and lifts the Postgres error fields from
// whichever driver produced them (pgx v5, pgconn v1 or lib/pq).
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error(), Code: CodeOf(err)}
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		d.Chain = append(d.Chain, fmt.Sprintf("%T", e))
	}

	var pgxErr *pgconn.PgError
	var legacyErr *pgconnv1.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.SQLState, d.Constraint, d.Table, d.Column, d.Detail = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail
	case errors.As(err, &legacyErr):
		d.SQLState, d.Constraint, d.Table, d.Column, d.Detail = legacyErr.Code, legacyErr.ConstraintName, legacyErr.TableName, legacyErr.ColumnName, legacyErr.Detail
	case errors.As(err, &pqErr):
		d.SQLState, d.Constraint, d.Table, d.Column, d.Detail = string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail
	}
	return d
}

// Fields renders the diagnostics as structured log fields, skipping empty
// database fields so ordinary validation failures stay short.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
	}
	for key, value := range map[string]string{
		"sql_state":     d.SQLState,
		"db_constraint": d.Constraint,
		"db_table":      d.Table,
		"db_column":     d.Column,
		"db_detail":     d.Detail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
