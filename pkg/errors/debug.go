package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump flattens an error chain and any driver detail into log fields.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Driver     string `json:"driver,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	UniqueViolation     bool `json:"unique_violation,omitempty"`
	ForeignKeyViolation bool `json:"foreign_key_violation,omitempty"`
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	sqliteUniquePrefix = "UNIQUE constraint failed: "
	sqliteForeignKey   = "FOREIGN KEY constraint failed"
)

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.Driver = "pgx"
		d.setPG(pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.ColumnName, pgxErr.Detail, pgxErr.Message)
	case errors.As(err, &pqErr):
		d.Driver = "pq"
		d.setPG(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	default:
		d.fromSQLiteText(d.TopMessage)
	}
	return d
}

func (d *ErrorDump) setPG(code, constraint, table, column, detail, message string) {
	d.PGCode = code
	d.PGConstraint = constraint
	d.PGTable = table
	d.PGColumn = column
	d.PGDetail = detail
	d.PGMessage = message
	d.UniqueViolation = code == pgUniqueViolation
	d.ForeignKeyViolation = code == pgForeignKeyViolation
}

// fromSQLiteText recognizes the sqlite constraint messages. SQLite names the
// columns ("order_items.order_id, order_items.product_info_id") where
// Postgres names the index, so the column list lands in PGConstraint.
func (d *ErrorDump) fromSQLiteText(msg string) {
	if i := strings.Index(msg, sqliteUniquePrefix); i >= 0 {
		d.Driver = "sqlite"
		d.UniqueViolation = true
		d.PGConstraint = strings.TrimSpace(msg[i+len(sqliteUniquePrefix):])
		return
	}
	if strings.Contains(msg, sqliteForeignKey) {
		d.Driver = "sqlite"
		d.ForeignKeyViolation = true
	}
}
