// Package sql implements the SQL-family Sinker (spec.md §4.4) against any
// database/sql driver, via a small Dialect abstraction grounded on the
// shape (not the TiDB-parser-AST backend) of sql/export's Dialect
// interface: a Dialect builds a Snippet{SQL, Args} for each kind of
// statement the Sinker needs, rather than the Sinker hand-building SQL
// strings per driver.
package sql

import (
	"fmt"
	"strings"

	"github.com/programlife555/ape-dts/internal/event"
)

// Snippet is a parameterized SQL statement, mirroring
// sql/export/sql.go's Snippet{SQL, Args}.
type Snippet struct {
	SQL  string
	Args []any
}

// Dialect builds the statements the Sinker needs. Only the three
// operations spec.md's sink contract actually requires are modeled here
// (upsert, delete, raw DDL passthrough) -- unlike sql/export's Dialect,
// which also builds SELECTs for its read side, since this Sinker is
// write-only.
type Dialect interface {
	// Upsert builds an INSERT ... ON CONFLICT/DUPLICATE KEY UPDATE
	// statement inserting/updating one row.
	Upsert(table event.TableName, columns []string, pkColumns []string, values []any) Snippet

	// Delete builds a DELETE statement for one row identified by pkColumns/pkValues.
	Delete(table event.TableName, pkColumns []string, pkValues []any) Snippet

	// DDL passes statement through verbatim; no schema qualification is
	// added (MySQL's `USE schema;` has no portable equivalent, so the
	// target schema is the one selected by the connection DSN).
	DDL(statement string) Snippet
}

// MySQLDialect targets MySQL/MariaDB via github.com/go-sql-driver/mysql.
type MySQLDialect struct{}

// mysqlQuote is the backtick identifier quote MySQL requires (double quotes
// are only accepted with ANSI_QUOTES sql_mode, which isn't assumed here --
// the same reason internal/sink/foxlake.merge backtick-quotes its own
// MERGE INTO TABLE target).
const mysqlQuote = '`'

// pgQuote is PostgreSQL's standard ANSI double-quote identifier delimiter.
const pgQuote = '"'

func (MySQLDialect) Upsert(table event.TableName, columns []string, pkColumns []string, values []any) Snippet {
	placeholders := strings.Repeat(`?,`, len(columns))
	placeholders = strings.TrimSuffix(placeholders, `,`)

	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if containsString(pkColumns, c) {
			continue
		}
		updates = append(updates, fmt.Sprintf(`%s = VALUES(%s)`, quoteIdentWith(mysqlQuote, c), quoteIdentWith(mysqlQuote, c)))
	}

	sqlStr := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s`,
		quoteTableWith(mysqlQuote, table), joinIdentsWith(mysqlQuote, columns), placeholders, strings.Join(updates, `, `),
	)
	return Snippet{SQL: sqlStr, Args: values}
}

func (MySQLDialect) Delete(table event.TableName, pkColumns []string, pkValues []any) Snippet {
	return Snippet{SQL: deleteSQLWith(mysqlQuote, table, pkColumns), Args: pkValues}
}

func (MySQLDialect) DDL(statement string) Snippet {
	return Snippet{SQL: statement}
}

// PostgresDialect targets PostgreSQL via github.com/lib/pq.
type PostgresDialect struct{}

func (PostgresDialect) Upsert(table event.TableName, columns []string, pkColumns []string, values []any) Snippet {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf(`$%d`, i+1)
	}

	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if containsString(pkColumns, c) {
			continue
		}
		updates = append(updates, fmt.Sprintf(`%s = EXCLUDED.%s`, quoteIdentWith(pgQuote, c), quoteIdentWith(pgQuote, c)))
	}

	sqlStr := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
		quoteTableWith(pgQuote, table), joinIdentsWith(pgQuote, columns), strings.Join(placeholders, `, `),
		joinIdentsWith(pgQuote, pkColumns), strings.Join(updates, `, `),
	)
	return Snippet{SQL: sqlStr, Args: values}
}

func (PostgresDialect) Delete(table event.TableName, pkColumns []string, pkValues []any) Snippet {
	sqlStr := deleteSQLWith(pgQuote, table, pkColumns)
	// rewrite ? placeholders to $N for postgres
	var buf strings.Builder
	n := 0
	for _, r := range sqlStr {
		if r == '?' {
			n++
			fmt.Fprintf(&buf, `$%d`, n)
			continue
		}
		buf.WriteRune(r)
	}
	return Snippet{SQL: buf.String(), Args: pkValues}
}

func (PostgresDialect) DDL(statement string) Snippet {
	return Snippet{SQL: statement}
}

func deleteSQLWith(q byte, table event.TableName, pkColumns []string) string {
	conds := make([]string, len(pkColumns))
	for i, c := range pkColumns {
		conds[i] = fmt.Sprintf(`%s = ?`, quoteIdentWith(q, c))
	}
	return fmt.Sprintf(`DELETE FROM %s WHERE %s`, quoteTableWith(q, table), strings.Join(conds, ` AND `))
}

func quoteTableWith(q byte, table event.TableName) string {
	if table.Schema == `` {
		return quoteIdentWith(q, table.Table)
	}
	return quoteIdentWith(q, table.Schema) + `.` + quoteIdentWith(q, table.Table)
}

// quoteIdentWith quotes s with the dialect's identifier delimiter q,
// doubling any embedded occurrence of q (the escaping both backtick-MySQL
// and double-quote-ANSI identifier quoting share).
func quoteIdentWith(q byte, s string) string {
	qs := string(q)
	return qs + strings.ReplaceAll(s, qs, qs+qs) + qs
}

func joinIdentsWith(q byte, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdentWith(q, c)
	}
	return strings.Join(quoted, `, `)
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
