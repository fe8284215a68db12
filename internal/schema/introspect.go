// Package schema produces a bounded, deterministic structural description of
// the data database for prompt construction. Only structure is emitted, never
// data values; the output is echoed into a generation prompt.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/AbhiSondakar/NLIDB/internal/gateway"
)

const defaultMaxTables = 50

// Distinct sentinel errors so callers can tell an empty database apart from an
// allow-list that filtered everything out. Describe never returns a silent
// empty string.
var (
	ErrNoTables        = errors.New("no tables found in the database; the read-only role may lack privileges")
	ErrNoAllowedTables = errors.New("no tables match the allowed list")
)

type Column struct {
	Name     string
	DataType string
}

type Table struct {
	Name    string
	Columns []Column
}

type Introspector struct {
	DB        *sql.DB
	Driver    gateway.Driver
	MaxTables int
}

// Tables lists base tables with their ordered columns, filtered by the
// optional allow-list and capped at MaxTables. The cap keeps the
// name-ordered prefix so repeated runs describe the same tables.
func (in *Introspector) Tables(ctx context.Context, allowList []string) ([]Table, error) {
	if in.DB == nil {
		return nil, fmt.Errorf("introspect: no database connection configured")
	}

	rows, err := in.DB.QueryContext(ctx, columnsQuery, in.schemaName())
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []Table
	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return nil, fmt.Errorf("introspect scan: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != tableName {
			tables = append(tables, Table{Name: tableName})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: columnName, DataType: dataType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect rows: %w", err)
	}

	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	if len(allowList) > 0 {
		allowed := make(map[string]struct{}, len(allowList))
		for _, name := range allowList {
			allowed[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
		}
		filtered := tables[:0]
		for _, table := range tables {
			if _, ok := allowed[strings.ToLower(table.Name)]; ok {
				filtered = append(filtered, table)
			}
		}
		tables = filtered
		if len(tables) == 0 {
			return nil, ErrNoAllowedTables
		}
	}

	maxTables := in.MaxTables
	if maxTables <= 0 {
		maxTables = defaultMaxTables
	}
	if len(tables) > maxTables {
		tables = tables[:maxTables]
	}
	return tables, nil
}

// Describe renders the structural description as CREATE TABLE blocks, the
// shape generation models are most reliably trained on.
func (in *Introspector) Describe(ctx context.Context, allowList []string) (string, error) {
	tables, err := in.Tables(ctx, allowList)
	if err != nil {
		return "", err
	}
	return Render(tables), nil
}

func (in *Introspector) schemaName() string {
	if in.Driver == gateway.DriverDuckDB {
		return "main"
	}
	return "public"
}

// ORDER BY makes the output deterministic and makes the table cap a stable
// prefix rather than a sample.
const columnsQuery = `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns AS c
JOIN information_schema.tables AS t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

func Render(tables []Table) string {
	var out strings.Builder
	for _, table := range tables {
		out.WriteString("CREATE TABLE ")
		out.WriteString(table.Name)
		out.WriteString(" (\n")
		for i, column := range table.Columns {
			out.WriteString("  ")
			out.WriteString(column.Name)
			out.WriteString(" ")
			out.WriteString(column.DataType)
			if i < len(table.Columns)-1 {
				out.WriteString(",")
			}
			out.WriteString("\n")
		}
		out.WriteString(");\n\n")
	}
	return out.String()
}
