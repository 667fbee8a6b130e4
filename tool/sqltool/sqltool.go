// Package sqltool exposes a SQLite database to models through three tools:
// list_tables, run_sqlite_query and describe_tables.
package sqltool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/chainkit/tool"
)

// Tool names exposed to models.
const (
	ListTablesName     = "list_tables"
	RunQueryName       = "run_sqlite_query"
	DescribeTablesName = "describe_tables"
)

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return db, nil
}

// QueryArgs are the run_sqlite_query arguments.
type QueryArgs struct {
	Query string `json:"query" jsonschema:"SQLite query to run"`
}

// DescribeArgs are the describe_tables arguments.
type DescribeArgs struct {
	TableNames []string `json:"table_names" jsonschema:"names of the tables to describe"`
}

// Toolkit binds the SQL tools to one database handle.
type Toolkit struct {
	db      *sql.DB
	toolOpt []func(o *tool.Options)
}

// New creates a toolkit for db. toolOpts are applied to every tool.
func New(db *sql.DB, toolOpts ...func(o *tool.Options)) *Toolkit {
	return &Toolkit{db: db, toolOpt: toolOpts}
}

// Tools returns list_tables, run_sqlite_query and describe_tables.
func (k *Toolkit) Tools() ([]tool.Tool, error) {
	list := tool.NewFunctionTool(ListTablesName,
		"List the names of all tables in the SQLite database.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, _ map[string]any) (any, error) { return k.ListTables(ctx) },
		k.toolOpt...,
	)

	query, err := tool.NewTypedTool(RunQueryName, "Run a sqlite query.",
		func(ctx context.Context, args QueryArgs) (any, error) { return k.RunQuery(ctx, args.Query) },
		k.toolOpt...,
	)
	if err != nil {
		return nil, err
	}

	describe, err := tool.NewTypedTool(DescribeTablesName, "Given a list of table names, returns the schema of those tables.",
		func(ctx context.Context, args DescribeArgs) (any, error) { return k.DescribeTables(ctx, args.TableNames) },
		k.toolOpt...,
	)
	if err != nil {
		return nil, err
	}

	return []tool.Tool{list, query, describe}, nil
}

// ListTables returns the table names, one per line.
func (k *Toolkit) ListTables(ctx context.Context) (string, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan table name: %w", err)
		}
		if name.Valid {
			names = append(names, name.String)
		}
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	return strings.Join(names, "\n"), nil
}

// RunQuery executes query and returns all rows as slices of column values.
// SQL errors are not returned as errors; the message is handed back as text
// so a model can correct its query. Context errors are returned.
func (k *Toolkit) RunQuery(ctx context.Context, query string) (any, error) {
	rows, err := k.db.QueryContext(ctx, query)
	if err != nil {
		return sqlFailure(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return sqlFailure(ctx, err)
	}

	result := [][]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return sqlFailure(ctx, err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return sqlFailure(ctx, err)
	}

	return result, nil
}

func sqlFailure(ctx context.Context, err error) (any, error) {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, err
	}
	return fmt.Sprintf("The following error occurred: %v", err), nil
}

// DescribeTables returns the CREATE statements of the named tables, one per
// line. Unknown names are ignored.
func (k *Toolkit) DescribeTables(ctx context.Context, tableNames []string) (string, error) {
	if len(tableNames) == 0 {
		return "", nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tableNames)), ",")
	args := make([]any, len(tableNames))
	for i, n := range tableNames {
		args[i] = n
	}

	q := fmt.Sprintf(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name IN (%s) ORDER BY name`, placeholders)

	rows, err := k.db.QueryContext(ctx, q, args...)
	if err != nil {
		return "", fmt.Errorf("describe tables: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt sql.NullString
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan table schema: %w", err)
		}
		if stmt.Valid {
			stmts = append(stmts, stmt.String)
		}
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("describe tables: %w", err)
	}

	return strings.Join(stmts, "\n"), nil
}
