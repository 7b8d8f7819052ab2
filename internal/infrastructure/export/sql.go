package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"GradePipeline/internal/domain"
	"GradePipeline/internal/ports"
)

// Dialect is the SQL flavour of the target database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// OpenSQL opens a database handle for a dialect and checks connectivity.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// SQLExporter appends one row per result to a table, keyed by run id.
type SQLExporter struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

var _ ports.Exporter = (*SQLExporter)(nil)

// NewSQLExporter wires a sql.DB implementation.
func NewSQLExporter(db *sql.DB, dialect Dialect, table string) *SQLExporter {
	if table == "" {
		table = "grading_results"
	}
	return &SQLExporter{db: db, dialect: dialect, table: table}
}

// EnsureTable creates the results table when it does not exist.
func (e *SQLExporter) EnsureTable(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	cols := []string{
		"run_id VARCHAR(64) NOT NULL",
		"assignment_id VARCHAR(64) NOT NULL",
	}
	for _, name := range Header(Row(domain.RunResult{})) {
		cols = append(cols, e.quote(name)+" TEXT")
	}
	cols = append(cols, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", e.quote(e.table), strings.Join(cols, ", "))
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", e.table, err)
	}
	return nil
}

// Export inserts every result in one transaction.
func (e *SQLExporter) Export(ctx context.Context, assignmentID, runID string, results []domain.RunResult) (string, error) {
	if len(results) == 0 {
		return "", ErrNothingToExport
	}
	if e.db == nil {
		return "", fmt.Errorf("sql exporter has no database")
	}

	query, args, err := e.insertQuery(assignmentID, runID, results)
	if err != nil {
		return "", err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin export: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("insert results: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}

	return fmt.Sprintf("%s:%s#%s", e.dialect, e.table, runID), nil
}

func (e *SQLExporter) insertQuery(assignmentID, runID string, results []domain.RunResult) (string, []any, error) {
	header := Header(Row(results[0]))
	cols := make([]string, 0, len(header)+2)
	cols = append(cols, "run_id", "assignment_id")
	for _, name := range header {
		cols = append(cols, e.quote(name))
	}

	builder := sq.Insert(e.quote(e.table)).Columns(cols...).PlaceholderFormat(e.placeholders())
	for _, r := range results {
		vals := make([]any, 0, len(cols))
		vals = append(vals, runID, assignmentID)
		for _, v := range values(Row(r)) {
			vals = append(vals, v)
		}
		builder = builder.Values(vals...)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}
	return query, args, nil
}

func (e *SQLExporter) placeholders() sq.PlaceholderFormat {
	if e.dialect == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

func (e *SQLExporter) quote(ident string) string {
	if e.dialect == Postgres {
		return pq.QuoteIdentifier(ident)
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
