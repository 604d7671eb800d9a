package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"propdata-backend/lib/table"
	"propdata-backend/lib/telemetry"
	"propdata-backend/services/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("services/reconcile")
var meter = otel.Meter("services/reconcile")

var rowsPersistedCounter, _ = meter.Int64Counter(
	"reconcile.rows_persisted",
	metric.WithDescription("Rows appended to result tables."),
)

const (
	DefaultChunkSize = 1000
	// sqlite's default SQLITE_MAX_VARIABLE_NUMBER, mysql allows 65535
	DefaultMaxParams = 32766
)

type SinkOptions struct {
	// ChunkSize is the number of rows inserted per transaction, defaults
	// to DefaultChunkSize.
	ChunkSize int `json:"chunk_size"`
	// MaxParams caps the bind parameters of a single INSERT, chunks are
	// shrunk to fit when a batch has many columns.
	MaxParams int `json:"max_params"`
}

// Sink appends result batches to tables in the store.
type Sink struct {
	db        *sql.DB
	chunkSize int
	maxParams int
	tel       telemetry.API
}

func NewSink(db *sql.DB, options SinkOptions, tel telemetry.API) Sink {
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	if options.MaxParams <= 0 {
		options.MaxParams = DefaultMaxParams
	}
	return Sink{
		db:        db,
		chunkSize: options.ChunkSize,
		maxParams: options.MaxParams,
		tel:       telemetry.NewScopedAPI("reconcile", tel),
	}
}

// rowsPerChunk is the chunk size shrunk so that one INSERT never binds
// more than maxParams values.
func (s Sink) rowsPerChunk(columns int) int {
	n := s.chunkSize
	if columns*n > s.maxParams {
		n = s.maxParams / columns
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Persist appends every row of batch to tableName, creating the table when
// it does not exist yet. Each chunk is inserted in its own transaction, so
// on failure the rows of earlier chunks stay written and their count is
// returned with the error. Persisting the same batch twice writes its rows
// twice.
func (s Sink) Persist(ctx context.Context, batch table.Batch, tableName string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Persist")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", tableName),
		attribute.Int("rows", batch.Len()),
	)

	written, err := s.persist(ctx, batch, tableName)
	if written > 0 {
		rowsPersistedCounter.Add(ctx, written, metric.WithAttributes(attribute.String("table", tableName)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken("sink.persist", "table", tableName, "written", written, "err", err)
		return written, err
	}
	return written, nil
}

func (s Sink) persist(ctx context.Context, batch table.Batch, tableName string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("persist: no database configured")
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if len(batch.Columns) == 0 {
		return 0, fmt.Errorf("persist: batch has rows but no columns")
	}
	err := batch.Validate()
	if err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}

	quotedTable, err := store.QuoteIdent(tableName)
	if err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}
	quotedCols := make([]string, len(batch.Columns))
	for i, c := range batch.Columns {
		quotedCols[i], err = store.QuoteIdent(c)
		if err != nil {
			return 0, fmt.Errorf("persist: column: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, createTableStmt(quotedTable, quotedCols, batch))
	if err != nil {
		return 0, fmt.Errorf("create table %s: %w", tableName, err)
	}

	perChunk := s.rowsPerChunk(len(batch.Columns))
	var written int64
	for start := 0; start < batch.Len(); start += perChunk {
		end := min(start+perChunk, batch.Len())
		n, err := s.insertChunk(ctx, quotedTable, quotedCols, batch.Columns, batch.Rows[start:end])
		if err != nil {
			return written, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
		written += n
	}
	s.tel.ReportCount("sink.persist", written)
	return written, nil
}

func (s Sink) insertChunk(ctx context.Context, quotedTable string, quotedCols, columns []string, rows []table.Row) (int64, error) {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var stmt strings.Builder
	stmt.WriteString("INSERT INTO ")
	stmt.WriteString(quotedTable)
	stmt.WriteString(" (")
	stmt.WriteString(strings.Join(quotedCols, ", "))
	stmt.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteString(placeholders)
		for _, c := range columns {
			args = append(args, table.Scalar(r[c]))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, stmt.String(), args...)
	if err != nil {
		return 0, err
	}
	err = tx.Commit()
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// createTableStmt infers each column's type from its first non-nil value.
func createTableStmt(quotedTable string, quotedCols []string, batch table.Batch) string {
	defs := make([]string, len(quotedCols))
	for i, c := range batch.Columns {
		defs[i] = quotedCols[i] + " " + columnType(batch, c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quotedTable, strings.Join(defs, ", "))
}

func columnType(batch table.Batch, column string) string {
	for _, r := range batch.Rows {
		switch r[column].(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint8, uint16, uint32, bool:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case time.Time, *time.Time:
			return "DATETIME"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}
