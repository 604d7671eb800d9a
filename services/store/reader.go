package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"

	"propdata-backend/lib/table"
	"propdata-backend/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/store")
var meter = otel.Meter("services/store")

var rowsReadCounter, _ = meter.Int64Counter(
	"store.rows_read",
	metric.WithDescription("Rows read from the listing database."),
)

// Reader runs read-only queries against the listing database. The *sql.DB
// is owned by the caller, Reader never closes it.
type Reader struct {
	db     *sql.DB
	tables Tables
	tel    telemetry.API
}

func NewReader(db *sql.DB, tables Tables, tel telemetry.API) Reader {
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	return Reader{
		db:     db,
		tables: tables.withDefaults(),
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

func (r Reader) Tables() Tables {
	return r.tables
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// ReadBatch returns at most batchSize rows matching q, skipping the first
// offset rows. The returned batch has exactly the requested columns, or
// every column of the table when q.Columns is empty.
func (r Reader) ReadBatch(ctx context.Context, q Query, batchSize, offset int) (table.Batch, error) {
	ctx, span := tracer.Start(ctx, "ReadBatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("table", q.Table),
		attribute.Int("batch_size", batchSize),
		attribute.Int("offset", offset),
	)

	if batchSize <= 0 {
		return table.Batch{}, fail(span, queryErrorf("read batch", "batch size must be positive, got %d", batchSize))
	}
	if offset < 0 {
		return table.Batch{}, fail(span, queryErrorf("read batch", "offset must not be negative, got %d", offset))
	}

	batch, err := r.query(ctx, "read batch", q, &batchSize, &offset)
	if err != nil {
		return table.Batch{}, fail(span, err)
	}
	return batch, nil
}

// ReadAll returns every row matching q.
func (r Reader) ReadAll(ctx context.Context, q Query) (table.Batch, error) {
	ctx, span := tracer.Start(ctx, "ReadAll")
	defer span.End()

	span.SetAttributes(attribute.String("table", q.Table))

	batch, err := r.query(ctx, "read all", q, nil, nil)
	if err != nil {
		return table.Batch{}, fail(span, err)
	}
	return batch, nil
}

// EachBatch pages through q with increasing offsets, calling fn for every
// non-empty page, and stops after the first short page or when fn returns
// an error.
func (r Reader) EachBatch(ctx context.Context, q Query, batchSize int, fn func(table.Batch) error) error {
	if len(q.OrderBy) == 0 {
		r.tel.ReportWarning(
			"reader.each-batch",
			"table", q.Table,
			"err", "paging without ORDER BY, rows may repeat or be skipped across pages",
		)
	}

	offset := 0
	for {
		batch, err := r.ReadBatch(ctx, q, batchSize, offset)
		if err != nil {
			return err
		}
		if batch.Len() > 0 {
			err = fn(batch)
			if err != nil {
				return err
			}
		}
		if batch.Len() < batchSize {
			return nil
		}
		offset += batchSize
	}
}

func (r Reader) query(ctx context.Context, op string, q Query, limit, offset *int) (table.Batch, error) {
	if r.db == nil {
		return table.Batch{}, &UnavailableError{Op: op, Err: errors.New("no database configured")}
	}

	stmt, args, err := q.Build(limit, offset)
	if err != nil {
		return table.Batch{}, &QueryError{Op: op, Err: err}
	}
	r.tel.ReportDebug("query", "sql", stmt, "args", args)

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return table.Batch{}, classify(op, stmt, err)
	}
	defer rows.Close()

	batch, err := scanBatch(rows)
	if err != nil {
		return table.Batch{}, classify(op, stmt, err)
	}
	rowsReadCounter.Add(ctx, int64(batch.Len()), metric.WithAttributes(attribute.String("table", q.Table)))
	return batch, nil
}

func scanBatch(rows *sql.Rows) (table.Batch, error) {
	columns, err := rows.Columns()
	if err != nil {
		return table.Batch{}, err
	}

	batch := table.New(columns...)
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		err = rows.Scan(dest...)
		if err != nil {
			return table.Batch{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(table.Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		batch.Rows = append(batch.Rows, row)
	}
	err = rows.Err()
	if err != nil {
		return table.Batch{}, err
	}
	return batch, nil
}

// normalize turns driver values into the value types a Batch carries.
func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		// BIGINT UNSIGNED above the int64 range
		if v > math.MaxInt64 {
			return strconv.FormatUint(v, 10)
		}
		return int64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}
