package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"propdata-backend/lib/table"
	"propdata-backend/lib/testutil"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func countRows(t testing.TB, db *sql.DB, tableName string) int {
	t.Helper()
	var n int
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM `%s`", tableName)).Scan(&n)
	require.NoError(t, err)
	return n
}

type countRecorder struct {
	counts map[string]int64
}

func (c *countRecorder) ReportBroken(id string, params ...any) {}
func (c *countRecorder) ReportWarning(id string, params ...any) {}
func (c *countRecorder) ReportDebug(msg string, params ...any) {}
func (c *countRecorder) ReportCount(id string, count int64) { c.counts[id] += count }

func uprnBatch(n int) table.Batch {
	b := table.New("Listing_id_ad", "UPRN", "score", "matched_at")
	for i := 0; i < n; i++ {
		b.Append(table.Row{
			"Listing_id_ad": int64(i + 1),
			"UPRN":          int64(100000 + i),
			"score":         0.5,
			"matched_at":    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		})
	}
	return b
}

func TestPersistIsNotIdempotent(t *testing.T) {
	setup := testutil.SetupStore(t, testutil.StoreParams{})
	sink := NewSink(setup.DB, SinkOptions{}, nil)
	ctx := context.Background()

	batch := uprnBatch(3)

	written, err := sink.Persist(ctx, batch, "uprn_matches")
	require.NoError(t, err)
	require.Equal(t, int64(3), written)
	require.Equal(t, 3, countRows(t, setup.DB, "uprn_matches"))

	written, err = sink.Persist(ctx, batch, "uprn_matches")
	require.NoError(t, err)
	require.Equal(t, int64(3), written)
	require.Equal(t, 6, countRows(t, setup.DB, "uprn_matches"))
}

func TestPersistChunks(t *testing.T) {
	setup := testutil.SetupStore(t, testutil.StoreParams{})
	rec := &countRecorder{counts: map[string]int64{}}
	sink := NewSink(setup.DB, SinkOptions{ChunkSize: 2}, rec)

	written, err := sink.Persist(context.Background(), uprnBatch(5), "uprn_matches")
	require.NoError(t, err)
	require.Equal(t, int64(5), written)
	require.Equal(t, 5, countRows(t, setup.DB, "uprn_matches"))
	require.Equal(t, map[string]int64{"reconcile: sink.persist": 5}, rec.counts)

	var uprn int64
	var matchedAt string
	err = setup.DB.QueryRow("SELECT `UPRN`, `matched_at` FROM `uprn_matches` WHERE `Listing_id_ad` = 5").Scan(&uprn, &matchedAt)
	require.NoError(t, err)
	require.Equal(t, int64(100004), uprn)
	require.Contains(t, matchedAt, "2024-05-01")
}

func TestPersistValues(t *testing.T) {
	setup := testutil.SetupStore(t, testutil.StoreParams{})
	sink := NewSink(setup.DB, SinkOptions{}, nil)

	batch := table.New("matcher", "nearest_school", "location")
	batch.Append(table.Row{"matcher": int64(1), "nearest_school": nil, "location": orb.Point{-0.1276, 51.5072}})
	batch.Append(table.Row{"matcher": int64(2), "nearest_school": "St Mary's", "location": nil})

	written, err := sink.Persist(context.Background(), batch, "schools")
	require.NoError(t, err)
	require.Equal(t, int64(2), written)

	var school sql.NullString
	var location sql.NullString
	err = setup.DB.QueryRow("SELECT `nearest_school`, `location` FROM `schools` WHERE `matcher` = 1").Scan(&school, &location)
	require.NoError(t, err)
	require.False(t, school.Valid)
	require.Equal(t, "POINT(-0.1276 51.5072)", location.String)
}

func TestPersistRejects(t *testing.T) {
	setup := testutil.SetupStore(t, testutil.StoreParams{})
	sink := NewSink(setup.DB, SinkOptions{}, nil)
	ctx := context.Background()

	written, err := sink.Persist(ctx, table.New("a"), "empty")
	require.NoError(t, err)
	require.Zero(t, written)

	_, err = sink.Persist(ctx, uprnBatch(1), "bad name; DROP TABLE x")
	require.Error(t, err)

	broken := table.New("a")
	broken.Rows = append(broken.Rows, table.Row{"b": 1})
	_, err = sink.Persist(ctx, broken, "broken")
	require.Error(t, err)

	_, err = NewSink(nil, SinkOptions{}, nil).Persist(ctx, uprnBatch(1), "nowhere")
	require.Error(t, err)
}

func TestRowsPerChunk(t *testing.T) {
	sink := NewSink(nil, SinkOptions{ChunkSize: 1000, MaxParams: 100}, nil)
	require.Equal(t, 25, sink.rowsPerChunk(4))
	require.Equal(t, 1, sink.rowsPerChunk(500))

	sink = NewSink(nil, SinkOptions{}, nil)
	require.Equal(t, DefaultChunkSize, sink.rowsPerChunk(4))
}
