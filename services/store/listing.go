package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"propdata-backend/lib/table"

	"go.opentelemetry.io/otel/attribute"
)

// Tables names the tables and views of the listing database.
type Tables struct {
	SoldView     string `json:"sold_view"`
	Address      string `json:"address"`
	Listing      string `json:"listing"`
	SoldProperty string `json:"sold_property"`
	Transaction  string `json:"transaction"`
}

func DefaultTables() Tables {
	return Tables{
		SoldView:     "mainView",
		Address:      "address",
		Listing:      "listing",
		SoldProperty: "sold_property",
		Transaction:  "transaction",
	}
}

func (t Tables) withDefaults() Tables {
	def := DefaultTables()
	if t.SoldView == "" {
		t.SoldView = def.SoldView
	}
	if t.Address == "" {
		t.Address = def.Address
	}
	if t.Listing == "" {
		t.Listing = def.Listing
	}
	if t.SoldProperty == "" {
		t.SoldProperty = def.SoldProperty
	}
	if t.Transaction == "" {
		t.Transaction = def.Transaction
	}
	return t
}

// ReadDateRange returns every column of the sold view for properties sold
// on or after start. When end is given the filter becomes
// `Sold_date BETWEEN end AND start`, so start has to be the later of the
// two dates or nothing comes back.
func (r Reader) ReadDateRange(ctx context.Context, start time.Time, end *time.Time) (table.Batch, error) {
	ctx, span := tracer.Start(ctx, "ReadDateRange")
	defer span.End()

	span.SetAttributes(attribute.String("start", start.Format(time.DateOnly)))

	q := Query{Table: r.tables.SoldView}
	if end == nil {
		q.Where = []Criterion{Gte("Sold_date", start)}
	} else {
		span.SetAttributes(attribute.String("end", end.Format(time.DateOnly)))
		q.Where = []Criterion{Between("Sold_date", *end, start)}
	}

	batch, err := r.query(ctx, "read date range", q, nil, nil)
	if err != nil {
		return table.Batch{}, fail(span, err)
	}
	return batch, nil
}

// UnmatchedListingAddresses pages through the addresses of listings that
// have no UPRN yet.
func (r Reader) UnmatchedListingAddresses(ctx context.Context, batchSize, offset int) (table.Batch, error) {
	return r.ReadBatch(ctx, Query{
		Table:   r.tables.Address,
		Columns: []string{"Listing_id_ad", "Found_address"},
		Where: []Criterion{
			InSelect("Listing_id_ad", Query{
				Table:   r.tables.Listing,
				Columns: []string{"idListing"},
				Where:   []Criterion{IsNull("Property_UPRN")},
			}),
			NotNull("Found_address"),
		},
		OrderBy: []string{"Listing_id_ad"},
	}, batchSize, offset)
}

// UnmatchedSoldAddresses returns the first batchSize sold properties that
// have no UPRN. Matched rows drop out of this set once written back, so
// there is no offset.
func (r Reader) UnmatchedSoldAddresses(ctx context.Context, batchSize int) (table.Batch, error) {
	return r.ReadBatch(ctx, r.unmatchedSold(), batchSize, 0)
}

// AllUnmatchedSoldAddresses returns every sold property without a UPRN.
func (r Reader) AllUnmatchedSoldAddresses(ctx context.Context) (table.Batch, error) {
	return r.ReadAll(ctx, r.unmatchedSold())
}

func (r Reader) unmatchedSold() Query {
	return Query{
		Table:   r.tables.SoldProperty,
		Columns: []string{"Sold_id", "Address"},
		Where:   []Criterion{IsNull("UPRN")},
		OrderBy: []string{"Sold_id"},
	}
}

type Transaction struct {
	Price    float64
	SoldDate time.Time
}

type SoldTransactions struct {
	SoldID       int64
	Transactions []Transaction
}

// Transactions returns the sale history of the given sold properties
// between from and to (inclusive), grouped per property. Properties with no
// transactions in the range are left out.
func (r Reader) Transactions(ctx context.Context, soldIDs []int64, from, to time.Time) ([]SoldTransactions, error) {
	ctx, span := tracer.Start(ctx, "Transactions")
	defer span.End()

	span.SetAttributes(attribute.Int("ids", len(soldIDs)))

	if len(soldIDs) == 0 {
		return nil, fail(span, queryErrorf("transactions", "no sold ids given"))
	}
	ids := make([]any, len(soldIDs))
	for i, id := range soldIDs {
		ids[i] = id
	}

	batch, err := r.query(ctx, "transactions", Query{
		Table:   r.tables.Transaction,
		Columns: []string{"Sold_id_transaction", "Price", "Sold_date"},
		Where: []Criterion{
			In("Sold_id_transaction", ids...),
			Between("Sold_date", from, to),
		},
		OrderBy: []string{"Sold_id_transaction", "Sold_date"},
	}, nil, nil)
	if err != nil {
		return nil, fail(span, err)
	}

	grouped := map[int64]*SoldTransactions{}
	for i, row := range batch.Rows {
		id, err := asInt64(row["Sold_id_transaction"])
		if err != nil {
			return nil, fail(span, queryErrorf("transactions", "row %d: Sold_id_transaction: %v", i, err))
		}
		price, err := asFloat64(row["Price"])
		if err != nil {
			return nil, fail(span, queryErrorf("transactions", "row %d: Price: %v", i, err))
		}
		date, err := asTime(row["Sold_date"])
		if err != nil {
			return nil, fail(span, queryErrorf("transactions", "row %d: Sold_date: %v", i, err))
		}

		group, ok := grouped[id]
		if !ok {
			group = &SoldTransactions{SoldID: id}
			grouped[id] = group
		}
		group.Transactions = append(group.Transactions, Transaction{
			Price:    price,
			SoldDate: date,
		})
	}

	out := make([]SoldTransactions, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SoldID < out[j].SoldID
	})
	return out, nil
}

func asInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}

func asFloat64(v any) (float64, error) {
	switch v := v.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}

var dateLayouts = []string{
	time.DateTime,
	time.DateOnly,
	time.RFC3339Nano,
}

func asTime(v any) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range dateLayouts {
			t, err := time.Parse(layout, v)
			if err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", v)
	default:
		return time.Time{}, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}
