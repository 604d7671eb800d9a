package matcher

import (
	"context"
	"fmt"

	"propdata-backend/lib/table"
	"propdata-backend/services/reconcile"
)

const MatcherColumn = "matcher"

// FindUPRN sends a batch of addresses to the address matching docker. The
// first column of the batch identifies the row (Listing_id_ad or Sold_id)
// and is the join key. The returned rows are the docker's matches as is,
// callers usually hand them to a reconcile.Sink.
func (c Client) FindUPRN(ctx context.Context, addresses table.Batch) (Response, error) {
	if len(addresses.Columns) == 0 {
		return Response{}, fmt.Errorf("find uprn: batch has no columns")
	}
	return c.Match(ctx, Request{
		Endpoint: EndpointAddress,
		Batch:    addresses,
		JoinKeys: []string{addresses.Columns[0]},
	})
}

// MobileInternet looks up mobile and broadband coverage by postcode and
// merges it onto batch. The returned Response carries the merged batch.
func (c Client) MobileInternet(ctx context.Context, batch table.Batch) (Response, error) {
	sent, err := batch.Project(MatcherColumn, "Full_postcode")
	if err != nil {
		return Response{}, fmt.Errorf("mobile internet: %w", err)
	}

	res, err := c.Match(ctx, Request{
		Endpoint: EndpointMobile,
		Batch:    sent,
		JoinKeys: []string{MatcherColumn},
	})
	if err != nil {
		return Response{}, err
	}

	merged, err := reconcile.Merge(batch, res.Batch, []string{MatcherColumn}, "Full_postcode")
	if err != nil {
		return Response{}, fmt.Errorf("mobile internet: %w", err)
	}
	res.Batch = merged
	return res, nil
}

// SchoolTransportMetro looks up the nearest schools, transport and metro
// stations by coordinates and merges them onto batch. Rows without usable
// coordinates are not sent and end up with nil for the looked up columns.
func (c Client) SchoolTransportMetro(ctx context.Context, batch table.Batch) (Response, error) {
	coords, err := batch.Project(MatcherColumn, "LATITUDE", "LONGITUDE")
	if err != nil {
		return Response{}, fmt.Errorf("school transport metro: %w", err)
	}

	sent := table.New(coords.Columns...)
	for _, r := range coords.Rows {
		p, ok := table.Point(r, "LATITUDE", "LONGITUDE")
		if !ok {
			c.tel.ReportDebug("skipping row without coordinates", "matcher", r[MatcherColumn])
			continue
		}
		sent.Append(table.Row{
			MatcherColumn: r[MatcherColumn],
			"LATITUDE":    p.Lat(),
			"LONGITUDE":   p.Lon(),
		})
	}
	if sent.Len() == 0 {
		return Response{Batch: batch.Clone()}, nil
	}

	res, err := c.Match(ctx, Request{
		Endpoint: EndpointSchools,
		Batch:    sent,
		JoinKeys: []string{MatcherColumn},
		Envelope: "coordinates",
	})
	if err != nil {
		return Response{}, err
	}

	merged, err := reconcile.Merge(batch, res.Batch, []string{MatcherColumn}, "LATITUDE", "LONGITUDE")
	if err != nil {
		return Response{}, fmt.Errorf("school transport metro: %w", err)
	}
	res.Batch = merged
	return res, nil
}
