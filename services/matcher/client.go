package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"propdata-backend/lib/restyutil"
	"propdata-backend/lib/table"
	"propdata-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/matcher")
var meter = otel.Meter("services/matcher")

var rowsMatchedCounter, _ = meter.Int64Counter(
	"matcher.rows_matched",
	metric.WithDescription("Rows returned by matcher dockers."),
)

// Client posts record batches to the matcher dockers.
type Client struct {
	config Config
	http   *resty.Client
	tel    telemetry.API
}

func NewClient(config Config, tel telemetry.API) (Client, error) {
	err := config.Validate()
	if err != nil {
		return Client{}, err
	}
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}

	client := resty.New()
	client.SetTimeout(config.Timeout())
	telemetry.InstrumentResty(client, "services/matcher/http")

	if config.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(config.DumpDir)
		if err != nil {
			return Client{}, fmt.Errorf("matcher: dump dir: %w", err)
		}
		restyutil.RecordExchanges(client, "matcher", output)
	}

	return Client{
		config: config,
		http:   client,
		tel:    telemetry.NewScopedAPI("matcher", tel),
	}, nil
}

type Request struct {
	// Endpoint is the name of a configured endpoint.
	Endpoint string
	Batch    table.Batch
	// JoinKeys must be columns of Batch, the docker is expected to echo
	// them back on every row.
	JoinKeys []string
	// Envelope nests the payload under a top level key when set.
	Envelope string
}

type Response struct {
	Batch table.Batch
	// Requested is the number of rows that were sent.
	Requested int
	Warning   *PartialMatchWarning
}

type messageBody struct {
	Message json.RawMessage `json:"message"`
}

// Match sends req.Batch to the endpoint in a single POST and returns the
// rows the docker matched.
func (c Client) Match(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "Match")
	defer span.End()

	span.SetAttributes(
		attribute.String("endpoint", req.Endpoint),
		attribute.Int("rows", req.Batch.Len()),
	)

	res, err := c.match(ctx, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.tel.ReportBroken("client.match", "endpoint", req.Endpoint, "err", err)
		return Response{}, err
	}
	return res, nil
}

func (c Client) match(ctx context.Context, req Request, span trace.Span) (Response, error) {
	endpoint, ok := c.config.Endpoints[req.Endpoint]
	if !ok {
		return Response{}, fmt.Errorf("matcher: unknown endpoint %q", req.Endpoint)
	}
	if req.Batch.Len() == 0 {
		return Response{}, fmt.Errorf("matcher %s: batch is empty", req.Endpoint)
	}
	err := req.Batch.Validate()
	if err != nil {
		return Response{}, fmt.Errorf("matcher %s: %w", req.Endpoint, err)
	}
	if len(req.JoinKeys) == 0 {
		return Response{}, fmt.Errorf("matcher %s: no join keys given", req.Endpoint)
	}
	for _, k := range req.JoinKeys {
		if !req.Batch.HasColumn(k) {
			return Response{}, fmt.Errorf("matcher %s: join key %q is not a column of the batch", req.Endpoint, k)
		}
	}

	var body []byte
	if req.Envelope != "" {
		body, err = table.EncodeEnveloped(req.Envelope, req.Batch)
	} else {
		body, err = table.EncodeColumnar(req.Batch)
	}
	if err != nil {
		return Response{}, fmt.Errorf("matcher %s: encode batch: %w", req.Endpoint, err)
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(endpoint.Headers).
		SetBody(body).
		Post(endpoint.URL)
	if err != nil {
		return Response{}, &TransportError{Endpoint: req.Endpoint, URL: endpoint.URL, Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return Response{}, &TransportError{
			Endpoint:   req.Endpoint,
			URL:        endpoint.URL,
			StatusCode: res.StatusCode(),
			Err:        errors.New(res.Status()),
		}
	}

	matched, err := decodeMessage(res.Body(), req.JoinKeys)
	if err != nil {
		return Response{}, &ResponseFormatError{Endpoint: req.Endpoint, Err: err}
	}

	out := Response{Batch: matched, Requested: req.Batch.Len()}
	span.SetAttributes(attribute.Int("matched", matched.Len()))
	rowsMatchedCounter.Add(ctx, int64(matched.Len()), metric.WithAttributes(attribute.String("endpoint", req.Endpoint)))

	if matched.Len() < out.Requested {
		out.Warning = &PartialMatchWarning{
			Endpoint:  req.Endpoint,
			Requested: out.Requested,
			Returned:  matched.Len(),
		}
		c.tel.ReportWarning(
			"client.match",
			"endpoint", req.Endpoint,
			"requested", out.Requested,
			"returned", matched.Len(),
		)
	}
	return out, nil
}

func decodeMessage(body []byte, joinKeys []string) (table.Batch, error) {
	var msg messageBody
	err := json.Unmarshal(body, &msg)
	if err != nil {
		return table.Batch{}, fmt.Errorf("decode body: %w", err)
	}
	if len(msg.Message) == 0 || bytes.Equal(bytes.TrimSpace(msg.Message), []byte("null")) {
		return table.Batch{}, fmt.Errorf(`"message" is missing`)
	}

	matched, err := table.DecodeRecords(msg.Message)
	if err != nil {
		return table.Batch{}, fmt.Errorf(`decode "message": %w`, err)
	}
	if matched.Len() == 0 {
		return matched, nil
	}
	for _, k := range joinKeys {
		if !matched.HasColumn(k) {
			return table.Batch{}, fmt.Errorf("join key %q missing from returned rows", k)
		}
	}
	return matched, nil
}
