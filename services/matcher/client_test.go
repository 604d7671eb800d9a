package matcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"propdata-backend/lib/table"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type recordingAPI struct {
	mu       sync.Mutex
	warnings []string
	broken   []string
}

func (r *recordingAPI) ReportBroken(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = append(r.broken, id)
}

func (r *recordingAPI) ReportWarning(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, id)
}

func (r *recordingAPI) ReportDebug(msg string, params ...any) {}
func (r *recordingAPI) ReportCount(id string, count int64) {}

// docker is a fake matcher docker. It records the decoded request body and
// answers with whatever respond returns.
type docker struct {
	t       testing.TB
	server  *httptest.Server
	mu      sync.Mutex
	bodies  []map[string]any
	headers []http.Header
}

func newDocker(t testing.TB, respond func(body map[string]any) (int, string)) *docker {
	d := &docker{t: t}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]any
		err = json.Unmarshal(raw, &body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		d.mu.Lock()
		d.bodies = append(d.bodies, body)
		d.headers = append(d.headers, r.Header.Clone())
		d.mu.Unlock()

		status, out := respond(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(out))
	}))
	t.Cleanup(d.server.Close)
	return d
}

func newTestClient(t testing.TB, endpoints map[string]string) (Client, *recordingAPI) {
	config := Config{Endpoints: map[string]EndpointConfig{}}
	for name, url := range endpoints {
		config.Endpoints[name] = EndpointConfig{
			URL:     url,
			Headers: map[string]string{"X-Collector": "test"},
		}
	}
	rec := &recordingAPI{}
	client, err := NewClient(config, rec)
	require.NoError(t, err)
	return client, rec
}

func addresses() table.Batch {
	b := table.New("id", "Found_address")
	b.Append(table.Row{"id": int64(1), "Found_address": "1 Mill Lane, Leeds"})
	b.Append(table.Row{"id": int64(2), "Found_address": "2 Mill Lane, Leeds"})
	b.Append(table.Row{"id": int64(3), "Found_address": "3 Mill Lane, Leeds"})
	return b
}

func TestMatchPartial(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": [
			{"id": 1, "Found_address": "1 Mill Lane, Leeds", "UPRN": 72001},
			{"id": 3, "Found_address": "3 Mill Lane, Leeds", "UPRN": 72003}
		]}`
	})
	client, rec := newTestClient(t, map[string]string{EndpointAddress: d.server.URL + "/match"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	res, err := client.Match(ctx, Request{
		Endpoint: EndpointAddress,
		Batch:    addresses(),
		JoinKeys: []string{"id"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Batch.Len())
	require.Equal(t, 3, res.Requested)
	require.Equal(t, &PartialMatchWarning{Endpoint: EndpointAddress, Requested: 3, Returned: 2}, res.Warning)
	require.Equal(t, []string{"matcher: client.match"}, rec.warnings)
	require.Equal(t, []string{"id", "Found_address", "UPRN"}, res.Batch.Columns)
	require.Equal(t, int64(72003), res.Batch.Rows[1]["UPRN"])

	require.Len(t, d.bodies, 1)
	diff := cmp.Diff(map[string]any{
		"id": map[string]any{"0": float64(1), "1": float64(2), "2": float64(3)},
		"Found_address": map[string]any{
			"0": "1 Mill Lane, Leeds",
			"1": "2 Mill Lane, Leeds",
			"2": "3 Mill Lane, Leeds",
		},
	}, d.bodies[0])
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "application/json", d.headers[0].Get("Content-Type"))
	require.Equal(t, "test", d.headers[0].Get("X-Collector"))
}

func TestMatchComplete(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": [{"id": 1}, {"id": 2}, {"id": 3}]}`
	})
	client, rec := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})

	res, err := client.Match(context.Background(), Request{
		Endpoint: EndpointAddress,
		Batch:    addresses(),
		JoinKeys: []string{"id"},
	})
	require.NoError(t, err)
	require.Nil(t, res.Warning)
	require.Empty(t, rec.warnings)
}

func TestMatchMissingMessage(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"detail": "no model loaded"}`
	})
	client, rec := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})

	original := addresses()
	before := original.Clone()

	res, err := client.Match(context.Background(), Request{
		Endpoint: EndpointAddress,
		Batch:    original,
		JoinKeys: []string{"id"},
	})
	require.ErrorIs(t, err, ErrResponseFormat)
	var formatErr *ResponseFormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, EndpointAddress, formatErr.Endpoint)
	require.Equal(t, Response{}, res)
	require.Equal(t, []string{"matcher: client.match"}, rec.broken)

	diff := cmp.Diff(before, original)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestMatchBadResponses(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"not json", `<html>bad gateway</html>`},
		{"null message", `{"message": null}`},
		{"message is columnar", `{"message": {"id": {"0": 1}}}`},
		{"rows are not objects", `{"message": [1, 2, 3]}`},
		{"join key missing", `{"message": [{"UPRN": 1}]}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDocker(t, func(body map[string]any) (int, string) {
				return http.StatusOK, tc.body
			})
			client, _ := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})

			_, err := client.Match(context.Background(), Request{
				Endpoint: EndpointAddress,
				Batch:    addresses(),
				JoinKeys: []string{"id"},
			})
			require.ErrorIs(t, err, ErrResponseFormat)
		})
	}
}

func TestMatchTransportErrors(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusInternalServerError, `{"message": []}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})

	_, err := client.Match(context.Background(), Request{
		Endpoint: EndpointAddress,
		Batch:    addresses(),
		JoinKeys: []string{"id"},
	})
	require.ErrorIs(t, err, ErrTransport)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	client, _ = newTestClient(t, map[string]string{EndpointAddress: closed.URL})
	_, err = client.Match(context.Background(), Request{
		Endpoint: EndpointAddress,
		Batch:    addresses(),
		JoinKeys: []string{"id"},
	})
	require.ErrorIs(t, err, ErrTransport)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second * 5):
		}
	}))
	t.Cleanup(slow.Close)
	client, _ = newTestClient(t, map[string]string{EndpointAddress: slow.URL})
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
	defer cancel()
	_, err = client.Match(ctx, Request{
		Endpoint: EndpointAddress,
		Batch:    addresses(),
		JoinKeys: []string{"id"},
	})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchRejectsRequests(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": []}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})
	ctx := context.Background()

	_, err := client.Match(ctx, Request{Endpoint: "unknown", Batch: addresses(), JoinKeys: []string{"id"}})
	require.Error(t, err)

	_, err = client.Match(ctx, Request{Endpoint: EndpointAddress, Batch: table.New("id"), JoinKeys: []string{"id"}})
	require.Error(t, err)

	_, err = client.Match(ctx, Request{Endpoint: EndpointAddress, Batch: addresses(), JoinKeys: []string{"Sold_id"}})
	require.Error(t, err)

	_, err = client.Match(ctx, Request{Endpoint: EndpointAddress, Batch: addresses()})
	require.Error(t, err)

	require.Empty(t, d.bodies, "nothing should have been sent")
}

func TestFindUPRN(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": [{"Sold_id": 10, "Address": "Flat 1, Sea View", "UPRN": 90010}]}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointAddress: d.server.URL})

	sold := table.New("Sold_id", "Address")
	sold.Append(table.Row{"Sold_id": int64(10), "Address": "Flat 1, Sea View"})

	res, err := client.FindUPRN(context.Background(), sold)
	require.NoError(t, err)
	require.Nil(t, res.Warning)
	require.Equal(t, int64(90010), res.Batch.Rows[0]["UPRN"])

	_, err = client.FindUPRN(context.Background(), table.Batch{})
	require.Error(t, err)
}

func soldView() table.Batch {
	b := table.New("matcher", "Sold_id", "Full_postcode", "LATITUDE", "LONGITUDE")
	b.Append(table.Row{"matcher": int64(1), "Sold_id": int64(1), "Full_postcode": "LS1 4AP", "LATITUDE": 53.7965, "LONGITUDE": -1.5478})
	b.Append(table.Row{"matcher": int64(2), "Sold_id": int64(2), "Full_postcode": "M1 1AE", "LATITUDE": nil, "LONGITUDE": nil})
	b.Append(table.Row{"matcher": int64(3), "Sold_id": int64(3), "Full_postcode": "YO1 7HH", "LATITUDE": "53.9620", "LONGITUDE": "-1.0819"})
	return b
}

func TestMobileInternet(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": [
			{"matcher": 1, "Full_postcode": "LS14AP", "avg_download": 72.5, "4g_coverage": true},
			{"matcher": 3, "Full_postcode": "YO17HH", "avg_download": 31.0, "4g_coverage": false}
		]}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointMobile: d.server.URL})

	res, err := client.MobileInternet(context.Background(), soldView())
	require.NoError(t, err)
	require.Equal(t, 3, res.Requested)
	require.NotNil(t, res.Warning)

	var sent []string
	for k := range d.bodies[0] {
		sent = append(sent, k)
	}
	sort.Strings(sent)
	require.Equal(t, []string{"Full_postcode", "matcher"}, sent)

	merged := res.Batch
	require.Equal(t, 3, merged.Len())
	require.Equal(t,
		[]string{"matcher", "Sold_id", "Full_postcode", "LATITUDE", "LONGITUDE", "avg_download", "4g_coverage"},
		merged.Columns,
	)
	require.Equal(t, "LS1 4AP", merged.Rows[0]["Full_postcode"])
	require.Equal(t, 72.5, merged.Rows[0]["avg_download"])
	require.Nil(t, merged.Rows[1]["avg_download"])
	require.Equal(t, false, merged.Rows[2]["4g_coverage"])
}

func TestSchoolTransportMetro(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": [
			{"matcher": 1, "LATITUDE": 53.7965, "LONGITUDE": -1.5478, "nearest_school": "Leeds Grammar", "metro_km": 0.4},
			{"matcher": 3, "LATITUDE": 53.962, "LONGITUDE": -1.0819, "nearest_school": "St Peter's", "metro_km": 2.1}
		]}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointSchools: d.server.URL})

	res, err := client.SchoolTransportMetro(context.Background(), soldView())
	require.NoError(t, err)
	require.Equal(t, 2, res.Requested, "the row without coordinates is not sent")
	require.Nil(t, res.Warning)

	require.Len(t, d.bodies, 1)
	coords, ok := d.bodies[0]["coordinates"].(map[string]any)
	require.True(t, ok, "payload is wrapped under coordinates")
	require.Equal(t, map[string]any{"0": float64(1), "1": float64(3)}, coords["matcher"])
	require.Equal(t, map[string]any{"0": 53.7965, "1": 53.962}, coords["LATITUDE"])

	merged := res.Batch
	require.Equal(t, 3, merged.Len())
	require.Equal(t, "Leeds Grammar", merged.Rows[0]["nearest_school"])
	require.Nil(t, merged.Rows[1]["nearest_school"])
	require.Equal(t, "53.9620", merged.Rows[2]["LATITUDE"], "original coordinates are kept")
}

func TestSchoolTransportMetroNoCoordinates(t *testing.T) {
	d := newDocker(t, func(body map[string]any) (int, string) {
		return http.StatusOK, `{"message": []}`
	})
	client, _ := newTestClient(t, map[string]string{EndpointSchools: d.server.URL})

	b := table.New("matcher", "LATITUDE", "LONGITUDE")
	b.Append(table.Row{"matcher": int64(1), "LATITUDE": nil, "LONGITUDE": nil})

	res, err := client.SchoolTransportMetro(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, b, res.Batch)
	require.Empty(t, d.bodies)
}
