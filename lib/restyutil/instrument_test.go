package restyutil

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mu       sync.Mutex
	messages map[string]string
}

func (m *memoryOutput) Write(id, contents string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[id] = contents
}

func withLevel(t *testing.T, level slog.Level) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
	slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: level})))
}

func newServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": []}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecordExchangesWhenDebugging(t *testing.T) {
	withLevel(t, slog.LevelDebug)
	srv := newServer(t)

	out := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	RecordExchanges(client, "address", out)

	_, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(`{"Sold_id": {"0": 1}}`)).
		Post(srv.URL)
	require.NoError(t, err)

	require.Len(t, out.messages, 1)
	dump := out.messages["address-0001.txt"]
	require.Contains(t, dump, "---- REQUEST ----")
	require.Contains(t, dump, `{"Sold_id": {"0": 1}}`)
	require.Contains(t, dump, `{"message": []}`)
}

func TestRecordExchangesSilentOtherwise(t *testing.T) {
	withLevel(t, slog.LevelInfo)
	srv := newServer(t)

	out := &memoryOutput{messages: map[string]string{}}
	client := resty.New()
	RecordExchanges(client, "address", out)

	_, err := client.R().SetBody([]byte(`{}`)).Post(srv.URL)
	require.NoError(t, err)
	require.Empty(t, out.messages)
}

func TestFilesystemOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	require.NoError(t, os.MkdirAll(dir, 0777))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old"), 0600))

	out, err := NewFilesystemOutput(dir)
	require.NoError(t, err)
	out.Write("schools-0001.txt", "hello")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	contents, err := os.ReadFile(filepath.Join(dir, "schools-0001.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(contents))
}
