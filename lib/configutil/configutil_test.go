package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Database struct {
		File string `json:"file"`
	} `json:"database"`
	Headers map[string]string `json:"headers"`
	Timeout int               `json:"timeout"`
}

func (c *testConfig) Validate() error {
	if c.Database.File == "" {
		return errors.New("database.file is required")
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	return nil
}

func write(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestReadConfigMergesLocalOverrides(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "config.json5"), `{
		// comments and trailing commas are fine in json5
		database: { file: "listing.db" },
		headers: { "Content-Type": "application/json", },
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{
		database: { file: "listing.local.db" },
	}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "listing.local.db", config.Database.File)
	require.Equal(t, "application/json", config.Headers["Content-Type"])
	require.Equal(t, 30, config.Timeout, "Validate should have filled the default")
}

func TestReadConfigExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, ".env"), "COLLECTOR_TEST_DB=from-dotenv.db\n")
	write(t, filepath.Join(dir, "config.json5"), `{ database: { file: "${COLLECTOR_TEST_DB}" } }`)

	os.Unsetenv("COLLECTOR_TEST_DB")
	t.Cleanup(func() { os.Unsetenv("COLLECTOR_TEST_DB") })
	require.NoError(t, LoadDotenv(filepath.Join(dir, ".env"), filepath.Join(dir, "missing.env")))

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "from-dotenv.db", config.Database.File)
}

func TestReadConfigKeepsValuesIntact(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COLLECTOR_TEST_URL", `mysql://u:p"w\@h/db`)
	t.Setenv("COLLECTOR_TEST_TOKEN", "t0ken")
	write(t, filepath.Join(dir, "config.json5"), `{
		database: { file: "user:pa$sword@tcp(db:3306)/listing" },
		headers: {
			"X-Url": "${COLLECTOR_TEST_URL}",
			"Authorization": "Bearer ${COLLECTOR_TEST_TOKEN}",
			"X-Price": "$5 or ${COLLECTOR_TEST_UNSET}",
		},
	}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "user:pa$sword@tcp(db:3306)/listing", config.Database.File)
	require.Equal(t, `mysql://u:p"w\@h/db`, config.Headers["X-Url"])
	require.Equal(t, "Bearer t0ken", config.Headers["Authorization"])
	require.Equal(t, "$5 or ", config.Headers["X-Price"])
}

func TestReadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)

	write(t, filepath.Join(dir, "config.json5"), `{ timeout: 5 }`)
	_, err = ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.ErrorContains(t, err, "database.file is required")

	write(t, filepath.Join(dir, "config.json5"), `{ timeout: `)
	_, err = ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.Error(t, err)
}
