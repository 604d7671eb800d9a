package testutil

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	configdb "propdata-backend/lib/configutil/database"
	"propdata-backend/lib/telemetry"
)

type StoreParams struct {
	// if unspecified, it will skip setting up a schema
	DbSchema string
	// if unspecified, it will use `:memory:`
	DbPath string
	// statements run after the schema, one per entry
	Seed []string
}

type StoreResult struct {
	DB *sql.DB
}

// SetupStore opens a sqlite database for a test, loads the schema and the
// seed rows into it, and closes it when the test ends.
func SetupStore(t testing.TB, params StoreParams) StoreResult {
	t.Helper()

	telemetry.InitSlog(os.Getenv("TEST_VERBOSE") != "")

	dbpath := ":memory:"
	if params.DbPath != "" {
		dbpath = params.DbPath
	}
	db, err := configdb.Struct{Driver: configdb.DriverSqlite, File: dbpath}.OpenDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if params.DbSchema != "" {
		_, err = db.Exec(params.DbSchema)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			t.Fatal(err)
		}
	}
	for _, stmt := range params.Seed {
		_, err = db.Exec(stmt)
		if err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}

	return StoreResult{DB: db}
}
