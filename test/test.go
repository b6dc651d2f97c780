package test

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"

	"placementd/models/db"
	"placementd/setup"
)

// SetUp connects to the test database and prepares every model's queries.
// Tests that need Postgres are skipped when no server is reachable.
func SetUp(t testing.TB) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		os.Setenv("DATABASE_URL", "postgres://placementd@localhost:5432/placementd_test?sslmode=disable&timezone=UTC")
	}
	if err := setup.DB(setup.DefaultConnection, 10); err != nil {
		if strings.Contains(err.Error(), "Could not establish a database connection") {
			t.Skipf("skipping, could not connect to the test database: %s", err)
		}
		t.Fatal(err)
	}
}

// TruncateTables deletes all records from the database.
func TruncateTables(t testing.TB) error {
	getTableDelete := func(table string) string {
		return "DELETE FROM " + table
	}
	var name string
	if t == nil {
		name = "TruncateTables"
	} else {
		name = t.Name()
	}
	_, err := db.Conn.Exec(fmt.Sprintf("-- %s\n%s;\n%s;\n%s;\n%s;\n%s;\n%s",
		name,
		getTableDelete("job_views"),
		getTableDelete("job_applications"),
		getTableDelete("job_department_stats"),
		getTableDelete("jobs"),
		getTableDelete("students"),
		getTableDelete("departments"),
	))
	return err
}

// TearDown deletes all records from the database, and marks the test as failed
// if this was unsuccessful.
func TearDown(t testing.TB) {
	t.Helper()
	if db.Connected() {
		if err := TruncateTables(t); err != nil {
			t.Fatal(err)
		}
	}
}

// Assert fails the test if result is false.
func Assert(t testing.TB, result bool, message string) {
	t.Helper()
	if !result {
		t.Fatal(message)
	}
}

// AssertEquals fails the test if the two values are not ==.
func AssertEquals(t testing.TB, one interface{}, two interface{}) {
	t.Helper()
	if one != two {
		t.Fatalf("expected %v to equal %v", one, two)
	}
}

// AssertDeepEquals fails the test if the two values are not deeply equal.
func AssertDeepEquals(t testing.TB, one interface{}, two interface{}) {
	t.Helper()
	if !reflect.DeepEqual(one, two) {
		t.Fatalf("expected %#v to equal %#v", one, two)
	}
}

// AssertNotError fails the test if err is non-nil.
func AssertNotError(t testing.TB, err error, message string) {
	t.Helper()
	if err != nil {
		if message == "" {
			t.Fatal(err)
		}
		t.Fatalf("%s: %s", message, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error, got none: %s", message)
	}
}

// AssertContains fails the test if s does not contain substr.
func AssertContains(t testing.TB, s string, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("expected %q to contain %q", s, substr)
	}
}
