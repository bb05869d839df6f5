// Package testutil holds setup shared by the service tests.
package testutil

import (
	"testing"

	"sahibinden-scraper/lib/decisionstore"
)

// DecisionStore opens an in-memory decision history that is closed when the
// test ends.
func DecisionStore(t testing.TB) decisionstore.Store {
	t.Helper()
	db, err := decisionstore.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := db.Close()
		if err != nil {
			t.Error(err)
		}
	})
	return decisionstore.NewStore(db)
}
