package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFederatedQueryCountsTablesByOrigin(t *testing.T) {
	persistentBefore := testutil.ToFloat64(federatedTablesLoadedTotal.WithLabelValues("persistent"))
	ephemeralBefore := testutil.ToFloat64(federatedTablesLoadedTotal.WithLabelValues("ephemeral"))
	queriesBefore := testutil.ToFloat64(federatedQueriesTotal.WithLabelValues("duckdb", "ok"))
	rowsBefore := testutil.ToFloat64(federatedRowsLoadedTotal)

	ObserveFederatedQuery("duckdb", "ok", 2, 1, 40, 15*time.Millisecond)

	if got := testutil.ToFloat64(federatedTablesLoadedTotal.WithLabelValues("persistent")) - persistentBefore; got != 2 {
		t.Fatalf("persistent tables delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(federatedTablesLoadedTotal.WithLabelValues("ephemeral")) - ephemeralBefore; got != 1 {
		t.Fatalf("ephemeral tables delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(federatedQueriesTotal.WithLabelValues("duckdb", "ok")) - queriesBefore; got != 1 {
		t.Fatalf("queries delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(federatedRowsLoadedTotal) - rowsBefore; got != 40 {
		t.Fatalf("rows delta = %v, want 40", got)
	}
}

func TestSetEphemeralTablesClampsNegative(t *testing.T) {
	SetEphemeralTables(3)
	if got := testutil.ToFloat64(ephemeralTables); got != 3 {
		t.Fatalf("ephemeral gauge = %v, want 3", got)
	}
	SetEphemeralTables(-1)
	if got := testutil.ToFloat64(ephemeralTables); got != 0 {
		t.Fatalf("ephemeral gauge = %v, want 0", got)
	}
}

func TestObserveIngestedDocument(t *testing.T) {
	before := testutil.ToFloat64(ingestedDocumentsTotal.WithLabelValues("csv", "ok"))
	rowsBefore := testutil.ToFloat64(ingestedRowsTotal)

	ObserveIngestedDocument("csv", "ok", 12)
	ObserveIngestedDocument("csv", "ok", 0)

	if got := testutil.ToFloat64(ingestedDocumentsTotal.WithLabelValues("csv", "ok")) - before; got != 2 {
		t.Fatalf("documents delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ingestedRowsTotal) - rowsBefore; got != 12 {
		t.Fatalf("rows delta = %v, want 12", got)
	}
}
