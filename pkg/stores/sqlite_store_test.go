package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	// Migrating twice is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
}

func TestStoreFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := store.RecordOperation(ctx, &OperationRecord{
		Operation: "read-resource",
		Address:   "/subsystem=datasources",
		Target:    "localhost:9990",
		Outcome:   "success",
	}); err != nil {
		t.Fatalf("failed to record operation: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.StartRun(ctx, "create", "wildfly:9990")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" || run.Status != RunStatusRunning {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := store.CompleteRun(ctx, run.ID, errors.New("boom")); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
	if got.Error == nil || *got.Error != "boom" {
		t.Errorf("expected error boom, got %v", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	if err := store.CompleteRun(ctx, "missing", nil); err == nil {
		t.Error("expected error completing unknown run")
	}
	if _, err := store.GetRun(ctx, "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestRecordAndListOperations(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartRun(context.Background(), "apply", "wildfly:9990")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	ctx := WithRunID(context.Background(), run.ID)

	base := time.Now().UTC().Add(-time.Minute)
	records := []*OperationRecord{
		{
			Operation:  "add",
			Address:    "/profile=full/subsystem=datasources/data-source=OrdersDS",
			Profile:    "full",
			Datasource: "OrdersDS",
			Target:     "wildfly:9990",
			Outcome:    "success",
			DurationMs: 12,
			CreatedAt:  base,
		},
		{
			Operation:          "add",
			Address:            "/profile=ha/subsystem=datasources/data-source=OrdersDS",
			Profile:            "ha",
			Datasource:         "OrdersDS",
			Target:             "wildfly:9990",
			Outcome:            "failed",
			FailureDescription: strPtr("WFLYCTL0212: Duplicate resource"),
			RolledBack:         boolPtr(true),
			ErrorKind:          "remote_rejected",
			CreatedAt:          base.Add(time.Second),
		},
		{
			Operation: "read-resource",
			Address:   "/subsystem=datasources",
			Target:    "wildfly:9990",
			Outcome:   "success",
			CreatedAt: base.Add(2 * time.Second),
		},
	}
	for _, rec := range records {
		if err := store.RecordOperation(ctx, rec); err != nil {
			t.Fatalf("RecordOperation failed: %v", err)
		}
		if rec.ID == "" || rec.RunID != run.ID {
			t.Errorf("expected ID and run ID to be filled, got %q %q", rec.ID, rec.RunID)
		}
	}

	tests := []struct {
		name   string
		filter OperationFilter
		want   int
	}{
		{name: "all", filter: OperationFilter{}, want: 3},
		{name: "by run", filter: OperationFilter{RunID: run.ID}, want: 3},
		{name: "by datasource", filter: OperationFilter{Datasource: "OrdersDS"}, want: 2},
		{name: "by profile", filter: OperationFilter{Datasource: "OrdersDS", Profile: "ha"}, want: 1},
		{name: "limit", filter: OperationFilter{Limit: 1}, want: 1},
		{name: "since", filter: OperationFilter{Since: base.Add(1500 * time.Millisecond)}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListOperations(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListOperations failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}

	got, err := store.ListOperations(context.Background(), OperationFilter{Profile: "ha"})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one ha record, got %d (%v)", len(got), err)
	}
	rec := got[0]
	if rec.FailureDescription == nil || *rec.FailureDescription != "WFLYCTL0212: Duplicate resource" {
		t.Errorf("unexpected failure description: %v", rec.FailureDescription)
	}
	if rec.RolledBack == nil || !*rec.RolledBack {
		t.Errorf("expected rolled back, got %v", rec.RolledBack)
	}
	if rec.ErrorKind != "remote_rejected" {
		t.Errorf("expected remote_rejected, got %s", rec.ErrorKind)
	}

	newest, _ := store.ListOperations(context.Background(), OperationFilter{Limit: 1})
	if newest[0].Operation != "read-resource" {
		t.Errorf("expected newest first, got %s", newest[0].Operation)
	}
}

func TestRecordOperationWithoutRun(t *testing.T) {
	store := setupTestStore(t)
	rec := &OperationRecord{Operation: "remove", Address: "/subsystem=datasources/data-source=x", Target: "h:9990", Outcome: "success"}
	if err := store.RecordOperation(context.Background(), rec); err != nil {
		t.Fatalf("RecordOperation failed: %v", err)
	}
	got, err := store.ListOperations(context.Background(), OperationFilter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one record, got %d (%v)", len(got), err)
	}
	if got[0].RunID != "" || got[0].RolledBack != nil || got[0].FailureDescription != nil {
		t.Errorf("expected empty optional fields, got %+v", got[0])
	}
}

func TestPruneOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := &OperationRecord{Operation: "enable", Address: "/a=b", Target: "h:9990", Outcome: "success",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	recent := &OperationRecord{Operation: "enable", Address: "/a=b", Target: "h:9990", Outcome: "success"}
	for _, rec := range []*OperationRecord{old, recent} {
		if err := store.RecordOperation(ctx, rec); err != nil {
			t.Fatalf("RecordOperation failed: %v", err)
		}
	}

	removed, err := store.PruneOperations(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOperations failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned record, got %d", removed)
	}
}
