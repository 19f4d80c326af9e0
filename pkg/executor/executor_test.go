package executor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/stores"
)

func newTestExecutor(t *testing.T, opener session.Opener) *Executor {
	t.Helper()
	exec, err := New(Config{Opener: opener, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	return exec
}

func testConfig() *session.ConnectionConfig {
	return session.DefaultConnectionConfig("wildfly.example.com")
}

func testSpec(name string) *datasource.Spec {
	return datasource.New("", name, "jdbc:mysql://db:3306/"+name, "mysql", "app", "secret")
}

func TestNewRequiresOpener(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without opener")
	}
}

func TestRemoteRejectedCarriesFailureDescription(t *testing.T) {
	rolledBack := true
	opener := &scriptedOpener{responses: []*management.Response{{
		Defined:            true,
		Outcome:            "failure",
		FailureDescription: "boom",
		RolledBack:         &rolledBack,
	}}}
	exec := newTestExecutor(t, opener)

	err := exec.RemoveDatasource(context.Background(), testConfig(), "OrdersDS")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRemoteRejected(err) {
		t.Errorf("expected remote rejected, got %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected message to contain boom, got %q", err.Error())
	}

	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatal("expected *Error")
	}
	if execErr.FailureDescription != "boom" {
		t.Errorf("expected failure description boom, got %q", execErr.FailureDescription)
	}
	if execErr.RolledBack == nil || !*execErr.RolledBack {
		t.Error("expected rolled back indicator")
	}
	if execErr.Operation != CommandRemove || execErr.Datasource != "OrdersDS" {
		t.Errorf("unexpected context: %+v", execErr)
	}
	if opener.closes != opener.opens {
		t.Errorf("expected every session closed, opened %d closed %d", opener.opens, opener.closes)
	}
}

func TestUndefinedResponseIsSubsystemUndefined(t *testing.T) {
	opener := &scriptedOpener{responses: []*management.Response{{Defined: false}}}
	exec := newTestExecutor(t, opener)

	err := exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), false)
	if !IsSubsystemUndefined(err) {
		t.Fatalf("expected subsystem undefined, got %v", err)
	}
	if IsRemoteRejected(err) {
		t.Error("subsystem undefined must not be remote rejected")
	}
	if !strings.Contains(err.Error(), "Most probably the datasources subsystem is not defined") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestTransportErrorsAreChained(t *testing.T) {
	cause := &session.TransportError{Op: "execute", Err: errors.New("connection reset")}
	opener := &scriptedOpener{execErr: cause}
	exec := newTestExecutor(t, opener)

	err := exec.EnableDatasource(context.Background(), testConfig(), "OrdersDS")
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var transportErr *session.TransportError
	if !errors.As(err, &transportErr) {
		t.Error("expected the transport cause to be chained")
	}
	if opener.closes != 1 {
		t.Errorf("expected session closed after transport error, got %d closes", opener.closes)
	}
}

func TestHostResolutionFailure(t *testing.T) {
	controller := newFakeController()
	controller.openErr = &session.HostResolutionError{Host: "nowhere.invalid", Port: 9990, Err: errors.New("no such host")}
	exec := newTestExecutor(t, controller)

	_, err := exec.IsDatasourceExists(context.Background(), testConfig(), "OrdersDS", "")
	if !IsHostResolution(err) {
		t.Fatalf("expected host resolution error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unable to connect to host: nowhere.invalid at port 9990") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestCloseErrorsAreNotReturned(t *testing.T) {
	controller := newFakeController()
	controller.closeErr = errors.New("close failed")
	exec := newTestExecutor(t, controller)

	if err := exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), false); err != nil {
		t.Errorf("expected close error to be swallowed, got %v", err)
	}
	if controller.closes != controller.opens {
		t.Errorf("expected every session closed, opened %d closed %d", controller.opens, controller.closes)
	}
}

func TestCreateThenRemove(t *testing.T) {
	tests := []struct {
		name     string
		profiles []string
	}{
		{name: "unscoped", profiles: nil},
		{name: "single profile", profiles: []string{"full"}},
		{name: "two profiles", profiles: []string{"full", "ha"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := newFakeController("full", "ha")
			exec := newTestExecutor(t, controller)
			ctx := context.Background()
			cfg := testConfig()

			if err := exec.CreateDatasource(ctx, cfg, testSpec("OrdersDS"), false, tt.profiles...); err != nil {
				t.Fatalf("CreateDatasource failed: %v", err)
			}
			for _, profile := range targetProfiles(tt.profiles) {
				exists, err := exec.IsDatasourceExists(ctx, cfg, "OrdersDS", profile)
				if err != nil || !exists {
					t.Fatalf("expected datasource on profile %q, got %v (%v)", profile, exists, err)
				}
			}

			if err := exec.RemoveDatasource(ctx, cfg, "OrdersDS", tt.profiles...); err != nil {
				t.Fatalf("RemoveDatasource failed: %v", err)
			}
			for _, profile := range targetProfiles(tt.profiles) {
				exists, err := exec.IsDatasourceExists(ctx, cfg, "OrdersDS", profile)
				if err != nil {
					t.Fatalf("IsDatasourceExists failed: %v", err)
				}
				if exists {
					t.Errorf("expected datasource removed from profile %q", profile)
				}
			}
		})
	}
}

func TestCreateWithEnable(t *testing.T) {
	controller := newFakeController("full")
	exec := newTestExecutor(t, controller)
	ctx := context.Background()

	if err := exec.CreateDatasource(ctx, testConfig(), testSpec("OrdersDS"), true, "full"); err != nil {
		t.Fatalf("CreateDatasource failed: %v", err)
	}

	enabled, err := exec.IsDatasourceEnabled(ctx, testConfig(), "full", "OrdersDS")
	if err != nil {
		t.Fatalf("IsDatasourceEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("expected datasource enabled after create")
	}

	ops := make([]management.Operation, 0, 2)
	for _, req := range controller.requests[:2] {
		ops = append(ops, req.Operation)
	}
	want := []management.Operation{management.OperationAdd, management.OperationEnable}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("expected %v, got %v", want, ops)
	}
}

func TestFanOutRoundTrips(t *testing.T) {
	controller := newFakeController("a", "b", "c")
	exec := newTestExecutor(t, controller)

	if err := exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), false, "a", "b", "c"); err != nil {
		t.Fatalf("CreateDatasource failed: %v", err)
	}
	if controller.openCount() != 3 {
		t.Errorf("expected 3 round trips, got %d", controller.openCount())
	}
}

func TestFanOutStopsOnFirstFailure(t *testing.T) {
	controller := newFakeController("a", "b", "c")
	controller.seed("b", "OrdersDS", false)
	exec := newTestExecutor(t, controller)

	err := exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), false, "a", "b", "c")
	if !IsRemoteRejected(err) {
		t.Fatalf("expected remote rejected, got %v", err)
	}

	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatal("expected *Error")
	}
	if execErr.Profile != "b" {
		t.Errorf("expected failing profile b, got %q", execErr.Profile)
	}
	if !reflect.DeepEqual(execErr.Completed, []string{"a"}) {
		t.Errorf("expected completed [a], got %v", execErr.Completed)
	}
	if controller.openCount() != 2 {
		t.Errorf("expected 2 round trips, got %d", controller.openCount())
	}
	if got := controller.names("a"); !reflect.DeepEqual(got, []string{"OrdersDS"}) {
		t.Errorf("expected profile a to keep its datasource, got %v", got)
	}
	if got := controller.names("c"); len(got) != 0 {
		t.Errorf("expected profile c untouched, got %v", got)
	}
}

func TestUnknownProfileIsSubsystemUndefined(t *testing.T) {
	controller := newFakeController("full")
	exec := newTestExecutor(t, controller)

	_, err := exec.GetDatasources(context.Background(), testConfig(), "missing", datasource.StatusAll)
	if !IsSubsystemUndefined(err) {
		t.Errorf("expected subsystem undefined, got %v", err)
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	controller := newFakeController()
	exec := newTestExecutor(t, controller)
	ctx := context.Background()
	cfg := testConfig()

	if err := exec.CreateDatasource(ctx, cfg, testSpec("ds1"), false); err != nil {
		t.Fatalf("CreateDatasource failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := exec.EnableDatasource(ctx, cfg, "ds1"); err != nil {
			t.Fatalf("EnableDatasource #%d failed: %v", i+1, err)
		}
		enabled, err := exec.IsDatasourceEnabled(ctx, cfg, "", "ds1")
		if err != nil {
			t.Fatalf("IsDatasourceEnabled failed: %v", err)
		}
		if !enabled {
			t.Errorf("expected ds1 enabled after enable #%d", i+1)
		}
	}

	for i := 0; i < 2; i++ {
		if err := exec.DisableDatasource(ctx, cfg, "ds1"); err != nil {
			t.Fatalf("DisableDatasource #%d failed: %v", i+1, err)
		}
	}
	enabled, err := exec.IsDatasourceEnabled(ctx, cfg, "", "ds1")
	if err != nil || enabled {
		t.Errorf("expected ds1 disabled, got %v (%v)", enabled, err)
	}
}

func TestEnableMissingDatasourceFails(t *testing.T) {
	exec := newTestExecutor(t, newFakeController())

	err := exec.EnableDatasource(context.Background(), testConfig(), "ghost")
	if !IsRemoteRejected(err) {
		t.Errorf("expected remote rejected, got %v", err)
	}
}

func TestBatchRejectsEmptyNames(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		call  func(*Executor, []string) error
	}{
		{name: "enable nil", names: nil, call: func(e *Executor, n []string) error {
			return e.EnableDatasources(context.Background(), testConfig(), n, "full")
		}},
		{name: "enable empty", names: []string{}, call: func(e *Executor, n []string) error {
			return e.EnableDatasources(context.Background(), testConfig(), n)
		}},
		{name: "disable nil", names: nil, call: func(e *Executor, n []string) error {
			return e.DisableDatasources(context.Background(), testConfig(), n)
		}},
		{name: "disable blank name", names: []string{"ok", " "}, call: func(e *Executor, n []string) error {
			return e.DisableDatasources(context.Background(), testConfig(), n)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := newFakeController("full")
			exec := newTestExecutor(t, controller)

			err := tt.call(exec, tt.names)
			if !IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
			if controller.openCount() != 0 {
				t.Errorf("expected no session opened, got %d", controller.openCount())
			}
		})
	}
}

func TestBatchEnableAcrossProfiles(t *testing.T) {
	controller := newFakeController("full", "ha")
	for _, p := range []string{"full", "ha"} {
		controller.seed(p, "ds1", false)
		controller.seed(p, "ds2", false)
	}
	exec := newTestExecutor(t, controller)
	ctx := context.Background()

	if err := exec.EnableDatasources(ctx, testConfig(), []string{"ds1", "ds2"}, "full", "ha"); err != nil {
		t.Fatalf("EnableDatasources failed: %v", err)
	}
	if controller.openCount() != 4 {
		t.Errorf("expected 4 round trips, got %d", controller.openCount())
	}
	for _, p := range []string{"full", "ha"} {
		names, err := exec.GetDatasources(ctx, testConfig(), p, datasource.StatusEnabled)
		if err != nil {
			t.Fatalf("GetDatasources failed: %v", err)
		}
		if !reflect.DeepEqual(names, []string{"ds1", "ds2"}) {
			t.Errorf("expected both enabled on %s, got %v", p, names)
		}
	}
}

func TestGetDatasourcesFilters(t *testing.T) {
	controller := newFakeController("full")
	controller.seed("full", "a", true)
	controller.seed("full", "b", false)
	controller.seed("full", "c", true)
	exec := newTestExecutor(t, controller)
	ctx := context.Background()
	cfg := testConfig()

	all, err := exec.GetDatasources(ctx, cfg, "full", datasource.StatusAll)
	if err != nil {
		t.Fatalf("GetDatasources(ALL) failed: %v", err)
	}
	enabled, err := exec.GetDatasources(ctx, cfg, "full", datasource.StatusEnabled)
	if err != nil {
		t.Fatalf("GetDatasources(ENABLED) failed: %v", err)
	}
	disabled, err := exec.GetDatasources(ctx, cfg, "full", datasource.StatusDisabled)
	if err != nil {
		t.Fatalf("GetDatasources(DISABLED) failed: %v", err)
	}
	again, err := exec.GetDatasources(ctx, cfg, "full", "")
	if err != nil {
		t.Fatalf("GetDatasources(\"\") failed: %v", err)
	}

	if !reflect.DeepEqual(all, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", all)
	}
	if !reflect.DeepEqual(again, all) {
		t.Errorf("expected the same ALL listing, got %v", again)
	}
	if !reflect.DeepEqual(enabled, []string{"a", "c"}) {
		t.Errorf("expected [a c], got %v", enabled)
	}
	if !reflect.DeepEqual(disabled, []string{"b"}) {
		t.Errorf("expected [b], got %v", disabled)
	}

	inAll := make(map[string]bool)
	for _, n := range all {
		inAll[n] = true
	}
	for _, n := range enabled {
		if !inAll[n] {
			t.Errorf("enabled %q not in ALL", n)
		}
		for _, d := range disabled {
			if d == n {
				t.Errorf("%q is both enabled and disabled", n)
			}
		}
	}

	if _, err := exec.GetDatasources(ctx, cfg, "full", "SOME"); !IsInvalidArgument(err) {
		t.Errorf("expected invalid argument for unknown filter, got %v", err)
	}
}

func TestGetDatasourcesEmptySubsystem(t *testing.T) {
	exec := newTestExecutor(t, newFakeController())

	names, err := exec.GetDatasources(context.Background(), testConfig(), "", datasource.StatusAll)
	if err != nil {
		t.Fatalf("GetDatasources failed: %v", err)
	}
	if names == nil || len(names) != 0 {
		t.Errorf("expected empty non-nil list, got %v", names)
	}
}

func TestIsDatasourceExistsExactMatch(t *testing.T) {
	controller := newFakeController()
	controller.seed("", "OrdersDS", true)
	exec := newTestExecutor(t, controller)

	for name, want := range map[string]bool{"OrdersDS": true, "Orders": false, "ordersds": false} {
		got, err := exec.IsDatasourceExists(context.Background(), testConfig(), name, "")
		if err != nil {
			t.Fatalf("IsDatasourceExists(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("IsDatasourceExists(%q): expected %v, got %v", name, want, got)
		}
	}
}

func TestInvalidInputOpensNoSession(t *testing.T) {
	tests := []struct {
		name string
		call func(*Executor) error
	}{
		{name: "nil config", call: func(e *Executor) error {
			return e.RemoveDatasource(context.Background(), nil, "ds")
		}},
		{name: "blank host", call: func(e *Executor) error {
			return e.RemoveDatasource(context.Background(), session.DefaultConnectionConfig(""), "ds")
		}},
		{name: "blank name", call: func(e *Executor) error {
			return e.EnableDatasource(context.Background(), testConfig(), "")
		}},
		{name: "nil spec", call: func(e *Executor) error {
			return e.CreateDatasource(context.Background(), testConfig(), nil, false)
		}},
		{name: "invalid spec", call: func(e *Executor) error {
			spec := testSpec("ds")
			spec.ConnectionURL = ""
			return e.CreateDatasource(context.Background(), testConfig(), spec, false)
		}},
		{name: "blank enabled name", call: func(e *Executor) error {
			_, err := e.IsDatasourceEnabled(context.Background(), testConfig(), "", " ")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controller := newFakeController()
			exec := newTestExecutor(t, controller)

			if err := tt.call(exec); !IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
			if controller.openCount() != 0 {
				t.Errorf("expected no session opened, got %d", controller.openCount())
			}
		})
	}
}

func TestJournalRecordsRoundTrips(t *testing.T) {
	controller := newFakeController("full")
	controller.seed("full", "OrdersDS", false)
	journal := &memoryJournal{}
	exec, err := New(Config{Opener: controller, Logger: zerolog.Nop(), Journal: journal})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	err = exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), false, "full")
	if !IsRemoteRejected(err) {
		t.Fatalf("expected remote rejected, got %v", err)
	}

	if len(journal.records) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(journal.records))
	}
	rec := journal.records[0]
	if rec.Operation != "add" || rec.Profile != "full" || rec.Datasource != "OrdersDS" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Address != "/profile=full/subsystem=datasources/data-source=OrdersDS" {
		t.Errorf("unexpected address: %s", rec.Address)
	}
	if rec.Outcome != management.OutcomeFailed || rec.ErrorKind != string(KindRemoteRejected) {
		t.Errorf("unexpected outcome: %s %s", rec.Outcome, rec.ErrorKind)
	}
	if rec.FailureDescription == nil || !strings.Contains(*rec.FailureDescription, "Duplicate resource") {
		t.Errorf("unexpected failure description: %v", rec.FailureDescription)
	}
	if rec.Target != "wildfly.example.com:9990" {
		t.Errorf("unexpected target: %s", rec.Target)
	}
}

func TestJournalUsesSQLiteStore(t *testing.T) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	exec, err := New(Config{Opener: newFakeController(), Logger: zerolog.Nop(), Journal: store})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	if _, err := exec.GetDatasources(ctx, testConfig(), "", datasource.StatusAll); err != nil {
		t.Fatalf("GetDatasources failed: %v", err)
	}

	records, err := store.ListOperations(ctx, stores.OperationFilter{})
	if err != nil {
		t.Fatalf("ListOperations failed: %v", err)
	}
	if len(records) != 1 || records[0].Operation != "read-resource" {
		t.Errorf("expected one read-resource record, got %+v", records)
	}
}

func TestErrorMessageListsCompletedProfiles(t *testing.T) {
	err := newError(KindRemoteRejected, "An error occurred while adding datasource 'x'.\nboom", nil)
	err.Completed = []string{"a", "b"}

	if !strings.Contains(err.Error(), "already applied to profiles: a, b") {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, &Error{Kind: KindRemoteRejected}) {
		t.Error("expected errors.Is to match on kind")
	}
}

func TestBatchFailureReportsEarlierDatasources(t *testing.T) {
	controller := newFakeController("p1", "p2")
	controller.seed("p1", "a", false)
	controller.seed("p2", "a", false)
	controller.seed("p1", "b", false)
	exec := newTestExecutor(t, controller)

	err := exec.EnableDatasources(context.Background(), testConfig(), []string{"a", "b"}, "p1", "p2")
	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *Error, got %v", err)
	}

	if execErr.Datasource != "b" || execErr.Profile != "p2" {
		t.Errorf("expected failure on b@p2, got %s@%s", execErr.Datasource, execErr.Profile)
	}
	if !reflect.DeepEqual(execErr.Completed, []string{"p1"}) {
		t.Errorf("expected completed [p1], got %v", execErr.Completed)
	}
	want := []string{"enable a@p1", "enable a@p2", "enable b@p1"}
	if !reflect.DeepEqual(execErr.Applied, want) {
		t.Errorf("expected applied %v, got %v", want, execErr.Applied)
	}
	if !strings.Contains(err.Error(), "already applied: enable a@p1, enable a@p2, enable b@p1") {
		t.Errorf("expected message to list applied changes, got %q", err.Error())
	}
}

func TestCreateReportsAddWhenEnableFails(t *testing.T) {
	opener := &scriptedOpener{responses: []*management.Response{
		succeeded(nil),
		failed("IJ031084: Unable to create connection"),
		succeeded(false),
	}}
	exec := newTestExecutor(t, opener)

	err := exec.CreateDatasource(context.Background(), testConfig(), testSpec("OrdersDS"), true, "full")
	if !IsRemoteRejected(err) {
		t.Fatalf("expected remote rejected, got %v", err)
	}

	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatal("expected *Error")
	}
	if len(execErr.Completed) != 0 {
		t.Errorf("expected no completed profiles, got %v", execErr.Completed)
	}
	if !reflect.DeepEqual(execErr.Applied, []string{"add OrdersDS@full"}) {
		t.Errorf("expected applied [add OrdersDS@full], got %v", execErr.Applied)
	}
	if !strings.Contains(err.Error(), "already applied: add OrdersDS@full") {
		t.Errorf("expected message to mention the add, got %q", err.Error())
	}
}

func TestErrorMessagePrefersAppliedSteps(t *testing.T) {
	err := newError(KindTransport, "An error occurred while enabling datasource 'b'.", nil)
	err.Completed = []string{"p1"}
	err.Applied = []string{"enable a"}

	if got := err.Error(); !strings.Contains(got, "(already applied: enable a)") || strings.Contains(got, "to profiles") {
		t.Errorf("unexpected message: %q", got)
	}
}
