package executor

import (
	"testing"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

func TestRequestAddresses(t *testing.T) {
	spec := testSpec("OrdersDS")

	tests := []struct {
		name     string
		req      *management.Request
		wantOp   management.Operation
		wantAddr string
	}{
		{
			name:     "add unscoped",
			req:      buildAddRequest(spec, ""),
			wantOp:   management.OperationAdd,
			wantAddr: "/subsystem=datasources/data-source=OrdersDS",
		},
		{
			name:     "add with profile",
			req:      buildAddRequest(spec, "full-ha"),
			wantOp:   management.OperationAdd,
			wantAddr: "/profile=full-ha/subsystem=datasources/data-source=OrdersDS",
		},
		{
			name:     "blank profile is unscoped",
			req:      buildRemoveRequest("OrdersDS", "   "),
			wantOp:   management.OperationRemove,
			wantAddr: "/subsystem=datasources/data-source=OrdersDS",
		},
		{
			name:     "enable",
			req:      buildToggleRequest(management.OperationEnable, "OrdersDS", "full"),
			wantOp:   management.OperationEnable,
			wantAddr: "/profile=full/subsystem=datasources/data-source=OrdersDS",
		},
		{
			name:     "disable",
			req:      buildToggleRequest(management.OperationDisable, "OrdersDS", ""),
			wantOp:   management.OperationDisable,
			wantAddr: "/subsystem=datasources/data-source=OrdersDS",
		},
		{
			name:     "list",
			req:      buildListRequest("full"),
			wantOp:   management.OperationReadResource,
			wantAddr: "/profile=full/subsystem=datasources",
		},
		{
			name:     "read enabled",
			req:      buildReadEnabledRequest("OrdersDS", ""),
			wantOp:   management.OperationReadAttribute,
			wantAddr: "/subsystem=datasources/data-source=OrdersDS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req.Operation != tt.wantOp {
				t.Errorf("expected operation %s, got %s", tt.wantOp, tt.req.Operation)
			}
			if got := tt.req.Address.String(); got != tt.wantAddr {
				t.Errorf("expected address %s, got %s", tt.wantAddr, got)
			}
			if err := tt.req.Validate(); err != nil {
				t.Errorf("expected valid request, got %v", err)
			}
		})
	}
}

func TestReadRequestParameters(t *testing.T) {
	list := buildListRequest("")
	recursive, ok := list.Param(paramRecursive)
	if !ok || recursive.Type() != management.TypeBoolean || recursive.AsBool() {
		t.Errorf("expected recursive=false, got %v (%v)", recursive, ok)
	}

	read := buildReadEnabledRequest("OrdersDS", "")
	name, ok := read.Param(paramName)
	if !ok || name.AsString() != "enabled" {
		t.Errorf("expected name=enabled, got %v (%v)", name, ok)
	}

	if len(buildRemoveRequest("OrdersDS", "").ParamNames()) != 0 {
		t.Error("expected remove to carry no parameters")
	}
}

func TestDatasourceAttributes(t *testing.T) {
	spec := testSpec("OrdersDS")
	spec.PreparedStatementsCacheSize = 32
	attrs := datasourceAttributes(spec)

	required := []string{
		AttrJNDIName, AttrUseJavaContext, AttrSharePreparedStatements, AttrPreparedStatementsCacheSize,
		AttrPoolName, AttrConnectionURL, AttrTransactionIsolation, AttrUseCCM, AttrJTA, AttrDriverName,
		AttrUserName, AttrPassword, AttrMinPoolSize, AttrMaxPoolSize, AttrPoolPrefill, AttrPoolUseStrictMin,
		AttrBackgroundValidation, AttrValidateOnMatch,
	}
	for _, name := range required {
		if _, ok := attrs[name]; !ok {
			t.Errorf("expected attribute %s", name)
		}
	}

	for _, name := range []string{AttrNewConnectionSQL, AttrSecurityDomain, AttrCheckValidConnectionSQL, AttrStaleConnectionChecker, AttrBackgroundValidationMillis} {
		if _, ok := attrs[name]; ok {
			t.Errorf("expected attribute %s to be omitted", name)
		}
	}

	if got := attrs[AttrJNDIName].AsString(); got != "java:/OrdersDS" {
		t.Errorf("expected jndi-name java:/OrdersDS, got %s", got)
	}
	if got := attrs[AttrPoolName].AsString(); got != "OrdersDS-pool" {
		t.Errorf("expected pool-name OrdersDS-pool, got %s", got)
	}
	if got := attrs[AttrTransactionIsolation].AsString(); got != string(datasource.TransactionReadUncommitted) {
		t.Errorf("expected symbolic isolation, got %s", got)
	}
	if v := attrs[AttrPreparedStatementsCacheSize]; v.Type() != management.TypeInt || v.AsInt64() != 32 {
		t.Errorf("expected int cache size 32, got %v", v)
	}
	if got := attrs[AttrValidConnectionChecker].AsString(); got != datasource.DefaultValidConnectionChecker {
		t.Errorf("expected default checker, got %s", got)
	}
	if got := attrs[AttrExceptionSorter].AsString(); got != datasource.DefaultExceptionSorter {
		t.Errorf("expected default sorter, got %s", got)
	}
}

func TestDatasourceAttributesOptional(t *testing.T) {
	spec := testSpec("OrdersDS")
	spec.NewConnectionSQL = datasource.Optional("")
	spec.SecurityDomain = datasource.Optional("other")
	spec.BackgroundValidation = true
	spec.BackgroundValidationMillis = 60000
	spec.ValidConnectionCheckerClassName = nil

	attrs := datasourceAttributes(spec)

	if v, ok := attrs[AttrNewConnectionSQL]; !ok || v.AsString() != "" {
		t.Errorf("expected empty new-connection-sql to be sent, got %v (%v)", v, ok)
	}
	if got := attrs[AttrSecurityDomain].AsString(); got != "other" {
		t.Errorf("expected security-domain other, got %s", got)
	}
	if v := attrs[AttrBackgroundValidationMillis]; v.Type() != management.TypeLong || v.AsInt64() != 60000 {
		t.Errorf("expected long millis 60000, got %v", v)
	}
	if _, ok := attrs[AttrValidConnectionChecker]; ok {
		t.Error("expected cleared checker to be omitted")
	}
}
