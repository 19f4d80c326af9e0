package executor

import (
	"strings"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

// Address keys and fixed values of the datasources subsystem.
const (
	AddressProfile       = "profile"
	AddressSubsystem     = "subsystem"
	AddressDatasource    = "data-source"
	SubsystemDatasources = "datasources"
)

// Parameter names used by read operations.
const (
	paramRecursive = "recursive"
	paramName      = "name"

	attributeEnabled = "enabled"
)

// subsystemAddress returns [profile=<p>/]subsystem=datasources.
func subsystemAddress(profile string) management.Address {
	var addr management.Address
	if strings.TrimSpace(profile) != "" {
		addr = addr.Append(AddressProfile, profile)
	}
	return addr.Append(AddressSubsystem, SubsystemDatasources)
}

// datasourceAddress returns [profile=<p>/]subsystem=datasources/data-source=<name>.
func datasourceAddress(profile, name string) management.Address {
	return subsystemAddress(profile).Append(AddressDatasource, name)
}

func buildAddRequest(spec *datasource.Spec, profile string) *management.Request {
	req := management.NewRequest(management.OperationAdd, datasourceAddress(profile, spec.Name))
	for name, value := range datasourceAttributes(spec) {
		req.Set(name, value)
	}
	return req
}

func buildRemoveRequest(name, profile string) *management.Request {
	return management.NewRequest(management.OperationRemove, datasourceAddress(profile, name))
}

// buildToggleRequest builds an enable or disable request.
func buildToggleRequest(op management.Operation, name, profile string) *management.Request {
	return management.NewRequest(op, datasourceAddress(profile, name))
}

func buildListRequest(profile string) *management.Request {
	return management.NewRequest(management.OperationReadResource, subsystemAddress(profile)).
		Set(paramRecursive, management.BoolValue(false))
}

func buildReadEnabledRequest(name, profile string) *management.Request {
	return management.NewRequest(management.OperationReadAttribute, datasourceAddress(profile, name)).
		Set(paramName, management.StringValue(attributeEnabled))
}
