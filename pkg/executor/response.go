package executor

import (
	"fmt"

	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

// interpret maps a response onto success or an *Error:
// an undefined response is SubsystemUndefined, a non-success outcome is
// RemoteRejected carrying the failure description verbatim.
func (e *Executor) interpret(c call, profile string, resp *management.Response) error {
	if !resp.Defined {
		return newError(KindSubsystemUndefined,
			fmt.Sprintf("A subsystem undefined response status received while %s. Most probably the %s subsystem is not defined.",
				c.describe(profile), SubsystemDatasources), nil).
			WithOperation(c.command).
			WithDatasource(c.datasource).
			WithProfile(profile)
	}

	if resp.Succeeded() {
		return nil
	}

	event := e.logger.Error().
		Str("operation", c.command).
		Str("datasource", c.datasource).
		Str("profile", profile).
		Str("outcome", resp.Outcome).
		Str("failure_description", resp.FailureDescription)
	if resp.RolledBack != nil {
		event = event.Bool("rolled_back", *resp.RolledBack)
	}
	event.Msg("Operation rejected by management controller")

	return newError(KindRemoteRejected,
		fmt.Sprintf("An error occurred while %s.\n%s", c.describe(profile), resp.FailureDescription), nil).
		WithOperation(c.command).
		WithDatasource(c.datasource).
		WithProfile(profile).
		WithRemoteFailure(resp.FailureDescription, resp.RolledBack)
}
