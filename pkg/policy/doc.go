// Package policy evaluates Open Policy Agent (Rego) admission rules against
// a datasource before it is created.
//
// Every policy is a Rego module whose deny set holds violations. A violation
// is either a string or an object with message and severity fields. Error and
// critical severities block the operation; warning and info are reported only.
//
// Built-in policies check pool sizing, the connection URL and the background
// validation interval, and warn about inline passwords without a security
// domain and about TRANSACTION_NONE on JTA datasources.
//
// User policies are loaded from .rego files or from .yaml/.json definitions
// carrying the module inline. A .rego file is named after the file and has
// warning severity unless its header comments say otherwise:
//
//	# Datasource names end with DS.
//	# name: naming
//	# severity: error
//	package dsctl.policies.naming
//
// Loading them into an engine:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, spec, &policy.Context{Operation: "create"})
//	if err != nil {
//	    return err
//	}
//	if err := result.Err(); err != nil {
//	    return err
//	}
//
// A user rule in Rego v1 syntax:
//
//	package dsctl.policies.naming
//
//	import rego.v1
//
//	deny contains violation if {
//	    not endswith(input.datasource.name, "DS")
//	    violation := {"message": "datasource names end with DS", "severity": "error"}
//	}
package policy
