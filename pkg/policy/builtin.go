package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		poolSizingPolicy(),
		connectionURLPolicy(),
		backgroundValidationPolicy(),
		credentialsPolicy(),
		transactionIsolationPolicy(),
	}
}

// poolSizingPolicy rejects pools whose minimum exceeds their maximum.
func poolSizingPolicy() Policy {
	return Policy{
		Name:        "pool-sizing",
		Description: "Pool minimum must not exceed the pool maximum",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package dsctl.policies.pool

import rego.v1

deny contains violation if {
	ds := input.datasource
	ds.min_pool_size > ds.max_pool_size
	violation := {
		"message": sprintf("min-pool-size %d exceeds max-pool-size %d", [ds.min_pool_size, ds.max_pool_size]),
		"severity": "error",
	}
}

deny contains violation if {
	ds := input.datasource
	ds.max_pool_size < 1
	violation := {
		"message": "max-pool-size must be at least 1",
		"severity": "error",
	}
}`,
	}
}

// connectionURLPolicy requires a JDBC connection URL.
func connectionURLPolicy() Policy {
	return Policy{
		Name:        "connection-url",
		Description: "Datasources need a jdbc: connection URL",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package dsctl.policies.url

import rego.v1

deny contains violation if {
	trim_space(input.datasource.connection_url) == ""
	violation := {
		"message": "connection-url must not be empty",
		"severity": "error",
	}
}

deny contains violation if {
	url := trim_space(input.datasource.connection_url)
	url != ""
	not startswith(url, "jdbc:")
	violation := {
		"message": sprintf("connection-url '%s' is not a jdbc: URL", [url]),
		"severity": "error",
	}
}`,
	}
}

// backgroundValidationPolicy requires an interval when background validation is on.
func backgroundValidationPolicy() Policy {
	return Policy{
		Name:        "background-validation",
		Description: "Background validation needs a positive interval",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package dsctl.policies.validation

import rego.v1

deny contains violation if {
	ds := input.datasource
	ds.background_validation
	ds.background_validation_millis <= 0
	violation := {
		"message": "background-validation is enabled but background-validation-millis is not set",
		"severity": "error",
	}
}`,
	}
}

// credentialsPolicy warns about inline passwords.
func credentialsPolicy() Policy {
	return Policy{
		Name:        "credentials",
		Description: "Prefer a security domain over an inline password",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package dsctl.policies.credentials

import rego.v1

deny contains violation if {
	ds := input.datasource
	ds.password_set
	ds.security_domain == null
	violation := {
		"message": sprintf("datasource '%s' stores an inline password without a security-domain", [ds.name]),
		"severity": "warning",
	}
}`,
	}
}

// transactionIsolationPolicy warns about TRANSACTION_NONE on JTA datasources.
func transactionIsolationPolicy() Policy {
	return Policy{
		Name:        "transaction-isolation",
		Description: "TRANSACTION_NONE on a JTA datasource is almost always a mistake",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package dsctl.policies.isolation

import rego.v1

deny contains violation if {
	ds := input.datasource
	ds.jta
	ds.transaction_isolation == "TRANSACTION_NONE"
	violation := {
		"message": "transaction-isolation TRANSACTION_NONE is set on a jta datasource",
		"severity": "warning",
	}
}`,
	}
}
