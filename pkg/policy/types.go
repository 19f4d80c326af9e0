package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not block.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the operation.
	SeverityError Severity = "error"

	// SeverityCritical blocks the operation.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the operation.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that carry none.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with dsctl.
	Builtin bool `json:"builtin,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	Policy     string   `json:"policy"`
	Datasource string   `json:"datasource,omitempty"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
}

// Result is the outcome of evaluating all enabled policies against one
// datasource.
type Result struct {
	// Allowed is false when any violation has a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations lists blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Err returns a *DeniedError when the result is not allowed.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &DeniedError{Violations: r.Violations}
}

// DeniedError is returned when policies deny an operation.
type DeniedError struct {
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", v.Policy, v.Message))
	}
	return "denied by policy: " + strings.Join(msgs, "; ")
}

// Input is the document policies are evaluated against, available in Rego as
// input.datasource and input.context.
type Input struct {
	Datasource *DatasourceInput `json:"datasource"`
	Context    *Context         `json:"context"`
}

// DatasourceInput is the policy view of a datasource spec. The password itself
// is never exposed; only whether one is set.
type DatasourceInput struct {
	Name                       string            `json:"name"`
	JNDIName                   string            `json:"jndi_name"`
	PoolName                   string            `json:"pool_name"`
	ConnectionURL              string            `json:"connection_url"`
	DriverName                 string            `json:"driver_name"`
	UserName                   string            `json:"user_name"`
	PasswordSet                bool              `json:"password_set"`
	SecurityDomain             *string           `json:"security_domain"`
	TransactionIsolation       string            `json:"transaction_isolation"`
	JTA                        bool              `json:"jta"`
	UseCCM                     bool              `json:"use_ccm"`
	MinPoolSize                int32             `json:"min_pool_size"`
	MaxPoolSize                int32             `json:"max_pool_size"`
	PoolPrefill                bool              `json:"pool_prefill"`
	BackgroundValidation       bool              `json:"background_validation"`
	BackgroundValidationMillis int64             `json:"background_validation_millis"`
	ValidateOnMatch            bool              `json:"validate_on_match"`
	CheckValidConnectionSQL    *string           `json:"check_valid_connection_sql"`
	ConnectionProperties       map[string]string `json:"connection_properties,omitempty"`
}

// NewDatasourceInput builds the policy view of a spec.
func NewDatasourceInput(spec *datasource.Spec) *DatasourceInput {
	return &DatasourceInput{
		Name:                       spec.Name,
		JNDIName:                   spec.JNDIName,
		PoolName:                   spec.PoolName,
		ConnectionURL:              spec.ConnectionURL,
		DriverName:                 spec.DriverName,
		UserName:                   spec.UserName,
		PasswordSet:                spec.Password != "",
		SecurityDomain:             spec.SecurityDomain,
		TransactionIsolation:       string(spec.TransactionIsolation),
		JTA:                        spec.JTA,
		UseCCM:                     spec.UseCCM,
		MinPoolSize:                spec.MinPoolSize,
		MaxPoolSize:                spec.MaxPoolSize,
		PoolPrefill:                spec.PoolPrefill,
		BackgroundValidation:       spec.BackgroundValidation,
		BackgroundValidationMillis: spec.BackgroundValidationMillis,
		ValidateOnMatch:            spec.ValidateOnMatch,
		CheckValidConnectionSQL:    spec.CheckValidConnectionSQL,
		ConnectionProperties:       spec.ConnectionProperties,
	}
}

// Context describes the operation being admitted.
type Context struct {
	// Operation is the dsctl command (create, apply).
	Operation string `json:"operation"`

	// Target is the management endpoint host:port.
	Target string `json:"target,omitempty"`

	// Profiles are the profiles the datasource is created on.
	Profiles []string `json:"profiles,omitempty"`

	// Environment is a free-form label from the config file.
	Environment string `json:"environment,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
