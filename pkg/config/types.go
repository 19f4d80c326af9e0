package config

import (
	"fmt"
	"time"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/telemetry"
)

// Config is the dsctl configuration file.
type Config struct {
	// DefaultServer names the server used when none is given on the command line.
	DefaultServer string `yaml:"default-server"`

	// Servers are named management endpoints.
	Servers map[string]*session.ConnectionConfig `yaml:"servers"`

	// Profiles are the default domain profiles. Empty means an unscoped
	// (standalone) server.
	Profiles []string `yaml:"profiles"`

	Telemetry *telemetry.Config `yaml:"telemetry"`
	Journal   JournalConfig     `yaml:"journal"`
	Policy    PolicyConfig      `yaml:"policy"`
}

// JournalConfig configures the operation journal.
type JournalConfig struct {
	// Enabled controls whether round trips are recorded.
	Enabled bool `yaml:"enabled"`

	// Path is the sqlite database file.
	Path string `yaml:"path" validate:"required_if=Enabled true"`

	// Retention prunes records older than this on startup. Zero keeps everything.
	Retention time.Duration `yaml:"retention" validate:"gte=0"`
}

// PolicyConfig configures admission policies.
type PolicyConfig struct {
	// Enabled controls whether datasources are checked before they are created.
	Enabled bool `yaml:"enabled"`

	// Paths are .rego/.json files or directories with user policies.
	Paths []string `yaml:"paths"`

	// Environment is passed to policies as input.context.environment.
	Environment string `yaml:"environment"`
}

// Manifest is a declared set of datasources for one server.
type Manifest struct {
	// Server names an entry of Config.Servers. Empty means the default server.
	Server string `yaml:"server" json:"server"`

	// Profiles overrides the configured profiles.
	Profiles []string `yaml:"profiles" json:"profiles"`

	Datasources []DatasourceEntry `yaml:"datasources" json:"datasources" validate:"dive"`

	// SourceFiles are the files the manifest was read from.
	SourceFiles []string `yaml:"-" json:"-"`

	// ParsedAt is when the manifest was parsed.
	ParsedAt time.Time `yaml:"-" json:"-"`
}

// DatasourceEntry declares one datasource. Nil fields keep the server
// defaults of datasource.New.
type DatasourceEntry struct {
	Name          string `yaml:"name" json:"name"`
	JNDIName      string `yaml:"jndi-name" json:"jndi-name" validate:"required"`
	ConnectionURL string `yaml:"connection-url" json:"connection-url" validate:"required"`
	DriverName    string `yaml:"driver-name" json:"driver-name" validate:"required"`
	UserName      string `yaml:"user-name" json:"user-name"`
	Password      string `yaml:"password" json:"password"`

	// Enabled is the declared state. Nil leaves the state alone.
	Enabled *bool `yaml:"enabled" json:"enabled"`

	PoolName                    *string `yaml:"pool-name" json:"pool-name"`
	UseJavaContext              *bool   `yaml:"use-java-context" json:"use-java-context"`
	SharePreparedStatements     *bool   `yaml:"share-prepared-statements" json:"share-prepared-statements"`
	PreparedStatementsCacheSize *int32  `yaml:"prepared-statements-cache-size" json:"prepared-statements-cache-size"`
	NewConnectionSQL            *string `yaml:"new-connection-sql" json:"new-connection-sql"`
	UseCCM                      *bool   `yaml:"use-ccm" json:"use-ccm"`
	JTA                         *bool   `yaml:"jta" json:"jta"`
	SecurityDomain              *string `yaml:"security-domain" json:"security-domain"`
	TransactionIsolation        string  `yaml:"transaction-isolation" json:"transaction-isolation"`

	MinPoolSize      *int32 `yaml:"min-pool-size" json:"min-pool-size"`
	MaxPoolSize      *int32 `yaml:"max-pool-size" json:"max-pool-size"`
	PoolPrefill      *bool  `yaml:"pool-prefill" json:"pool-prefill"`
	PoolUseStrictMin *bool  `yaml:"pool-use-strict-min" json:"pool-use-strict-min"`

	CheckValidConnectionSQL         *string `yaml:"check-valid-connection-sql" json:"check-valid-connection-sql"`
	ValidConnectionCheckerClassName *string `yaml:"valid-connection-checker-class-name" json:"valid-connection-checker-class-name"`
	StaleConnectionCheckerClassName *string `yaml:"stale-connection-checker-class-name" json:"stale-connection-checker-class-name"`
	ExceptionSorterClassName        *string `yaml:"exception-sorter-class-name" json:"exception-sorter-class-name"`
	BackgroundValidation            *bool   `yaml:"background-validation" json:"background-validation"`
	BackgroundValidationMillis      *int64  `yaml:"background-validation-millis" json:"background-validation-millis"`
	ValidateOnMatch                 *bool   `yaml:"validate-on-match" json:"validate-on-match"`

	ConnectionProperties map[string]string `yaml:"connection-properties" json:"connection-properties"`
}

// ToSpec builds a datasource spec from the entry.
func (e *DatasourceEntry) ToSpec() (*datasource.Spec, error) {
	spec := datasource.New(e.Name, e.JNDIName, e.ConnectionURL, e.DriverName, e.UserName, e.Password)

	setString(&spec.PoolName, e.PoolName)
	setBool(&spec.UseJavaContext, e.UseJavaContext)
	setBool(&spec.SharePreparedStatements, e.SharePreparedStatements)
	if e.PreparedStatementsCacheSize != nil {
		spec.PreparedStatementsCacheSize = *e.PreparedStatementsCacheSize
	}
	if e.NewConnectionSQL != nil {
		spec.NewConnectionSQL = e.NewConnectionSQL
	}
	setBool(&spec.UseCCM, e.UseCCM)
	setBool(&spec.JTA, e.JTA)
	if e.SecurityDomain != nil {
		spec.SecurityDomain = e.SecurityDomain
	}
	if e.TransactionIsolation != "" {
		iso, err := datasource.ParseTransactionIsolation(e.TransactionIsolation)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", spec.Name, err)
		}
		spec.TransactionIsolation = iso
	}

	if e.MinPoolSize != nil {
		spec.MinPoolSize = *e.MinPoolSize
	}
	if e.MaxPoolSize != nil {
		spec.MaxPoolSize = *e.MaxPoolSize
	}
	setBool(&spec.PoolPrefill, e.PoolPrefill)
	setBool(&spec.PoolUseStrictMin, e.PoolUseStrictMin)

	if e.CheckValidConnectionSQL != nil {
		spec.CheckValidConnectionSQL = e.CheckValidConnectionSQL
	}
	if e.ValidConnectionCheckerClassName != nil {
		spec.ValidConnectionCheckerClassName = e.ValidConnectionCheckerClassName
	}
	if e.StaleConnectionCheckerClassName != nil {
		spec.StaleConnectionCheckerClassName = e.StaleConnectionCheckerClassName
	}
	if e.ExceptionSorterClassName != nil {
		spec.ExceptionSorterClassName = e.ExceptionSorterClassName
	}
	setBool(&spec.BackgroundValidation, e.BackgroundValidation)
	if e.BackgroundValidationMillis != nil {
		spec.BackgroundValidationMillis = *e.BackgroundValidationMillis
	}
	setBool(&spec.ValidateOnMatch, e.ValidateOnMatch)

	for k, v := range e.ConnectionProperties {
		spec.ConnectionProperties[k] = v
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ValidationError represents a manifest error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "datasources[0].jndi-name").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	loc := v.File
	if v.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", v.File, v.Line, v.Column)
	}
	switch {
	case loc != "" && v.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, v.Path, v.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, v.Message)
	case v.Path != "":
		return fmt.Sprintf("%s: %s", v.Path, v.Message)
	default:
		return v.Message
	}
}

// ManifestError is returned when a manifest fails to parse or validate.
type ManifestError struct {
	Errors []ValidationError
}

func (e *ManifestError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid manifest: " + e.Errors[0].String()
	}
	msg := fmt.Sprintf("invalid manifest: %d errors", len(e.Errors))
	for _, v := range e.Errors {
		msg += "\n  " + v.String()
	}
	return msg
}
