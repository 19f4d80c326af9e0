package datasource

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// JNDI prefixes recognized by the application server.
const (
	JNDIPrefix      = "java:/"
	JNDIPrefixJBoss = "java:jboss"

	poolNameSuffix = "-pool"
)

// Vendor defaults for the connection checker and exception sorter.
const (
	DefaultValidConnectionChecker = "org.jboss.jca.adapters.jdbc.extensions.mysql.MySQLValidConnectionChecker"
	DefaultExceptionSorter        = "org.jboss.jca.adapters.jdbc.extensions.mysql.MySQLExceptionSorter"
)

// Pool sizing defaults.
const (
	DefaultMinPoolSize = 1
	DefaultMaxPoolSize = 2
)

// Spec is the configuration of a single JDBC datasource.
//
// Optional string attributes are pointers: nil means the attribute is not
// sent at all, which the server treats differently from an empty string.
type Spec struct {
	Name          string `validate:"required"`
	JNDIName      string `validate:"required"`
	PoolName      string `validate:"required"`
	ConnectionURL string `validate:"required"`
	DriverName    string `validate:"required"`
	UserName      string
	Password      string

	UseJavaContext              bool
	SharePreparedStatements     bool
	PreparedStatementsCacheSize int32 `validate:"gte=0"`
	NewConnectionSQL            *string
	UseCCM                      bool
	JTA                         bool
	SecurityDomain              *string
	TransactionIsolation        TransactionIsolation

	MinPoolSize      int32 `validate:"gte=0"`
	MaxPoolSize      int32 `validate:"gte=1,gtefield=MinPoolSize"`
	PoolPrefill      bool
	PoolUseStrictMin bool

	CheckValidConnectionSQL         *string
	ValidConnectionCheckerClassName *string
	StaleConnectionCheckerClassName *string
	ExceptionSorterClassName        *string
	BackgroundValidation            bool
	BackgroundValidationMillis      int64 `validate:"gte=0"`
	ValidateOnMatch                 bool

	// ConnectionProperties are kept with the spec but not sent on add.
	ConnectionProperties map[string]string
}

var validate = validator.New()

// New creates a datasource spec with normalized JNDI name, derived names and
// server defaults. An empty name is derived from the JNDI name.
func New(name, jndiName, connectionURL, driverName, userName, password string) *Spec {
	jndi := NormalizeJNDIName(jndiName)
	if strings.TrimSpace(name) == "" {
		name = stripJNDIPrefix(jndi)
	}

	return &Spec{
		Name:                            name,
		JNDIName:                        jndi,
		PoolName:                        DefaultPoolName(jndi),
		ConnectionURL:                   connectionURL,
		DriverName:                      driverName,
		UserName:                        userName,
		Password:                        password,
		UseJavaContext:                  true,
		UseCCM:                          true,
		JTA:                             true,
		TransactionIsolation:            TransactionReadUncommitted,
		MinPoolSize:                     DefaultMinPoolSize,
		MaxPoolSize:                     DefaultMaxPoolSize,
		ValidConnectionCheckerClassName: Optional(DefaultValidConnectionChecker),
		ExceptionSorterClassName:        Optional(DefaultExceptionSorter),
		ConnectionProperties:            make(map[string]string),
	}
}

// NormalizeJNDIName prepends java:/ unless the name already starts with a
// recognized prefix.
func NormalizeJNDIName(jndiName string) string {
	jndiName = strings.TrimSpace(jndiName)
	if jndiName == "" {
		return ""
	}
	if strings.HasPrefix(jndiName, JNDIPrefix) || strings.HasPrefix(jndiName, JNDIPrefixJBoss) {
		return jndiName
	}
	return JNDIPrefix + jndiName
}

// DefaultPoolName returns the normalized JNDI name without java:/, suffixed
// with -pool. Names under java:jboss/ keep their full JNDI name.
func DefaultPoolName(jndiName string) string {
	stripped := strings.TrimPrefix(NormalizeJNDIName(jndiName), JNDIPrefix)
	if stripped == "" {
		return ""
	}
	return stripped + poolNameSuffix
}

func stripJNDIPrefix(jndi string) string {
	switch {
	case strings.HasPrefix(jndi, JNDIPrefix):
		return strings.TrimPrefix(jndi, JNDIPrefix)
	case strings.HasPrefix(jndi, JNDIPrefixJBoss+"/"):
		return strings.TrimPrefix(jndi, JNDIPrefixJBoss+"/")
	default:
		return strings.TrimPrefix(jndi, JNDIPrefixJBoss)
	}
}

// Optional returns a pointer to s, for setting optional attributes.
func Optional(s string) *string {
	return &s
}

// Validate checks the spec for structural errors.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("datasource spec is required")
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid datasource %q: %w", s.Name, err)
	}
	if !strings.HasPrefix(s.JNDIName, JNDIPrefix) && !strings.HasPrefix(s.JNDIName, JNDIPrefixJBoss) {
		return fmt.Errorf("invalid datasource %q: jndi name %q is not normalized", s.Name, s.JNDIName)
	}
	if err := s.TransactionIsolation.Validate(); err != nil {
		return fmt.Errorf("invalid datasource %q: %w", s.Name, err)
	}
	return nil
}
