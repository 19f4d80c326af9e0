package executor

import (
	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

// Datasource attribute names sent with an add request.
const (
	AttrJNDIName                    = "jndi-name"
	AttrUseJavaContext              = "use-java-context"
	AttrSharePreparedStatements     = "share-prepared-statements"
	AttrPreparedStatementsCacheSize = "prepared-statements-cache-size"
	AttrPoolName                    = "pool-name"
	AttrConnectionURL               = "connection-url"
	AttrNewConnectionSQL            = "new-connection-sql"
	AttrTransactionIsolation        = "transaction-isolation"
	AttrUseCCM                      = "use-ccm"
	AttrJTA                         = "jta"
	AttrDriverName                  = "driver-name"
	AttrUserName                    = "user-name"
	AttrPassword                    = "password"
	AttrSecurityDomain              = "security-domain"
	AttrMinPoolSize                 = "min-pool-size"
	AttrMaxPoolSize                 = "max-pool-size"
	AttrPoolPrefill                 = "pool-prefill"
	AttrPoolUseStrictMin            = "pool-use-strict-min"
	AttrCheckValidConnectionSQL     = "check-valid-connection-sql"
	AttrValidConnectionChecker      = "valid-connection-checker-class-name"
	AttrExceptionSorter             = "exception-sorter-class-name"
	AttrStaleConnectionChecker      = "stale-connection-checker-class-name"
	AttrBackgroundValidation        = "background-validation"
	AttrBackgroundValidationMillis  = "background-validation-millis"
	AttrValidateOnMatch             = "validate-on-match"
)

// datasourceAttributes flattens a spec into add-request parameters. Optional
// attributes are left out when nil, never sent as empty strings.
func datasourceAttributes(spec *datasource.Spec) map[string]management.Value {
	attrs := map[string]management.Value{
		AttrJNDIName:                    management.StringValue(spec.JNDIName),
		AttrUseJavaContext:              management.BoolValue(spec.UseJavaContext),
		AttrSharePreparedStatements:     management.BoolValue(spec.SharePreparedStatements),
		AttrPreparedStatementsCacheSize: management.IntValue(spec.PreparedStatementsCacheSize),
		AttrPoolName:                    management.StringValue(spec.PoolName),

		AttrConnectionURL:        management.StringValue(spec.ConnectionURL),
		AttrTransactionIsolation: management.StringValue(string(spec.TransactionIsolation)),
		AttrUseCCM:               management.BoolValue(spec.UseCCM),
		AttrJTA:                  management.BoolValue(spec.JTA),

		AttrDriverName: management.StringValue(spec.DriverName),
		AttrUserName:   management.StringValue(spec.UserName),
		AttrPassword:   management.StringValue(spec.Password),

		AttrMinPoolSize:      management.IntValue(spec.MinPoolSize),
		AttrMaxPoolSize:      management.IntValue(spec.MaxPoolSize),
		AttrPoolPrefill:      management.BoolValue(spec.PoolPrefill),
		AttrPoolUseStrictMin: management.BoolValue(spec.PoolUseStrictMin),

		AttrBackgroundValidation: management.BoolValue(spec.BackgroundValidation),
		AttrValidateOnMatch:      management.BoolValue(spec.ValidateOnMatch),
	}

	setIfPresent(attrs, AttrNewConnectionSQL, spec.NewConnectionSQL)
	setIfPresent(attrs, AttrSecurityDomain, spec.SecurityDomain)
	setIfPresent(attrs, AttrCheckValidConnectionSQL, spec.CheckValidConnectionSQL)
	setIfPresent(attrs, AttrValidConnectionChecker, spec.ValidConnectionCheckerClassName)
	setIfPresent(attrs, AttrExceptionSorter, spec.ExceptionSorterClassName)
	setIfPresent(attrs, AttrStaleConnectionChecker, spec.StaleConnectionCheckerClassName)

	if spec.BackgroundValidationMillis > 0 {
		attrs[AttrBackgroundValidationMillis] = management.LongValue(spec.BackgroundValidationMillis)
	}

	return attrs
}

func setIfPresent(attrs map[string]management.Value, name string, value *string) {
	if value != nil {
		attrs[name] = management.StringValue(*value)
	}
}
