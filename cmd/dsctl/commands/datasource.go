package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
)

// specOptions are the create flags that map onto datasource attributes.
type specOptions struct {
	name                   string
	jndiName               string
	connectionURL          string
	driverName             string
	userName               string
	password               string
	poolName               string
	minPoolSize            int32
	maxPoolSize            int32
	isolation              string
	securityDomain         string
	newConnectionSQL       string
	checkValidSQL          string
	jta                    bool
	useCCM                 bool
	poolPrefill            bool
	backgroundValidationMs int64
	validateOnMatch        bool
	properties             map[string]string
}

func (o *specOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.name, "name", "", "datasource name (default: JNDI name without prefix)")
	f.StringVar(&o.jndiName, "jndi-name", "", "JNDI name, java:/ is prepended when missing")
	f.StringVar(&o.connectionURL, "connection-url", "", "JDBC connection URL")
	f.StringVar(&o.driverName, "driver", "", "JDBC driver name")
	f.StringVar(&o.userName, "ds-user", "", "database user")
	f.StringVar(&o.password, "ds-password", "", "database password")
	f.StringVar(&o.poolName, "pool-name", "", "pool name (default: <jndi>-pool)")
	f.Int32Var(&o.minPoolSize, "min-pool-size", datasource.DefaultMinPoolSize, "minimum pool size")
	f.Int32Var(&o.maxPoolSize, "max-pool-size", datasource.DefaultMaxPoolSize, "maximum pool size")
	f.StringVar(&o.isolation, "transaction-isolation", "", "transaction isolation (e.g. READ_COMMITTED)")
	f.StringVar(&o.securityDomain, "security-domain", "", "security domain")
	f.StringVar(&o.newConnectionSQL, "new-connection-sql", "", "SQL run on every new connection")
	f.StringVar(&o.checkValidSQL, "check-valid-connection-sql", "", "SQL used to validate connections")
	f.BoolVar(&o.jta, "jta", true, "enable JTA integration")
	f.BoolVar(&o.useCCM, "use-ccm", true, "enable the cached connection manager")
	f.BoolVar(&o.poolPrefill, "pool-prefill", false, "prefill the pool")
	f.Int64Var(&o.backgroundValidationMs, "background-validation-millis", 0, "enable background validation at this interval")
	f.BoolVar(&o.validateOnMatch, "validate-on-match", false, "validate connections on match")
	f.StringToStringVar(&o.properties, "property", nil, "connection property key=value (repeatable)")

	_ = cmd.MarkFlagRequired("jndi-name")
	_ = cmd.MarkFlagRequired("connection-url")
	_ = cmd.MarkFlagRequired("driver")
}

// build returns the datasource spec for the flags.
func (o *specOptions) build(cmd *cobra.Command) (*datasource.Spec, error) {
	spec := datasource.New(o.name, o.jndiName, o.connectionURL, o.driverName, o.userName, o.password)
	f := cmd.Flags()

	if o.poolName != "" {
		spec.PoolName = o.poolName
	}
	spec.MinPoolSize = o.minPoolSize
	spec.MaxPoolSize = o.maxPoolSize
	if o.isolation != "" {
		iso, err := datasource.ParseTransactionIsolation(o.isolation)
		if err != nil {
			return nil, err
		}
		spec.TransactionIsolation = iso
	}
	if f.Changed("security-domain") {
		spec.SecurityDomain = datasource.Optional(o.securityDomain)
	}
	if f.Changed("new-connection-sql") {
		spec.NewConnectionSQL = datasource.Optional(o.newConnectionSQL)
	}
	if f.Changed("check-valid-connection-sql") {
		spec.CheckValidConnectionSQL = datasource.Optional(o.checkValidSQL)
	}
	spec.JTA = o.jta
	spec.UseCCM = o.useCCM
	spec.PoolPrefill = o.poolPrefill
	if o.backgroundValidationMs > 0 {
		spec.BackgroundValidation = true
		spec.BackgroundValidationMillis = o.backgroundValidationMs
	}
	spec.ValidateOnMatch = o.validateOnMatch
	for k, v := range o.properties {
		spec.ConnectionProperties[k] = v
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func newCreateCommand() *cobra.Command {
	var (
		opts   specOptions
		enable bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a datasource",
		Long: `Create a JDBC datasource on every selected profile.

The datasource is checked against the admission policies first when policies
are enabled in the config file. With --enable it is enabled right after it is
added on each profile.`,
		Example: `  # Create on a standalone server
  dsctl create --jndi-name OrdersDS --connection-url jdbc:mysql://db:3306/orders --driver mysql

  # Create and enable on two domain profiles
  dsctl create --jndi-name OrdersDS --connection-url jdbc:mysql://db:3306/orders \
    --driver mysql --profile full --profile full-ha --enable`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := opts.build(cmd)
			if err != nil {
				return err
			}

			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), "create")

			if err := r.admit(ctx, "create", spec); err != nil {
				return r.finish(ctx, err)
			}

			err = r.executor.CreateDatasource(ctx, r.target, spec, enable, r.profiles...)
			if err == nil {
				log.Info().Str("datasource", spec.Name).Strs("profiles", r.profiles).Msg("Datasource created")
			}
			return r.finish(ctx, err)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the datasource after creating it")

	return cmd
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Short:   "Remove a datasource",
		Example: `  dsctl remove OrdersDS --profile full`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), "remove")

			err = r.executor.RemoveDatasource(ctx, r.target, args[0], r.profiles...)
			if err == nil {
				log.Info().Str("datasource", args[0]).Msg("Datasource removed")
			}
			return r.finish(ctx, err)
		},
	}
}

func newEnableCommand() *cobra.Command {
	return newToggleCommand("enable", true)
}

func newDisableCommand() *cobra.Command {
	return newToggleCommand("disable", false)
}

func newToggleCommand(verb string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " NAME [NAME...]",
		Short: fmt.Sprintf("%s datasources", capitalize(verb)),
		Long: fmt.Sprintf(`%s one or more datasources on every selected profile.

A datasource that is already in the requested state is left alone.`, capitalize(verb)),
		Example: fmt.Sprintf(`  dsctl %s OrdersDS
  dsctl %s OrdersDS ReportsDS --profile full`, verb, verb),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), verb)

			switch {
			case len(args) == 1 && enable:
				err = r.executor.EnableDatasource(ctx, r.target, args[0], r.profiles...)
			case len(args) == 1:
				err = r.executor.DisableDatasource(ctx, r.target, args[0], r.profiles...)
			case enable:
				err = r.executor.EnableDatasources(ctx, r.target, args, r.profiles...)
			default:
				err = r.executor.DisableDatasources(ctx, r.target, args, r.profiles...)
			}
			if err == nil {
				log.Info().Strs("datasources", args).Bool("enabled", enable).Msg("Datasource state set")
			}
			return r.finish(ctx, err)
		},
	}
}

func newExistsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exists NAME",
		Short: "Check whether a datasource exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), "exists")

			profile, err := r.singleProfile()
			if err != nil {
				return r.finish(ctx, err)
			}
			exists, err := r.executor.IsDatasourceExists(ctx, r.target, args[0], profile)
			if err != nil {
				return r.finish(ctx, err)
			}
			return r.finish(ctx, printResult(cmd, map[string]interface{}{
				"datasource": args[0],
				"exists":     exists,
			}, fmt.Sprintf("%t", exists)))
		},
	}
}

func newEnabledCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enabled NAME",
		Short: "Check whether a datasource is enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), "enabled")

			profile, err := r.singleProfile()
			if err != nil {
				return r.finish(ctx, err)
			}
			enabled, err := r.executor.IsDatasourceEnabled(ctx, r.target, profile, args[0])
			if err != nil {
				return r.finish(ctx, err)
			}
			return r.finish(ctx, printResult(cmd, map[string]interface{}{
				"datasource": args[0],
				"enabled":    enabled,
			}, fmt.Sprintf("%t", enabled)))
		},
	}
}

func newListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List datasources",
		Long: `List the datasources of one profile, or of the server when no profile is
given. --status filters by enabled state; every non-ALL filter reads the
enabled attribute of each datasource.`,
		Example: `  dsctl list
  dsctl list --profile full --status enabled --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := datasource.ParseStatusFilter(status)
			if err != nil {
				return err
			}

			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}
			ctx := r.begin(cmd.Context(), "list")

			profile, err := r.singleProfile()
			if err != nil {
				return r.finish(ctx, err)
			}
			names, err := r.executor.GetDatasources(ctx, r.target, profile, filter)
			if err != nil {
				return r.finish(ctx, err)
			}
			return r.finish(ctx, printList(cmd, names))
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "filter by state (all, enabled, disabled)")

	return cmd
}
