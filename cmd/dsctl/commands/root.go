package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	server      string
	host        string
	port        int
	user        string
	password    string
	profiles    []string
	journalPath string
	metricsAddr string
	logLevel    string
	jsonOutput  bool
}

var globals globalOptions

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	globals = globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "dsctl",
		Short: "Manage JDBC datasources on WildFly/JBoss servers",
		Long: `dsctl manages JDBC datasources through the WildFly/JBoss HTTP management API.

Every operation opens a fresh authenticated session, sends one request and
closes the session again. On a domain controller, operations fan out over the
profiles given with --profile and stop at the first profile that fails.

Features:
  - Create, remove, enable and disable datasources
  - Declarative manifests in YAML or CUE (dsctl apply)
  - Admission policies written in Rego
  - Operation journal in SQLite (dsctl history)
  - Prometheus metrics and OpenTelemetry traces`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.configPath, "config", "c", "", "config file path")
	flags.StringVarP(&globals.server, "server", "s", "", "server name from the config file")
	flags.StringVarP(&globals.host, "host", "H", "", "management host (overrides the server)")
	flags.IntVarP(&globals.port, "port", "P", 0, "management port (overrides the server)")
	flags.StringVarP(&globals.user, "user", "u", "", "management user")
	flags.StringVarP(&globals.password, "password", "p", "", "management password")
	flags.StringArrayVar(&globals.profiles, "profile", nil, "domain profile (repeatable)")
	flags.StringVar(&globals.journalPath, "journal", "", "record round trips in this sqlite file")
	flags.StringVar(&globals.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.StringVar(&globals.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&globals.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newRemoveCommand())
	rootCmd.AddCommand(newEnableCommand())
	rootCmd.AddCommand(newDisableCommand())
	rootCmd.AddCommand(newExistsCommand())
	rootCmd.AddCommand(newEnabledCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
