package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techblue/jboss-controller-operation-executor/pkg/config"
	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/executor"
	"github.com/techblue/jboss-controller-operation-executor/pkg/policy"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/stores"
	"github.com/techblue/jboss-controller-operation-executor/pkg/telemetry"
)

// runtime wires the executor and its collaborators for one invocation.
type runtime struct {
	cfg       *config.Config
	target    *session.ConnectionConfig
	profiles  []string
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	store     *stores.SQLiteStore
	policies  *policy.Engine
	executor  *executor.Executor
	run       *stores.Run
}

// runtimeOptions select the optional parts of the runtime.
type runtimeOptions struct {
	// needTarget resolves a management endpoint.
	needTarget bool

	// needJournal fails when no journal is configured.
	needJournal bool
}

// newRuntime loads the config file, applies the global flags and builds the
// executor. The caller must call finish.
func newRuntime(cmd *cobra.Command, opts runtimeOptions) (*runtime, error) {
	ctx := cmd.Context()

	cfg, err := config.LoadConfig(globals.configPath)
	if err != nil {
		return nil, err
	}

	r := &runtime{cfg: cfg, profiles: cfg.Profiles}
	if len(globals.profiles) > 0 {
		r.profiles = globals.profiles
	}

	if opts.needTarget {
		if r.target, err = resolveTarget(cmd, cfg); err != nil {
			return nil, err
		}
	}

	if err := r.setupTelemetry(cmd); err != nil {
		return nil, err
	}

	if err := r.setupJournal(ctx, opts.needJournal); err != nil {
		r.shutdown(ctx)
		return nil, err
	}

	if cfg.Policy.Enabled {
		if err := r.setupPolicies(ctx); err != nil {
			r.shutdown(ctx)
			return nil, err
		}
	}

	execCfg := executor.Config{
		Opener:  session.NewHTTPOpener(r.logger),
		Logger:  r.logger,
		Metrics: r.telemetry.Metrics,
		Tracer:  r.telemetry.Tracer,
	}
	if r.store != nil {
		execCfg.Journal = r.store
	}
	if r.executor, err = executor.New(execCfg); err != nil {
		r.shutdown(ctx)
		return nil, err
	}

	return r, nil
}

// resolveTarget picks the server and applies the connection flags.
func resolveTarget(cmd *cobra.Command, cfg *config.Config) (*session.ConnectionConfig, error) {
	target, err := cfg.ResolveServer(globals.server)
	if err != nil {
		if globals.host == "" || globals.server != "" {
			return nil, err
		}
		target = session.DefaultConnectionConfig(globals.host)
	}

	flags := cmd.Flags()
	if globals.host != "" {
		target.Host = globals.host
	}
	if flags.Changed("port") {
		target.Port = globals.port
	}
	if flags.Changed("user") {
		target.Username = globals.user
	}
	if flags.Changed("password") {
		target.Password = globals.password
	}

	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

func (r *runtime) setupTelemetry(cmd *cobra.Command) error {
	tcfg := *r.cfg.Telemetry
	tcfg.ServiceVersion = cmd.Root().Version
	if globals.logLevel != "" {
		tcfg.Logging.Level = strings.ToLower(globals.logLevel)
		zerolog.SetGlobalLevel(telemetry.ParseLevel(tcfg.Logging.Level))
	}
	if globals.metricsAddr != "" {
		tcfg.Metrics.Enabled = true
		tcfg.Metrics.ListenAddress = globals.metricsAddr
	}

	t, err := telemetry.NewTelemetry(&tcfg)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	if err := t.StartMetricsServer(); err != nil {
		_ = t.Shutdown(cmd.Context())
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	r.telemetry = t
	r.logger = t.Logger.Zerolog()
	return nil
}

func (r *runtime) setupJournal(ctx context.Context, required bool) error {
	path := globals.journalPath
	if path == "" && r.cfg.Journal.Enabled {
		path = r.cfg.Journal.Path
	}
	if path == "" {
		if required {
			return fmt.Errorf("no journal configured: enable it in the config file or pass --journal")
		}
		return nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	r.store = store

	if retention := r.cfg.Journal.Retention; retention > 0 {
		pruned, err := store.PruneOperations(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune journal")
		} else if pruned > 0 {
			log.Debug().Int64("records", pruned).Msg("Pruned journal")
		}
	}
	return nil
}

func (r *runtime) setupPolicies(ctx context.Context) error {
	engine, err := policy.NewEngine(r.logger)
	if err != nil {
		return err
	}
	if len(r.cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, r.cfg.Policy.Paths); err != nil {
			return err
		}
	}
	r.policies = engine
	return nil
}

// begin starts a journal run and returns a context carrying its ID.
func (r *runtime) begin(ctx context.Context, command string) context.Context {
	ctx = r.telemetry.WithContext(ctx)
	if r.store == nil {
		return ctx
	}

	target := ""
	if r.target != nil {
		target = r.target.Address()
	}
	run, err := r.store.StartRun(ctx, command, target)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
		return ctx
	}
	r.run = run
	return stores.WithRunID(ctx, run.ID)
}

// finish completes the journal run and releases everything. It returns
// runErr so commands can end with `return r.finish(ctx, err)`.
func (r *runtime) finish(ctx context.Context, runErr error) error {
	// The command context may already be cancelled.
	ctx = context.WithoutCancel(ctx)

	r.completeRun(ctx, runErr)
	r.shutdown(ctx)
	return runErr
}

// track records fn as its own journal run. Long-running commands use it for
// every unit of work.
func (r *runtime) track(ctx context.Context, command string, fn func(context.Context) error) error {
	runCtx := r.begin(ctx, command)
	err := fn(runCtx)
	r.completeRun(context.WithoutCancel(runCtx), err)
	return err
}

func (r *runtime) completeRun(ctx context.Context, runErr error) {
	if r.store == nil || r.run == nil {
		return
	}
	if err := r.store.CompleteRun(ctx, r.run.ID, runErr); err != nil {
		log.Warn().Err(err).Str("run_id", r.run.ID).Msg("Failed to complete run")
	}
	r.run = nil
}

func (r *runtime) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if r.telemetry != nil {
		errs = append(errs, r.telemetry.Shutdown(ctx))
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down cleanly")
	}
}

// admit evaluates admission policies for a datasource about to be created.
func (r *runtime) admit(ctx context.Context, command string, spec *datasource.Spec) error {
	if r.policies == nil {
		return nil
	}

	result, err := r.policies.Evaluate(ctx, spec, &policy.Context{
		Operation:   command,
		Target:      r.target.Address(),
		Profiles:    r.profiles,
		Environment: r.cfg.Policy.Environment,
	})
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		log.Warn().Str("policy", w.Policy).Str("datasource", w.Datasource).Msg(w.Message)
	}
	return result.Err()
}

// singleProfile returns the one profile a read command targets.
func (r *runtime) singleProfile() (string, error) {
	switch len(r.profiles) {
	case 0:
		return "", nil
	case 1:
		return r.profiles[0], nil
	default:
		return "", fmt.Errorf("this command takes at most one --profile, got %d", len(r.profiles))
	}
}
