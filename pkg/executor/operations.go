package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
)

// Executor operation names, used for logging, metrics and errors.
const (
	CommandCreate  = "create"
	CommandRemove  = "remove"
	CommandEnable  = "enable"
	CommandDisable = "disable"
	CommandExists  = "exists"
	CommandEnabled = "enabled"
	CommandList    = "list"
)

// CreateDatasource adds the datasource on each profile, or on the unscoped
// target when no profile is given. With enable set, the datasource is enabled
// on a profile right after it was added there.
func (e *Executor) CreateDatasource(ctx context.Context, cfg *session.ConnectionConfig, spec *datasource.Spec, enable bool, profiles ...string) error {
	return e.observe(ctx, CommandCreate, cfg, profiles, func(ctx context.Context) error {
		if err := checkTarget(cfg, CommandCreate); err != nil {
			return err
		}
		if err := spec.Validate(); err != nil {
			return newError(KindInvalidArgument, "invalid datasource", err).WithOperation(CommandCreate)
		}

		prog := &progress{}
		return forEachProfile(profiles, prog, func(profile string) error {
			if err := e.create(ctx, cfg, spec, profile); err != nil {
				return err
			}
			prog.record(string(management.OperationAdd), spec.Name, profile)
			if !enable {
				return nil
			}
			if err := e.toggle(ctx, cfg, management.OperationEnable, spec.Name, profile); err != nil {
				return err
			}
			prog.record(string(management.OperationEnable), spec.Name, profile)
			return nil
		})
	})
}

func (e *Executor) create(ctx context.Context, cfg *session.ConnectionConfig, spec *datasource.Spec, profile string) error {
	c := call{
		command:    CommandCreate,
		activity:   fmt.Sprintf("adding datasource '%s'", spec.Name),
		datasource: spec.Name,
	}
	log := e.logger.With().Str("datasource", spec.Name).Str("profile", profile).Logger()

	log.Info().Str("jndi_name", spec.JNDIName).Msg("Adding datasource")
	if _, err := e.roundTrip(ctx, cfg, c, profile, buildAddRequest(spec, profile)); err != nil {
		return err
	}
	log.Info().Msg("Datasource added")
	return nil
}

// RemoveDatasource removes the datasource from each profile.
func (e *Executor) RemoveDatasource(ctx context.Context, cfg *session.ConnectionConfig, name string, profiles ...string) error {
	return e.observe(ctx, CommandRemove, cfg, profiles, func(ctx context.Context) error {
		if err := checkArguments(cfg, CommandRemove, name); err != nil {
			return err
		}

		prog := &progress{}
		return forEachProfile(profiles, prog, func(profile string) error {
			c := call{
				command:    CommandRemove,
				activity:   fmt.Sprintf("removing datasource '%s'", name),
				datasource: name,
			}
			log := e.logger.With().Str("datasource", name).Str("profile", profile).Logger()

			log.Info().Msg("Removing datasource")
			if _, err := e.roundTrip(ctx, cfg, c, profile, buildRemoveRequest(name, profile)); err != nil {
				return err
			}
			log.Info().Msg("Datasource removed")
			prog.record(CommandRemove, name, profile)
			return nil
		})
	})
}

// EnableDatasource enables the datasource on each profile. Enabling an
// enabled datasource succeeds.
func (e *Executor) EnableDatasource(ctx context.Context, cfg *session.ConnectionConfig, name string, profiles ...string) error {
	return e.setEnabled(ctx, cfg, management.OperationEnable, []string{name}, profiles)
}

// DisableDatasource disables the datasource on each profile. Disabling a
// disabled datasource succeeds.
func (e *Executor) DisableDatasource(ctx context.Context, cfg *session.ConnectionConfig, name string, profiles ...string) error {
	return e.setEnabled(ctx, cfg, management.OperationDisable, []string{name}, profiles)
}

// EnableDatasources enables every named datasource on each profile. An empty
// name list is rejected before any session is opened.
func (e *Executor) EnableDatasources(ctx context.Context, cfg *session.ConnectionConfig, names []string, profiles ...string) error {
	return e.setEnabled(ctx, cfg, management.OperationEnable, names, profiles)
}

// DisableDatasources disables every named datasource on each profile. An
// empty name list is rejected before any session is opened.
func (e *Executor) DisableDatasources(ctx context.Context, cfg *session.ConnectionConfig, names []string, profiles ...string) error {
	return e.setEnabled(ctx, cfg, management.OperationDisable, names, profiles)
}

// setEnabled runs enable or disable for each (name, profile) pair, names
// outermost.
func (e *Executor) setEnabled(ctx context.Context, cfg *session.ConnectionConfig, op management.Operation, names, profiles []string) error {
	command := string(op)
	return e.observe(ctx, command, cfg, profiles, func(ctx context.Context) error {
		if len(names) == 0 {
			return newError(KindInvalidArgument, fmt.Sprintf("datasource names are required to %s datasources", command), nil).
				WithOperation(command)
		}
		if err := checkArguments(cfg, command, names...); err != nil {
			return err
		}

		prog := &progress{}
		for _, name := range names {
			err := forEachProfile(profiles, prog, func(profile string) error {
				if err := e.toggle(ctx, cfg, op, name, profile); err != nil {
					return err
				}
				prog.record(command, name, profile)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// toggle enables or disables one datasource on one profile. When the
// controller rejects the change, the current state is read back and a
// datasource already in the requested state counts as success.
func (e *Executor) toggle(ctx context.Context, cfg *session.ConnectionConfig, op management.Operation, name, profile string) error {
	want := op == management.OperationEnable
	verb, done := "disabling", "Datasource disabled"
	if want {
		verb, done = "enabling", "Datasource enabled"
	}

	c := call{
		command:    string(op),
		activity:   fmt.Sprintf("%s datasource '%s'", verb, name),
		datasource: name,
	}
	log := e.logger.With().Str("datasource", name).Str("profile", profile).Logger()

	log.Info().Msgf("%s datasource", strings.ToUpper(verb[:1])+verb[1:])
	_, err := e.roundTrip(ctx, cfg, c, profile, buildToggleRequest(op, name, profile))
	if err == nil {
		log.Info().Msg(done)
		return nil
	}
	if !IsRemoteRejected(err) {
		return err
	}

	enabled, stateErr := e.isEnabled(ctx, cfg, name, profile)
	if stateErr == nil && enabled == want {
		log.Info().Bool("enabled", enabled).Msg("Datasource already in requested state")
		return nil
	}
	return err
}

// IsDatasourceExists reports whether a datasource with exactly this name is
// listed on the profile.
func (e *Executor) IsDatasourceExists(ctx context.Context, cfg *session.ConnectionConfig, name, profile string) (bool, error) {
	var exists bool
	err := e.observe(ctx, CommandExists, cfg, []string{profile}, func(ctx context.Context) error {
		if err := checkArguments(cfg, CommandExists, name); err != nil {
			return err
		}

		log := e.logger.With().Str("datasource", name).Str("profile", profile).Logger()
		log.Info().Msg("Checking if datasource exists")

		names, err := e.list(ctx, cfg, profile, fmt.Sprintf("checking if datasource '%s' exists", name), name)
		if err != nil {
			return err
		}
		for _, existing := range names {
			if existing == name {
				exists = true
				break
			}
		}

		log.Info().Bool("exists", exists).Msg("Datasource existence checked")
		return nil
	})
	return exists, err
}

// IsDatasourceEnabled reads the enabled attribute of the datasource.
func (e *Executor) IsDatasourceEnabled(ctx context.Context, cfg *session.ConnectionConfig, profile, name string) (bool, error) {
	var enabled bool
	err := e.observe(ctx, CommandEnabled, cfg, []string{profile}, func(ctx context.Context) error {
		if err := checkArguments(cfg, CommandEnabled, name); err != nil {
			return err
		}
		var err error
		enabled, err = e.isEnabled(ctx, cfg, name, profile)
		return err
	})
	return enabled, err
}

func (e *Executor) isEnabled(ctx context.Context, cfg *session.ConnectionConfig, name, profile string) (bool, error) {
	c := call{
		command:    CommandEnabled,
		activity:   fmt.Sprintf("checking if datasource '%s' is enabled", name),
		datasource: name,
	}

	resp, err := e.roundTrip(ctx, cfg, c, profile, buildReadEnabledRequest(name, profile))
	if err != nil {
		return false, err
	}

	enabled, err := resp.BoolResult()
	if err != nil {
		return false, newError(KindTransport,
			fmt.Sprintf("Unexpected result while %s", c.describe(profile)), err).
			WithOperation(c.command).
			WithDatasource(name).
			WithProfile(profile)
	}
	return enabled, nil
}

// GetDatasources lists datasource names on the profile. For ALL the listed
// names are returned as is; otherwise the enabled state of every listed
// datasource is read and only matches are kept. An empty filter means ALL.
func (e *Executor) GetDatasources(ctx context.Context, cfg *session.ConnectionConfig, profile string, filter datasource.StatusFilter) ([]string, error) {
	var result []string
	err := e.observe(ctx, CommandList, cfg, []string{profile}, func(ctx context.Context) error {
		if filter == "" {
			filter = datasource.StatusAll
		}
		if err := filter.Validate(); err != nil {
			return newError(KindInvalidArgument, "invalid status filter", err).WithOperation(CommandList)
		}
		if err := checkTarget(cfg, CommandList); err != nil {
			return err
		}

		names, err := e.list(ctx, cfg, profile, "listing datasources", "")
		if err != nil {
			return err
		}

		if filter == datasource.StatusAll {
			result = names
		} else {
			result = make([]string, 0, len(names))
			for _, name := range names {
				enabled, err := e.isEnabled(ctx, cfg, name, profile)
				if err != nil {
					return err
				}
				if filter.Matches(enabled) {
					result = append(result, name)
				}
			}
		}

		e.metrics.SetDatasourceCount(profile, string(filter), len(result))
		e.logger.Debug().
			Str("profile", profile).
			Str("status", string(filter)).
			Int("count", len(result)).
			Msg("Datasources listed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// list reads the datasources subsystem and returns the sorted child names.
func (e *Executor) list(ctx context.Context, cfg *session.ConnectionConfig, profile, activity, datasourceName string) ([]string, error) {
	c := call{
		command:    CommandList,
		activity:   activity,
		datasource: datasourceName,
	}

	resp, err := e.roundTrip(ctx, cfg, c, profile, buildListRequest(profile))
	if err != nil {
		return nil, err
	}

	names, err := resp.ChildNames(AddressDatasource)
	if err != nil {
		return nil, newError(KindTransport,
			fmt.Sprintf("Unexpected result while %s", c.describe(profile)), err).
			WithOperation(c.command).
			WithProfile(profile)
	}
	return names, nil
}

// checkArguments validates the target and requires non-blank datasource names.
func checkArguments(cfg *session.ConnectionConfig, command string, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return newError(KindInvalidArgument, "datasource name is required", nil).WithOperation(command)
		}
	}
	return checkTarget(cfg, command)
}
