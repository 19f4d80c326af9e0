package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/techblue/jboss-controller-operation-executor/pkg/config"
	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/policy"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
)

// Planner computes and applies datasource plans.
type Planner struct {
	ops         Operations
	admission   Admission
	environment string
	logger      zerolog.Logger
}

// Config holds planner dependencies. Admission is optional.
type Config struct {
	Operations  Operations
	Admission   Admission
	Environment string
	Logger      zerolog.Logger
}

// New creates a planner.
func New(cfg Config) (*Planner, error) {
	if cfg.Operations == nil {
		return nil, fmt.Errorf("operations are required")
	}
	return &Planner{
		ops:         cfg.Operations,
		admission:   cfg.Admission,
		environment: cfg.Environment,
		logger:      cfg.Logger.With().Str("component", "planner").Logger(),
	}, nil
}

// FromManifest converts manifest entries to desired datasources.
func FromManifest(m *config.Manifest) ([]Desired, error) {
	desired := make([]Desired, 0, len(m.Datasources))
	for i := range m.Datasources {
		spec, err := m.Datasources[i].ToSpec()
		if err != nil {
			return nil, err
		}
		desired = append(desired, Desired{Spec: spec, Enabled: m.Datasources[i].Enabled})
	}
	return desired, nil
}

// ComputePlan compares the declared datasources with what each profile
// currently holds. No profiles means an unscoped server.
func (p *Planner) ComputePlan(ctx context.Context, cfg *session.ConnectionConfig, desired []Desired, profiles []string) (*Plan, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connection config is required")
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		Target:    cfg.Address(),
		Profiles:  profiles,
		CreatedAt: time.Now(),
		Summary:   Summary{Datasources: len(desired)},
	}

	targets := profiles
	if len(targets) == 0 {
		targets = []string{""}
	}

	for _, profile := range targets {
		existing, err := p.ops.GetDatasources(ctx, cfg, profile, datasource.StatusAll)
		if err != nil {
			return nil, fmt.Errorf("failed to list datasources: %w", err)
		}
		present := make(map[string]bool, len(existing))
		for _, name := range existing {
			present[name] = true
		}

		for _, d := range desired {
			change, err := p.computeChange(ctx, cfg, profile, d, present[d.Spec.Name])
			if err != nil {
				return nil, err
			}
			plan.Changes = append(plan.Changes, change)
		}
	}

	if err := p.admit(ctx, cfg, plan); err != nil {
		return nil, err
	}

	sortChanges(plan.Changes)
	for _, c := range plan.Changes {
		switch c.Action {
		case ActionCreate:
			plan.Summary.ToCreate++
		case ActionEnable:
			plan.Summary.ToEnable++
		case ActionDisable:
			plan.Summary.ToDisable++
		case ActionNoop:
			plan.Summary.NoChange++
		}
	}
	plan.Summary.Denied = len(plan.Denied)

	p.logger.Debug().
		Str("plan_id", plan.ID).
		Str("target", plan.Target).
		Int("to_create", plan.Summary.ToCreate).
		Int("to_enable", plan.Summary.ToEnable).
		Int("to_disable", plan.Summary.ToDisable).
		Int("denied", plan.Summary.Denied).
		Msg("Plan computed")

	return plan, nil
}

func (p *Planner) computeChange(ctx context.Context, cfg *session.ConnectionConfig, profile string, d Desired, exists bool) (Change, error) {
	change := Change{
		Profile:    profile,
		Datasource: d.Spec.Name,
		Spec:       d.Spec,
		Action:     ActionNoop,
	}

	if !exists {
		change.Action = ActionCreate
		change.Enable = d.Enabled != nil && *d.Enabled
		return change, nil
	}
	if d.Enabled == nil {
		return change, nil
	}

	enabled, err := p.ops.IsDatasourceEnabled(ctx, cfg, profile, d.Spec.Name)
	if err != nil {
		return change, fmt.Errorf("failed to read state of %s: %w", d.Spec.Name, err)
	}
	switch {
	case *d.Enabled && !enabled:
		change.Action = ActionEnable
	case !*d.Enabled && enabled:
		change.Action = ActionDisable
	}
	return change, nil
}

// admit evaluates admission policies once per datasource that is about to
// be created.
func (p *Planner) admit(ctx context.Context, cfg *session.ConnectionConfig, plan *Plan) error {
	if p.admission == nil {
		return nil
	}

	checked := make(map[string]bool)
	for _, c := range plan.Changes {
		if c.Action != ActionCreate || checked[c.Datasource] {
			continue
		}
		checked[c.Datasource] = true

		result, err := p.admission.Evaluate(ctx, c.Spec, &policy.Context{
			Operation:   "apply",
			Target:      cfg.Address(),
			Profiles:    plan.Profiles,
			Environment: p.environment,
		})
		if err != nil {
			return fmt.Errorf("failed to evaluate policies for %s: %w", c.Datasource, err)
		}
		plan.Denied = append(plan.Denied, result.Violations...)
		plan.Warnings = append(plan.Warnings, result.Warnings...)
	}
	return nil
}

// sortChanges orders creates before toggles and keeps declaration order
// otherwise.
func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Action.Priority() > changes[j].Action.Priority()
	})
}

// Apply executes the plan's changes in order and stops at the first failure.
// A plan with admission denials is refused.
func (p *Planner) Apply(ctx context.Context, cfg *session.ConnectionConfig, plan *Plan) (*ApplyResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if len(plan.Denied) > 0 {
		return nil, &policy.DeniedError{Violations: plan.Denied}
	}

	start := time.Now()
	result := &ApplyResult{}

	for i := range plan.Changes {
		c := plan.Changes[i]
		if c.Action == ActionNoop {
			continue
		}

		if err := p.applyChange(ctx, cfg, c); err != nil {
			result.Failed = &c
			result.Duration = time.Since(start)
			p.logger.Error().Err(err).
				Str("plan_id", plan.ID).
				Str("change", c.String()).
				Int("applied", len(result.Applied)).
				Msg("Plan change failed")
			return result, fmt.Errorf("failed to %s: %w", c.String(), err)
		}

		result.Applied = append(result.Applied, c)
		p.logger.Info().Str("plan_id", plan.ID).Msg("Applied: " + c.String())
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *Planner) applyChange(ctx context.Context, cfg *session.ConnectionConfig, c Change) error {
	profiles := profileArgs(c.Profile)
	switch c.Action {
	case ActionCreate:
		return p.ops.CreateDatasource(ctx, cfg, c.Spec, c.Enable, profiles...)
	case ActionEnable:
		return p.ops.EnableDatasource(ctx, cfg, c.Datasource, profiles...)
	case ActionDisable:
		return p.ops.DisableDatasource(ctx, cfg, c.Datasource, profiles...)
	default:
		return fmt.Errorf("unknown action: %s", c.Action)
	}
}

func profileArgs(profile string) []string {
	if strings.TrimSpace(profile) == "" {
		return nil
	}
	return []string{profile}
}
