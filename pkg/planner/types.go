package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/techblue/jboss-controller-operation-executor/pkg/datasource"
	"github.com/techblue/jboss-controller-operation-executor/pkg/policy"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
)

// Action is what a change does to one datasource on one profile.
type Action string

const (
	ActionCreate  Action = "create"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionNoop    Action = "noop"
)

// Priority orders changes within a plan: creates run before state toggles.
func (a Action) Priority() int {
	switch a {
	case ActionCreate:
		return 2
	case ActionEnable, ActionDisable:
		return 1
	default:
		return 0
	}
}

// Desired is the declared configuration and state of one datasource.
type Desired struct {
	Spec *datasource.Spec

	// Enabled is the declared state. Nil leaves the state alone, and a
	// created datasource stays disabled.
	Enabled *bool
}

// Change is one step of a plan.
type Change struct {
	Profile    string           `json:"profile"`
	Datasource string           `json:"datasource"`
	Action     Action           `json:"action"`
	Enable     bool             `json:"enable,omitempty"`
	Spec       *datasource.Spec `json:"-"`
}

func (c Change) String() string {
	target := c.Datasource
	if c.Profile != "" {
		target = fmt.Sprintf("%s (profile %s)", c.Datasource, c.Profile)
	}
	if c.Action == ActionCreate && c.Enable {
		return "create and enable " + target
	}
	return string(c.Action) + " " + target
}

// Summary provides statistics about a plan.
type Summary struct {
	Datasources int `json:"datasources"`
	ToCreate    int `json:"to_create"`
	ToEnable    int `json:"to_enable"`
	ToDisable   int `json:"to_disable"`
	NoChange    int `json:"no_change"`
	Denied      int `json:"denied"`
}

// HasChanges reports whether applying the plan would change anything.
func (s Summary) HasChanges() bool {
	return s.ToCreate+s.ToEnable+s.ToDisable > 0
}

// Plan is the ordered set of changes that brings a server in line with the
// declared datasources.
type Plan struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Profiles  []string  `json:"profiles"`
	CreatedAt time.Time `json:"created_at"`
	Changes   []Change  `json:"changes"`
	Summary   Summary   `json:"summary"`

	// Denied holds admission violations of datasources that would be created.
	// A plan with denials is not applied.
	Denied []policy.Violation `json:"denied,omitempty"`

	// Warnings holds non-blocking admission violations.
	Warnings []policy.Violation `json:"warnings,omitempty"`
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Applied  []Change      `json:"applied"`
	Failed   *Change       `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Operations is the part of the executor the planner drives.
type Operations interface {
	GetDatasources(ctx context.Context, cfg *session.ConnectionConfig, profile string, filter datasource.StatusFilter) ([]string, error)
	IsDatasourceEnabled(ctx context.Context, cfg *session.ConnectionConfig, profile, name string) (bool, error)
	CreateDatasource(ctx context.Context, cfg *session.ConnectionConfig, spec *datasource.Spec, enable bool, profiles ...string) error
	EnableDatasource(ctx context.Context, cfg *session.ConnectionConfig, name string, profiles ...string) error
	DisableDatasource(ctx context.Context, cfg *session.ConnectionConfig, name string, profiles ...string) error
}

// Admission checks a datasource before it is created.
type Admission interface {
	Evaluate(ctx context.Context, spec *datasource.Spec, pctx *policy.Context) (*policy.Result, error)
}
