package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/techblue/jboss-controller-operation-executor/pkg/config"
	"github.com/techblue/jboss-controller-operation-executor/pkg/planner"
)

func newApplyCommand() *cobra.Command {
	var (
		manifestPath string
		dryRun       bool
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a datasource manifest",
		Long: `Bring a server in line with a datasource manifest.

This command:
  - Loads the manifest (YAML, CUE file or CUE package directory)
  - Lists the datasources of every profile
  - Creates the missing ones, checked against admission policies
  - Enables or disables existing ones whose declared state differs

Datasources that exist but differ in other attributes are not modified.
With --watch the manifest is re-applied whenever it changes.`,
		Example: `  # Show what would change
  dsctl apply -f datasources.yaml --dry-run

  # Apply a CUE manifest
  dsctl apply -f datasources.cue

  # Keep the server in sync and expose metrics
  dsctl apply -f datasources.yaml --watch --metrics-addr :9091`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun && watch {
				return fmt.Errorf("--dry-run and --watch cannot be combined")
			}

			manifest, err := config.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			if globals.server == "" {
				globals.server = manifest.Server
			}

			r, err := newRuntime(cmd, runtimeOptions{needTarget: true})
			if err != nil {
				return err
			}

			p, err := r.newPlanner()
			if err != nil {
				return r.finish(cmd.Context(), err)
			}

			if !watch {
				ctx := r.begin(cmd.Context(), "apply")
				return r.finish(ctx, r.applyManifest(ctx, cmd.OutOrStdout(), p, manifest, dryRun))
			}

			if err := r.track(cmd.Context(), "apply", func(ctx context.Context) error {
				return r.applyManifest(ctx, cmd.OutOrStdout(), p, manifest, false)
			}); err != nil {
				log.Error().Err(err).Msg("Initial apply failed, waiting for manifest changes")
			}

			if r.policies != nil && len(r.cfg.Policy.Paths) > 0 {
				if err := r.policies.WatchPolicies(cmd.Context(), r.cfg.Policy.Paths); err != nil {
					return r.finish(cmd.Context(), err)
				}
			}

			watcher := config.NewManifestWatcher(r.logger)
			err = watcher.Watch(cmd.Context(), manifestPath, func(ctx context.Context, m *config.Manifest) error {
				return r.track(ctx, "apply", func(ctx context.Context) error {
					return r.applyManifest(ctx, cmd.OutOrStdout(), p, m, false)
				})
			})
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			return r.finish(cmd.Context(), err)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file or CUE package directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-apply the manifest whenever it changes")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func (r *runtime) newPlanner() (*planner.Planner, error) {
	cfg := planner.Config{
		Operations:  r.executor,
		Environment: r.cfg.Policy.Environment,
		Logger:      r.logger,
	}
	if r.policies != nil {
		cfg.Admission = r.policies
	}
	return planner.New(cfg)
}

// applyManifest plans the manifest and applies it unless dryRun is set.
func (r *runtime) applyManifest(ctx context.Context, out io.Writer, p *planner.Planner, m *config.Manifest, dryRun bool) error {
	desired, err := planner.FromManifest(m)
	if err != nil {
		return err
	}

	profiles := r.profiles
	if len(globals.profiles) == 0 && len(m.Profiles) > 0 {
		profiles = m.Profiles
	}

	plan, err := p.ComputePlan(ctx, r.target, desired, profiles)
	if err != nil {
		return err
	}
	for _, w := range plan.Warnings {
		log.Warn().Str("policy", w.Policy).Str("datasource", w.Datasource).Msg(w.Message)
	}

	if dryRun {
		if globals.jsonOutput {
			return printJSONTo(out, plan)
		}
		return writePlan(out, plan)
	}

	if !plan.Summary.HasChanges() && len(plan.Denied) == 0 {
		log.Info().Int("datasources", plan.Summary.Datasources).Msg("Datasources are up to date")
		return nil
	}

	result, err := p.Apply(ctx, r.target, plan)
	if err != nil {
		return err
	}
	log.Info().
		Int("applied", len(result.Applied)).
		Dur("duration", result.Duration).
		Msg("Manifest applied")
	return nil
}

// writePlan prints a plan in text form.
func writePlan(out io.Writer, plan *planner.Plan) error {
	symbols := map[planner.Action]string{
		planner.ActionCreate:  "+",
		planner.ActionEnable:  "~",
		planner.ActionDisable: "~",
	}

	for _, c := range plan.Changes {
		if c.Action == planner.ActionNoop {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", symbols[c.Action], c.String()); err != nil {
			return err
		}
	}
	for _, v := range plan.Denied {
		if _, err := fmt.Fprintf(out, "! %s denied by %s: %s\n", v.Datasource, v.Policy, v.Message); err != nil {
			return err
		}
	}

	s := plan.Summary
	_, err := fmt.Fprintf(out, "Plan: %d to create, %d to enable, %d to disable, %d unchanged, %d denied.\n",
		s.ToCreate, s.ToEnable, s.ToDisable, s.NoChange, s.Denied)
	return err
}
