package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/techblue/jboss-controller-operation-executor/pkg/config"
	"github.com/techblue/jboss-controller-operation-executor/pkg/policy"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test admission policies",
		Long: `Admission policies are Rego modules evaluated against every datasource before
it is created. Builtin policies are always loaded; extra policies come from the
paths listed under policy.paths in the config file.`,
	}

	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyCheckCommand())

	return cmd
}

// policyRuntime builds a runtime with the policy engine loaded even when
// admission is disabled in the config file.
func policyRuntime(cmd *cobra.Command) (*runtime, error) {
	r, err := newRuntime(cmd, runtimeOptions{})
	if err != nil {
		return nil, err
	}
	if r.policies == nil {
		if err := r.setupPolicies(cmd.Context()); err != nil {
			return nil, r.finish(cmd.Context(), err)
		}
	}
	return r, nil
}

func newPolicyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := policyRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			policies := r.policies.ListPolicies()
			if globals.jsonOutput {
				return r.finish(ctx, printJSON(cmd, policies))
			}
			return r.finish(ctx, writePolicies(cmd.OutOrStdout(), policies))
		},
	}
}

// checkResult is the outcome of checking one manifest datasource.
type checkResult struct {
	Datasource string             `json:"datasource"`
	Allowed    bool               `json:"allowed"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Warnings   []policy.Violation `json:"warnings,omitempty"`
}

func newPolicyCheckCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a manifest against the policies",
		Long: `Evaluate every datasource of a manifest against the admission policies without
contacting a server. The command fails when any datasource is denied.`,
		Example: `  dsctl policy check -f datasources.yaml
  dsctl policy check -f ./manifests --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := config.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			specs, err := manifest.Specs()
			if err != nil {
				return err
			}

			r, err := policyRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			profiles := r.profiles
			if len(globals.profiles) == 0 && len(manifest.Profiles) > 0 {
				profiles = manifest.Profiles
			}

			results := make([]checkResult, 0, len(specs))
			denied := 0
			for _, spec := range specs {
				res, err := r.policies.Evaluate(ctx, spec, &policy.Context{
					Operation:   "create",
					Target:      manifest.Server,
					Profiles:    profiles,
					Environment: r.cfg.Policy.Environment,
				})
				if err != nil {
					return r.finish(ctx, err)
				}
				if !res.Allowed {
					denied++
				}
				results = append(results, checkResult{
					Datasource: spec.Name,
					Allowed:    res.Allowed,
					Violations: res.Violations,
					Warnings:   res.Warnings,
				})
			}

			if globals.jsonOutput {
				err = printJSON(cmd, results)
			} else {
				err = writeCheckResults(cmd.OutOrStdout(), results)
			}
			if err == nil && denied > 0 {
				err = fmt.Errorf("%d of %d datasources denied by policy", denied, len(results))
			}
			return r.finish(ctx, err)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file or CUE package directory")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func writePolicies(out io.Writer, policies []policy.Policy) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tSOURCE\tDESCRIPTION")
	for _, p := range policies {
		source := p.Source
		if p.Builtin {
			source = "builtin"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Severity, p.Enabled, source, p.Description)
	}
	return w.Flush()
}

func writeCheckResults(out io.Writer, results []checkResult) error {
	for _, res := range results {
		status := "ok"
		if !res.Allowed {
			status = "denied"
		}
		if _, err := fmt.Fprintf(out, "%s: %s\n", res.Datasource, status); err != nil {
			return err
		}
		for _, v := range res.Violations {
			if _, err := fmt.Fprintf(out, "  error   [%s] %s\n", v.Policy, v.Message); err != nil {
				return err
			}
		}
		for _, v := range res.Warnings {
			if _, err := fmt.Fprintf(out, "  warning [%s] %s\n", v.Policy, v.Message); err != nil {
				return err
			}
		}
	}
	return nil
}
