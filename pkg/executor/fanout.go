package executor

import "errors"

// targetProfiles returns the profiles to visit. No profiles means a single
// unscoped pass, represented by "".
func targetProfiles(profiles []string) []string {
	if len(profiles) == 0 {
		return []string{""}
	}
	return profiles
}

// progress collects the changes one invocation has applied so far, across
// every datasource and profile it visits.
type progress struct {
	applied []string
}

// record notes that op took effect for name on profile.
func (p *progress) record(op, name, profile string) {
	p.applied = append(p.applied, stepTarget(op, name, profile))
}

func stepTarget(op, name, profile string) string {
	if profile == "" {
		return op + " " + name
	}
	return op + " " + name + "@" + profile
}

// forEachProfile runs fn once per target profile, in order, and stops at the
// first failure. Successes on earlier profiles are kept and reported on the
// returned *Error through Completed, and every step recorded on prog so far
// through Applied.
func forEachProfile(profiles []string, prog *progress, fn func(profile string) error) error {
	targets := targetProfiles(profiles)
	completed := make([]string, 0, len(targets))

	for _, profile := range targets {
		if err := fn(profile); err != nil {
			var execErr *Error
			if errors.As(err, &execErr) {
				execErr.Profile = profile
				execErr.Completed = append([]string(nil), completed...)
				if len(prog.applied) > 0 {
					execErr.Applied = append([]string(nil), prog.applied...)
				}
			}
			return err
		}
		completed = append(completed, profile)
	}

	return nil
}
