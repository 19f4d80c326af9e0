package commands

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
				GoVersion: goruntime.Version(),
				Platform:  goruntime.GOOS + "/" + goruntime.GOARCH,
			}
			return printResult(cmd, info, fmt.Sprintf("dsctl %s (commit: %s, built: %s, %s, %s)",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform))
		},
	}
}
