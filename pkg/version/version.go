// Package version carries build metadata stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set at build time:
//
//	-X github.com/dl-alexandre/drivesync/pkg/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is what `drivesync version` prints
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i *Info) String() string {
	s := "drivesync " + i.Version
	if i.GitCommit != "unknown" && i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", shortCommit(i.GitCommit))
	}
	if i.BuildTime != "unknown" && i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s + " " + i.Platform
}

// UserAgent identifies requests sent to the Drive API
func (i *Info) UserAgent() string {
	return fmt.Sprintf("drivesync/%s (%s; %s)", strings.TrimPrefix(i.Version, "v"), i.Platform, i.GoVersion)
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
