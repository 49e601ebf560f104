package version

import (
	"fmt"
	"runtime"
)

const Service = "civicpulse"

// Build information, injected via ldflags at build time:
//
//	-X github.com/WamalwaSydney/civicpulse/internal/platform/version.Version=v1.2.0
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Service:   Service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, built %s, %s)", i.Service, i.Version, i.Commit, i.BuildTime, i.GoVersion)
}
