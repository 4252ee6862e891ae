// Package buildinfo holds build-time metadata, injected with
//
//	-ldflags "-X github.com/songsheets/rehearsal/internal/buildinfo.Version=v1.2.0"
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set at link time.
var (
	Version   = "dev"
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{
		Version:   orUnknown(Version),
		BuildDate: orUnknown(BuildDate),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("rehearsal %s (built %s, %s, %s)", i.Version, i.BuildDate, i.GoVersion, i.Platform)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
