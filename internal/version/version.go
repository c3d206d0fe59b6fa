// Package version holds build metadata of the shortener binaries.
// Release builds stamp the variables with -ldflags; development builds fall
// back to what the Go toolchain recorded in the binary.
package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

const unknown = "unknown"

var (
	// Set via: -ldflags "-X shortener/internal/version.Version=..."
	Version = unknown

	// Set via: -ldflags "-X shortener/internal/version.BuildDate=..."
	BuildDate = unknown

	// Set via: -ldflags "-X shortener/internal/version.GitCommit=..."
	GitCommit = unknown
)

// Info holds build metadata and the identity of this process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the build metadata. The instance ID is generated once per
// process; it tells replicas sharing a counter store apart in logs.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.NewString(),
			Hostname:   hostname(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			fillFromBuildInfo(&info, bi)
		}
	})
	return info
}

// fillFromBuildInfo completes fields the linker did not stamp.
func fillFromBuildInfo(i *Info, bi *debug.BuildInfo) {
	if i.Version == unknown && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}

	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == unknown && s.Value != "" {
				i.GitCommit = s.Value
				if len(i.GitCommit) > 7 {
					i.GitCommit = i.GitCommit[:7]
				}
			}
		case "vcs.time":
			if i.BuildDate == unknown && s.Value != "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && i.GitCommit != unknown {
		i.GitCommit += "-dirty"
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return unknown
	}
	return h
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("shortener %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
