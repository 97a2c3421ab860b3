// Package buildinfo reports which build of regbot is running.
//
// Release builds stamp the values with
//
//	go build -ldflags "-X github.com/m3rciful/regbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/regbot/core/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Unstamped builds fall back to the VCS data embedded by the go tool.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
}

var resolve = sync.OnceValue(func() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return fill(info)
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	return fill(info)
})

func fill(i Info) Info {
	if i.Commit == "" {
		i.Commit = "local"
	}
	return i
}

// Get returns the build identity, stamped values first.
func Get() Info { return resolve() }
