// Package version reports the build of the Ampcast server.
package version

import "fmt"

// Set at build time with -ldflags "-X ...".
var (
	Name      = "Ampcast"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info describes the running build.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the running build.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}

// UserAgent is sent with outgoing HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}
