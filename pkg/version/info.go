// Package version exposes build metadata and semantic version parsing.
package version

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Unknown is used when build metadata is not provided.
	Unknown = "unknown"
	// DevelopmentVersion is the default version in local builds.
	DevelopmentVersion = "dev"
)

var (
	// AppVersion is intended to be overridden at build time:
	// go build -ldflags="-X github.com/nimburion/servicekit/pkg/version.AppVersion=v1.2.3"
	AppVersion = DevelopmentVersion

	// GitCommit is intended to be overridden at build time.
	GitCommit = Unknown

	// BuildTime is intended to be overridden at build time (RFC3339 recommended).
	BuildTime = Unknown
)

// Info contains version metadata for an application.
type Info struct {
	Service    string `json:"service" yaml:"service"`
	Version    string `json:"version" yaml:"version"`
	APIVersion string `json:"api_version" yaml:"api_version"`
	Commit     string `json:"commit" yaml:"commit"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
}

// Current returns the version metadata of serviceName. A version stamped at build
// time wins over the configured one; with neither, the version is "dev". An empty
// apiVersion is derived from the major version when the version is semantic.
func Current(serviceName, configuredVersion, apiVersion string) Info {
	v := normalizeOrDefault(AppVersion, DevelopmentVersion)
	if v == DevelopmentVersion {
		v = normalizeOrDefault(configuredVersion, DevelopmentVersion)
	}

	api := strings.TrimSpace(apiVersion)
	if api == "" {
		api = Unknown
		if sv, err := Parse(v); err == nil {
			api = sv.APILabel()
		}
	}

	return Info{
		Service:    normalizeOrDefault(serviceName, Unknown),
		Version:    v,
		APIVersion: api,
		Commit:     normalizeOrDefault(GitCommit, Unknown),
		BuildTime:  normalizeOrDefault(BuildTime, Unknown),
	}
}

// ParseBuildTime parses BuildTime as RFC3339 if present.
func (i Info) ParseBuildTime() (time.Time, bool) {
	if i.BuildTime == "" || i.BuildTime == Unknown {
		return time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339, i.BuildTime)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// String returns a log-friendly representation.
func (i Info) String() string {
	return fmt.Sprintf("%s@%s (api=%s, commit=%s, build_time=%s)", i.Service, i.Version, i.APIVersion, i.Commit, i.BuildTime)
}

func normalizeOrDefault(v, fallback string) string {
	norm := strings.TrimSpace(v)
	if norm == "" {
		return fallback
	}
	return norm
}
