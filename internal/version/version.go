// Package version holds build information, set by ldflags.
package version

// Version is the release version, e.g. v0.3.0. Development builds end in -dev.
var Version = "v0.3.0-dev"

// BuildTime is the build timestamp.
var BuildTime = "unknown"
