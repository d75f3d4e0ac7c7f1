// Package version holds the release identifier logged at startup.
package version

// Version is the current release.
const Version = "v0.3.0"
