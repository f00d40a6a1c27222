// Package version provides build version information for crossbridge.
package version

// Overridable at build time:
// go build -ldflags "-X crossbridge/internal/version.Version=1.0.0 -X crossbridge/internal/version.Commit=abc123"
var (
	// Version is the semantic version of the engine
	Version = "0.9.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"

	// RecordSchema is the version stamped into persisted mapping records
	RecordSchema = 1
)

// Info returns a short version string, with the abbreviated commit when known
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "crossbridge version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
