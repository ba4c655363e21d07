package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the version line stamped into narrative reports and -version output.
func String() string {
	return fmt.Sprintf("traffic.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
