// Package version carries build identification, overridden at link
// time with -ldflags "-X ...".
package version

var (
	// Version is the release version of the pipeline binary
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build identity on one line.
func String() string {
	return Version + " (" + GitSHA + ", " + BuildTime + ")"
}
