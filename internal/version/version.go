package version

var (
	// Version is the version of the vmpower daemon (overridden via -ldflags)
	Version = "dev"
	// GitSHA is the git commit SHA (overridden via -ldflags)
	GitSHA = "unknown"
)

// String returns a formatted version string
func String() string {
	return Version + " (" + GitSHA + ")"
}

// UserAgent identifies this build to the compute control plane
func UserAgent() string {
	return "vmpower/" + Version
}
