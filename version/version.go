package version

var (
	// semver and revision are overridden with -ldflags at release time
	semver   = "0.3.0"
	revision = "unknown"
)

// Get returns the semantic version of the binary.
func Get() string {
	return semver
}

func Commit() string {
	return revision
}

// String is the version with the commit appended, as reported to Sentry.
func String() string {
	return semver + "@" + revision
}
