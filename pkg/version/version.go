// Package version exposes the build identity stamped into tapsyncd at
// link time.
package version

// Set via -ldflags "-X github.com/fieldline/tapsync/pkg/version.version=1.4.2"
// (and .commit) by the release build; source builds report "dev".
//
//nolint:gochecknoglobals // ldflags injection targets
var (
	version = "dev"
	commit  = ""
)

// Number returns the bare version for machine consumers.
func Number() string {
	return version
}

// String returns the human-readable build identity.
func String() string {
	if commit == "" {
		return version
	}

	return version + "+" + commit
}
