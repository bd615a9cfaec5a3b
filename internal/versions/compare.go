package versions

import "github.com/Masterminds/semver/v3"

// IsAtLeast reports whether version satisfies the minimum. Unparseable
// versions never satisfy it, except "dev" builds which always do.
func IsAtLeast(version, minimum string) bool {
	if version == "dev" {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	m, err := semver.NewVersion(minimum)
	if err != nil {
		return false
	}
	return !v.LessThan(m)
}
