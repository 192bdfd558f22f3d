package update

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

// majorMinor returns the major.minor prefix of a version string. Versions
// semver cannot parse fall back to their first two dotted fields.
func majorMinor(v string) string {
	if sv, err := semver.NewVersion(v); err == nil {
		return fmt.Sprintf("%d.%d", sv.Major(), sv.Minor())
	}
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}

// SameMajorMinor reports whether a and b differ at most in the patch level.
func SameMajorMinor(a, b string) bool {
	return majorMinor(a) == majorMinor(b)
}

// CheckSafeUpgrade fails with UNSAFE_UPGRADE_BLOCKED unless moving from
// current to target stays within the same major.minor.
func CheckSafeUpgrade(current, target string) error {
	if SameMajorMinor(current, target) {
		return nil
	}
	return vserrors.Newf(vserrors.ErrUnsafeUpgradeBlocked,
		"update from %s to %s changes major or minor version, refusing in safe mode", current, target).
		WithDetail("current", current).
		WithDetail("target", target)
}
