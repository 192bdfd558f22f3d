package update

import (
	"testing"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

func TestSameMajorMinor(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{name: "patch bump", a: "1.2.3", b: "1.2.9", want: true},
		{name: "identical", a: "1.19.3", b: "1.19.3", want: true},
		{name: "minor bump", a: "1.2.3", b: "1.3.0", want: false},
		{name: "major bump", a: "1.21.5", b: "2.0.0", want: false},
		{name: "two-field versions", a: "1.19", b: "1.19.1", want: true},
		{name: "prerelease same minor", a: "1.20.0-rc.1", b: "1.20.3", want: true},
		{name: "four fields fall back", a: "1.19.3.1", b: "1.19.4", want: true},
		{name: "four fields differ", a: "1.19.3.1", b: "1.20.0.1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameMajorMinor(tt.a, tt.b); got != tt.want {
				t.Errorf("SameMajorMinor(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCheckSafeUpgrade(t *testing.T) {
	if err := CheckSafeUpgrade("1.2.3", "1.2.9"); err != nil {
		t.Errorf("1.2.3 -> 1.2.9 should be allowed, got %v", err)
	}

	err := CheckSafeUpgrade("1.2.3", "1.3.0")
	if err == nil {
		t.Fatal("1.2.3 -> 1.3.0 should be blocked")
	}
	if !vserrors.IsErrorCode(err, vserrors.ErrUnsafeUpgradeBlocked) {
		t.Errorf("error code = %s, want UNSAFE_UPGRADE_BLOCKED", vserrors.GetErrorCode(err))
	}
}
