// Package version provides the four part version numbers reported by robot controllers and the SDK itself.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

// ErrInvalidVersion indicates a version string that is not "major.minor.bugfix.build".
var ErrInvalidVersion = errors.New("invalid version string")

// Info is a controller or SDK version. Versions are ordered lexicographically by
// major, minor, bugfix and build.
type Info struct {
	Major  uint32 `json:"major" yaml:"major"`
	Minor  uint32 `json:"minor" yaml:"minor"`
	Bugfix uint32 `json:"bugfix" yaml:"bugfix"`
	Build  uint32 `json:"build" yaml:"build"`
}

// SDK is the version of this library.
var SDK = Info{Major: 0, Minor: 10, Bugfix: 0, Build: 0}

// New creates a version from its parts.
func New(major, minor, bugfix, build uint32) Info {
	return Info{Major: major, Minor: minor, Bugfix: bugfix, Build: build}
}

// Parse parses "major.minor.bugfix.build". Missing trailing parts are treated as zero, so "2.14" equals "2.14.0.0".
func Parse(s string) (Info, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Info{}, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Info{}, fmt.Errorf("%w: %q has more than 4 parts", ErrInvalidVersion, s)
	}

	var nums [4]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
		}
		nums[i] = uint32(n)
	}

	return Info{Major: nums[0], Minor: nums[1], Bugfix: nums[2], Build: nums[3]}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Info {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String returns "major.minor.bugfix.build".
func (v Info) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Bugfix, v.Build)
}

// IsZero reports whether all parts are zero.
func (v Info) IsZero() bool {
	return v == Info{}
}

// Compare returns -1, 0 or +1 depending on whether v is lower, equal or higher than o.
func (v Info) Compare(o Info) int {
	a := [4]uint32{v.Major, v.Minor, v.Bugfix, v.Build}
	b := [4]uint32{o.Major, o.Minor, o.Bugfix, o.Build}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}

	return 0
}

// Less reports whether v is lower than o.
func (v Info) Less(o Info) bool { return v.Compare(o) < 0 }

// Semver returns the major.minor.bugfix part as a semantic version. The build number is carried as build metadata.
func (v Info) Semver() *semver.Version {
	sv, _ := semver.NewVersion(fmt.Sprintf("%d.%d.%d+%d", v.Major, v.Minor, v.Bugfix, v.Build))
	return sv
}

// Satisfies reports whether v matches a semver constraint such as ">= 2.14" or "~2.15".
// The build number does not take part in the check.
func (v Info) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}

	return c.Check(v.Semver()), nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Info) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Info) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed

	return nil
}
