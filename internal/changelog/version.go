package changelog

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// unreleasedName is how the Unreleased version is written in headings.
const unreleasedName = "Unreleased"

// Version names a release section. It is either a semantic version or the
// special Unreleased marker. The zero value is Unreleased.
type Version struct {
	sem *semver.Version
}

// VersionError is returned when a version string cannot be parsed.
type VersionError struct {
	Input string
	Err   error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %v", e.Input, e.Err)
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

// Unreleased returns the Unreleased version marker.
func Unreleased() Version {
	return Version{}
}

// Semantic wraps a semantic version. The value is copied into canonical form so
// that two versions with the same components compare structurally equal.
func Semantic(v *semver.Version) Version {
	if v == nil {
		return Version{}
	}
	return Version{sem: canonical(v)}
}

// ParseVersion parses "Unreleased" (any case) or a strict semantic version with
// an optional leading "v".
func ParseVersion(s string) (Version, error) {
	if strings.EqualFold(s, unreleasedName) {
		return Unreleased(), nil
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return Version{}, &VersionError{Input: s, Err: err}
	}
	return Semantic(v), nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for tests
// and constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsUnreleased reports whether v is the Unreleased marker.
func (v Version) IsUnreleased() bool {
	return v.sem == nil
}

// Semver returns the semantic version, or nil for Unreleased.
func (v Version) Semver() *semver.Version {
	return v.sem
}

// String renders the version the way it appears in a release heading.
func (v Version) String() string {
	if v.sem == nil {
		return unreleasedName
	}
	return "v" + v.sem.String()
}

// Compare orders versions by semantic precedence. Unreleased sorts after
// every semantic version.
func (v Version) Compare(o Version) int {
	switch {
	case v.sem == nil && o.sem == nil:
		return 0
	case v.sem == nil:
		return 1
	case o.sem == nil:
		return -1
	}
	return v.sem.Compare(o.sem)
}

// Equal reports whether two versions name the same release. Build metadata
// is significant here, unlike semver precedence.
func (v Version) Equal(o Version) bool {
	if v.sem == nil || o.sem == nil {
		return v.sem == nil && o.sem == nil
	}
	return v.sem.Equal(o.sem) && v.sem.Metadata() == o.sem.Metadata()
}

func canonical(v *semver.Version) *semver.Version {
	return semver.New(v.Major(), v.Minor(), v.Patch(), v.Prerelease(), v.Metadata())
}
