package graph

import (
	"fmt"
	"strings"
)

// BumpLevel is the size of a version increment. Levels are ordered:
// None < Patch < Minor < Major.
type BumpLevel int

const (
	None BumpLevel = iota
	Patch
	Minor
	Major
)

var levelNames = [...]string{"none", "patch", "minor", "major"}

func (l BumpLevel) String() string {
	if l < None || l > Major {
		return fmt.Sprintf("BumpLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseBumpLevel parses a level name, case-insensitively.
func ParseBumpLevel(s string) (BumpLevel, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return BumpLevel(i), nil
		}
	}
	return None, fmt.Errorf("invalid bump level %q: expected one of %s", s, strings.Join(levelNames[:], ", "))
}

// Max returns the larger of two levels.
func Max(a, b BumpLevel) BumpLevel {
	if a > b {
		return a
	}
	return b
}
