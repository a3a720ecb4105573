package plan

import (
	"fmt"
	"strings"
)

// CycleError represents a dependency cycle among the packages selected for
// release.
type CycleError struct {
	// Path is the list of package names forming the cycle, starting and
	// ending with the same package.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "cycle detected in package dependencies"
	}
	return fmt.Sprintf("cycle detected in package dependencies: %s", strings.Join(e.Path, " -> "))
}
