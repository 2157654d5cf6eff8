package bundle

import (
	"fmt"
	"strings"
)

// HeaderNotFoundError is returned when none of the search bases holds the
// header named by a local include.
type HeaderNotFoundError struct {
	Header     string   // name as written between the quotes
	Includer   string   // file containing the directive
	Line       int      // 1-based line of the directive
	Candidates []string // paths that were tried, in order
}

func (e *HeaderNotFoundError) Error() string {
	return "header not found: " + e.Header
}

// CyclicIncludeError is returned when a file includes itself, directly or
// through other files. Chain starts and ends with the repeated file.
type CyclicIncludeError struct {
	Chain []string
}

func (e *CyclicIncludeError) Error() string {
	return fmt.Sprintf("cyclic include: %s", strings.Join(e.Chain, " -> "))
}
