package modelfile

import (
	"fmt"
	"strings"
)

// ValidationError collects every issue found while resolving a model.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid model: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "model validation errors: " + strings.Join(e.Issues, "; ")
}

// Add records an issue.
func (e *ValidationError) Add(issue string) {
	e.Issues = append(e.Issues, issue)
}

// Addf records an issue about entity.
func (e *ValidationError) Addf(entity, format string, args ...any) {
	e.Add(entity + ": " + fmt.Sprintf(format, args...))
}

// HasIssues reports whether any issue was recorded.
func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}
