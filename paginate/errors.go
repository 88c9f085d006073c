package paginate

import "fmt"

// PaginationErrorKind says why a traversal stopped early.
type PaginationErrorKind string

const (
	NoProgress    PaginationErrorKind = "no-progress"
	CycleDetected PaginationErrorKind = "cycle-detected"
)

// PaginationError ends a next-link traversal. URL is the page that repeated
// content, or the link or redirect target that pointed back into the
// visited set. Page is the
// index of the last page fetched.
type PaginationError struct {
	Kind PaginationErrorKind
	URL  string
	Page int
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination %s at page %d: %s", e.Kind, e.Page, e.URL)
}

// Is matches another *PaginationError by kind; an empty kind matches any.
func (e *PaginationError) Is(target error) bool {
	t, ok := target.(*PaginationError)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}
