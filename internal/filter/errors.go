package filter

import "fmt"

// CompileError reports a syntactically or semantically invalid filter
// expression. It is always returned, never panicked, and a failed
// compilation leaves no partial state in the cache.
type CompileError struct {
	// Expression is the source text that failed to compile.
	Expression string

	// Pos is the byte offset of the error within the expression.
	Pos int

	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("filter compile error at position %d: %s", e.Pos, e.Message)
}

func newCompileError(expr string, pos int, format string, args ...any) *CompileError {
	return &CompileError{
		Expression: expr,
		Pos:        pos,
		Message:    fmt.Sprintf(format, args...),
	}
}

// EvalError reports an engine-internal evaluation fault, such as an unknown
// filter id. Ordinary ambiguous comparisons resolve to false, not an error.
type EvalError struct {
	FilterID FilterID
	Message  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("filter eval error for %s: %s", e.FilterID, e.Message)
}
