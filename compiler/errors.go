// Package compiler turns a parsed relation into party-typed IR segments:
// it resolves wires and scopes, links function and plugin calls, fans
// independent compilation units across a worker pool and merges the results
// back into source order.
package compiler

import (
	"errors"
	"fmt"
)

// Sentinel categories wrapped by every error the compiler returns, so the
// command surface can map them to distinct exit codes.
var (
	// ErrStructural marks malformed relations: undefined wires, arity
	// mismatches, field mismatches, malformed ranges.
	ErrStructural = errors.New("structural error")
	// ErrResource marks pipeline failures that are not the relation's
	// fault, such as a send on a torn-down pipeline.
	ErrResource = errors.New("resource error")
)

// Pos locates a statement for error reporting: the enclosing function (or
// "main" for top-level statements) and the statement index within it.
type Pos struct {
	Func  string
	Index int
}

func (p Pos) String() string {
	return fmt.Sprintf("%s:%d", p.Func, p.Index)
}

func structuralf(pos Pos, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", pos, fmt.Sprintf(format, args...), ErrStructural)
}
