package importer

import (
	"errors"
	"fmt"
)

// Structural errors raised by the handler itself. Value errors come from the
// reference and tag packages (reference.ErrInvalidDate, tag.ErrUnknownTag, ...).
var (
	ErrMissingAttribute = errors.New("missing required attribute")
	ErrInvalidInteger   = errors.New("invalid integer attribute")
	ErrNoReference      = errors.New("element must appear inside <reference>")
	ErrNestedReference  = errors.New("<reference> cannot be nested")
	ErrTooDeep          = errors.New("element nesting exceeds limit")
	ErrEmptyDocument    = errors.New("document contains no elements")
)

// ParseError locates a fatal error in the input. It unwraps to the cause, so
// errors.Is and errors.As see through it.
type ParseError struct {
	Line    int
	Column  int
	Element string // element being processed, empty for decoder errors
	Err     error
}

func (e *ParseError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("line %d, column %d: <%s>: %v", e.Line, e.Column, e.Element, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
