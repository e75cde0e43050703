package querylang

import (
	"errors"
	"fmt"
	"strings"
)

// TransformErrorKind categorizes translation failures.
type TransformErrorKind string

const (
	// ErrUnknownNode means the translator saw an AST variant it does not
	// recognise.
	ErrUnknownNode TransformErrorKind = "unknown_node"
	// ErrUnsupportedComparator means the comparator is not valid for the
	// operand shape, e.g. column-to-column ordering.
	ErrUnsupportedComparator TransformErrorKind = "unsupported_comparator"
	// ErrNeedsColumn means a comparison carried no column reference.
	ErrNeedsColumn TransformErrorKind = "needs_column"
	// ErrUnknownCall means a function reference is not registered as a
	// query UDF.
	ErrUnknownCall TransformErrorKind = "unknown_call"
	// ErrUnsupportedLegacyFilter means the legacy adapter saw a filter
	// type it does not handle.
	ErrUnsupportedLegacyFilter TransformErrorKind = "unsupported_legacy_filter"
)

// TransformError is a translation failure. Node carries the offending AST
// node so the UI can attribute the error; it is nil for legacy filter
// failures, which have no AST position.
type TransformError struct {
	Kind    TransformErrorKind
	Node    Node
	Message string
}

func (e *TransformError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("%s: %s", e.Message, nodeName(e.Node))
	}
	return e.Message
}

func newTransformError(kind TransformErrorKind, node Node, message string) *TransformError {
	return &TransformError{Kind: kind, Node: node, Message: message}
}

// IsTransformError reports whether err is a TransformError of the given kind.
func IsTransformError(err error, kind TransformErrorKind) bool {
	var te *TransformError
	return errors.As(err, &te) && te.Kind == kind
}

func nodeName(n Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*querylang.")
}
