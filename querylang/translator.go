package querylang

import (
	"fmt"
	"strings"
)

// Transformer walks a validated predicate tree and emits a ClickHouse SQL
// WHERE fragment (without the WHERE keyword). It holds no mutable state
// beyond the query it was built for and is safe for concurrent use.
type Transformer struct {
	query *ValidatedQuery
}

// NewTransformer builds a Transformer over a validated query.
func NewTransformer(query *ValidatedQuery) *Transformer {
	return &Transformer{query: query}
}

// Transform renders the whole tree. The fragment is suitable for direct
// interpolation inside parentheses.
func (t *Transformer) Transform() (string, error) {
	return t.transform(t.query.Root)
}

func (t *Transformer) transform(n Node) (string, error) {
	switch n := n.(type) {
	case *BoolOp:
		return t.transformBoolOp(n)
	case *Not:
		inner, err := t.transform(n.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case *Compare:
		return t.transformCompare(n)
	case *Call:
		return t.transformCall(n)
	default:
		return "", newTransformError(ErrUnknownNode, n, "unknown AST expression")
	}
}

func (t *Transformer) transformBoolOp(n *BoolOp) (string, error) {
	if n.Op != OpAnd && n.Op != OpOr {
		return "", newTransformError(ErrUnknownNode, n, "unknown boolean operator")
	}
	clauses := make([]string, 0, len(n.Values))
	for _, child := range n.Values {
		c, err := t.transform(child)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "("+c+")")
	}
	return strings.Join(clauses, " "+string(n.Op)+" "), nil
}

func (t *Transformer) transformCompare(n *Compare) (string, error) {
	leftName, leftIsName := n.Left.(*Name)
	rightName, rightIsName := n.Right.(*Name)

	// Column-to-column comparison supports equality only.
	if leftIsName && rightIsName {
		lc := QuoteIdentifier(leftName.Identifier)
		rc := QuoteIdentifier(rightName.Identifier)
		switch n.Op {
		case CmpEq:
			return lc + " = " + rc, nil
		case CmpNe:
			return lc + " != " + rc, nil
		default:
			return "", newTransformError(ErrUnsupportedComparator, n,
				"column-to-column comparison only supports == and !=")
		}
	}

	var col string
	var valueNode Node
	switch {
	case leftIsName:
		col = QuoteIdentifier(leftName.Identifier)
		valueNode = n.Right
	case rightIsName:
		col = QuoteIdentifier(rightName.Identifier)
		valueNode = n.Left
	default:
		return "", newTransformError(ErrNeedsColumn, n,
			"binary comparator must contain at least one column")
	}

	value, err := foldValue(valueNode)
	if err != nil {
		return "", err
	}

	switch n.Op {
	case CmpEq:
		if value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + FormatValue(value), nil
	case CmpNe:
		if value == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " != " + FormatValue(value), nil
	case CmpIn:
		return inClause(col, value, false), nil
	case CmpNotIn:
		return inClause(col, value, true), nil
	case CmpLt, CmpLe, CmpGt, CmpGe:
		// Nulls never satisfy an ordered comparison; the guard keeps the
		// semantics of the previous backend.
		return fmt.Sprintf("%s IS NOT NULL AND %s %s %s", col, col, n.Op, FormatValue(value)), nil
	default:
		return "", newTransformError(ErrUnsupportedComparator, n, "unknown binary comparator")
	}
}

// inClause handles IN/NOT IN. A string value degrades to the legacy
// case-insensitive "contains" overload; a non-list scalar degrades to
// plain equality.
func inClause(col string, value any, negated bool) string {
	switch v := value.(type) {
	case string:
		likeOp := "ILIKE"
		if negated {
			likeOp = "NOT ILIKE"
		}
		pattern := "%" + escapeLikePattern(v) + "%"
		return fmt.Sprintf("%s %s '%s'", col, likeOp, escapeString(pattern))
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, FormatValue(item))
		}
		op := "IN"
		if negated {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(parts, ", "))
	default:
		if negated {
			return col + " != " + FormatValue(value)
		}
		return col + " = " + FormatValue(value)
	}
}

func (t *Transformer) transformCall(n *Call) (string, error) {
	udf, ok := t.query.Calls[n.ID]
	if !ok {
		return "", newTransformError(ErrUnknownCall, n, "unknown function call")
	}

	switch udf := udf.(type) {
	case SQLQueryUDF:
		return udf.ToSQL()
	case LegacyQueryUDF:
		filter := udf.LegacyFilter()
		if filter == nil {
			return "", newTransformError(ErrUnknownCall, n, "function call produced no filter")
		}
		return AdaptLegacyFilter(filter)
	default:
		return "", newTransformError(ErrUnknownCall, n, "unknown function call type")
	}
}
