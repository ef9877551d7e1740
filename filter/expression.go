package filter

// Expression is one parsed filter: a column path, an operator, and the raw
// operand. Path length 1 addresses a direct column; longer paths traverse
// relations, each hop requiring a join.
type Expression struct {
	Path    []string
	Op      Operator
	Operand any
}

// Parse builds an Expression from a raw filter key and operand.
func Parse(key string, operand any) Expression {
	path, op := ParseKey(key)
	return Expression{Path: path, Op: op, Operand: operand}
}

// Node is a tagged union describing a boolean combination of filters.
// Exactly one of the four members should be populated. A logical node with
// zero resolvable children contributes no predicate: composition is
// fail-open per branch, never "reject all".
type Node struct {
	And  []Node
	Or   []Node
	Not  []Node
	Leaf map[string]any
}

// AndNode combines children with logical conjunction.
func AndNode(children ...Node) Node { return Node{And: children} }

// OrNode combines children with logical disjunction.
func OrNode(children ...Node) Node { return Node{Or: children} }

// NotNode negates the conjunction of its children.
func NotNode(children ...Node) Node { return Node{Not: children} }

// LeafNode wraps a plain filter map as a leaf.
func LeafNode(filters map[string]any) Node { return Node{Leaf: filters} }

// kind reports which member is populated. Leaf wins over logical members so
// a malformed node with both still compiles deterministically.
func (n Node) kind() nodeKind {
	switch {
	case n.Leaf != nil:
		return nodeLeaf
	case n.And != nil:
		return nodeAnd
	case n.Or != nil:
		return nodeOr
	case n.Not != nil:
		return nodeNot
	}
	return nodeEmpty
}

type nodeKind int

const (
	nodeEmpty nodeKind = iota
	nodeAnd
	nodeOr
	nodeNot
	nodeLeaf
)
