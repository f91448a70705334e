// Package ast defines the in-memory tree the codec materialises and the
// engine walks. Node kinds are grouped by role: structural kinds first,
// then control flow, then expressions, then leaves, with DeclaratorNode
// kept separate since nothing but VarDecl ever produces or consumes it.
package ast

import "github.com/sfranzyshen-go/coreinterp/pkg/value"

// Kind is a compact identifier for one AST node variant (not the wire byte
// — the codec maps wire node-type bytes to Kind during decode).
type Kind uint8

const (
	// === Structural ===
	Program Kind = iota
	Compound
	VarDecl
	FuncDef
	Param

	// === Control flow ===
	If
	While
	DoWhile
	For
	RangeFor
	Switch
	Case
	Return
	Break
	Continue
	Empty

	// === Expressions ===
	BinaryOp
	UnaryOp
	Assignment
	FunctionCall
	MemberAccess
	ArrayAccess
	Ternary
	Cast
	ConstructorCall

	// === Leaves ===
	NumberLiteral
	StringLiteral
	CharLiteral
	Identifier
	Constant
	TypeNode

	// DeclaratorNode is a wire-only carrier for one VarDecl declarator
	// (name, optional initializer, optional array dimensions); it never
	// appears as a standalone statement or expression.
	DeclaratorNode

	kindCount
)

func (k Kind) String() string {
	names := [...]string{
		"Program", "Compound", "VarDecl", "FuncDef", "Param",
		"If", "While", "DoWhile", "For", "RangeFor", "Switch", "Case",
		"Return", "Break", "Continue", "Empty",
		"BinaryOp", "UnaryOp", "Assignment", "FunctionCall", "MemberAccess",
		"ArrayAccess", "Ternary", "Cast", "ConstructorCall",
		"NumberLiteral", "StringLiteral", "CharLiteral", "Identifier",
		"Constant", "TypeNode", "DeclaratorNode",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Declarator is one name in a (possibly multi-name) variable declaration:
// `int a, b[4] = {0};` has two declarators under one VarDecl node.
type Declarator struct {
	Name        string
	ArrayDims   []int
	Initializer *Node
}

// Node is the single concrete node type; only the fields relevant to Kind
// are populated. This keeps the codec's decode loop a flat allocation
// instead of a type switch over N structs; Walk below hands every node to a
// Visitor, which switches on Kind itself.
type Node struct {
	Kind Kind
	// WireIndex is the pre-order position the codec assigned this node in
	// its source .actree stream; it has no meaning for hand-built trees.
	WireIndex uint16

	Parent   *Node
	Children []*Node

	// HAS_VALUE payload, kind-dependent interpretation:
	Operator string       // BinaryOp/UnaryOp/Assignment operator text
	Value    value.Value  // NumberLiteral/StringLiteral/CharLiteral payload
	Name     string       // Identifier/Constant/TypeNode name, or MemberAccess property

	// Structural fields populated by the decoder/builder, not the wire value block.
	DeclType    string       // VarDecl/Param/Cast/ConstructorCall declared type
	Declarators []Declarator // VarDecl
	IsConst     bool         // VarDecl
	Params      []*Node      // FuncDef parameter list (each a Param node)
	ReturnType  string       // FuncDef
	Body        *Node        // FuncDef/While/DoWhile/For/RangeFor/Case body (If uses Then/Else)
	Prefix      bool         // UnaryOp: prefix vs postfix
	Default     *Node        // Param default value

	// Binary/Unary/Assignment/Ternary/Cast/Call operand slots, always a
	// subset of Children kept here by name for evaluator readability; the
	// codec still links everything through Children for round-trip fidelity.
	Left, Right, Cond, Then, Else, Callee, Object, Array, Index, Expr *Node
	Args                                                              []*Node
}

// Visitor receives every node in a tree via Walk. Keeping traversal in one
// place means a new Kind only has to be handled by whatever the visitor
// itself does with it, not re-derived by every caller that walks a tree.
type Visitor interface {
	Visit(n *Node) error
}

// VisitFunc adapts a plain function to Visitor.
type VisitFunc func(n *Node) error

func (f VisitFunc) Visit(n *Node) error { return f(n) }

// Walk performs a pre-order traversal, visiting n before its children.
func Walk(n *Node, v Visitor) error {
	if n == nil {
		return nil
	}
	if err := v.Visit(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(c, v); err != nil {
			return err
		}
	}
	return nil
}

// FindFunction locates a top-level FuncDef by name under a Program root.
func FindFunction(program *Node, name string) *Node {
	if program == nil || program.Kind != Program {
		return nil
	}
	for _, c := range program.Children {
		if c.Kind == FuncDef && c.Name == name {
			return c
		}
	}
	return nil
}
