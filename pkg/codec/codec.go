// Package codec implements a compact binary AST format: a little-endian
// header, a string table, and a flat node table wired into a tree on a
// second pass. Decode reads with buffered, field-at-a-time
// binary.LittleEndian reads; Encode (in encode.go) is its mechanical
// inverse.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Magic identifies a compact AST binary. Version is bumped whenever the
// wire layout changes in a way old readers can't tolerate.
var Magic = [4]byte{'A', 'S', 'T', 'C'}

const Version uint16 = 1

const (
	flagHasChildren = 0x01
	flagHasValue    = 0x02
	// flagConst marks a VarDecl declared with the const qualifier; it has
	// no meaning on any other node kind.
	flagConst = 0x04
)

// wire node-type bytes, in ast.Kind order (stable across encoders/decoders).
var wireKindOrder = []ast.Kind{
	ast.Program, ast.Compound, ast.VarDecl, ast.FuncDef, ast.Param,
	ast.If, ast.While, ast.DoWhile, ast.For, ast.RangeFor, ast.Switch, ast.Case,
	ast.Return, ast.Break, ast.Continue, ast.Empty,
	ast.BinaryOp, ast.UnaryOp, ast.Assignment, ast.FunctionCall, ast.MemberAccess,
	ast.ArrayAccess, ast.Ternary, ast.Cast, ast.ConstructorCall,
	ast.NumberLiteral, ast.StringLiteral, ast.CharLiteral, ast.Identifier,
	ast.Constant, ast.TypeNode, ast.DeclaratorNode,
}

func wireKindOf(k ast.Kind) (byte, bool) {
	for i, wk := range wireKindOrder {
		if wk == k {
			return byte(i), true
		}
	}
	return 0, false
}

func kindFromWire(b byte) (ast.Kind, bool) {
	if int(b) >= len(wireKindOrder) {
		return 0, false
	}
	return wireKindOrder[b], true
}

// value-block type tags.
const (
	vtString byte = iota
	vtInt32
	vtInt64
	vtUint32
	vtFloat32
	vtFloat64
	vtBool
	vtNull
)

// rawNode is the flat, unlinked record produced by pass one of Decode.
type rawNode struct {
	kind        ast.Kind
	flags       byte
	index       uint16
	parentIndex uint16
	childIdx    []uint16
	operator    string
	val         value.Value
	hasVal      bool
}

// Decode reads a compact AST binary and returns the linked tree rooted at
// index 0. It rejects bad magic, an unknown node type, a child index past
// the end of the node table, an out-of-range string index, HAS_VALUE set
// with no value block, and an empty operator string on a BinaryOp or
// UnaryOp node (an Assignment with an empty operator decodes as "=").
func Decode(r io.Reader) (*ast.Node, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read magic", err)
	}
	if magic != Magic {
		return nil, ierr.New(ierr.Decode, fmt.Sprintf("bad magic %q", magic))
	}

	var version, flags uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read version", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &flags); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read flags", err)
	}

	var nodeCount, stringTableOffset uint32
	if err := binary.Read(br, binary.LittleEndian, &nodeCount); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read node count", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &stringTableOffset); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read string table offset", err)
	}

	// The header names an absolute string-table offset for seekable sources;
	// since Decode only requires io.Reader and this codec's writer places the
	// string table immediately after the header, stringTableOffset is read
	// but neither checked nor used to seek.
	_ = stringTableOffset

	strings, err := readStringTable(br)
	if err != nil {
		return nil, err
	}

	raws := make([]rawNode, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		rn, err := readNodeRecord(br, uint16(i), strings)
		if err != nil {
			return nil, err
		}
		raws = append(raws, rn)
	}

	return link(raws)
}

func readStringTable(br *bufio.Reader) ([]string, error) {
	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, ierr.Wrap(ierr.Decode, "read string table count", err)
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var length uint16
		if err := binary.Read(br, binary.LittleEndian, &length); err != nil {
			return nil, ierr.Wrap(ierr.Decode, fmt.Sprintf("read string %d length", i), err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, ierr.Wrap(ierr.Decode, fmt.Sprintf("read string %d bytes", i), err)
		}
		out = append(out, string(buf))
	}
	return out, nil
}

func readNodeRecord(br *bufio.Reader, expectIndex uint16, strtab []string) (rawNode, error) {
	var rn rawNode
	var wireKind, flags byte
	if err := binary.Read(br, binary.LittleEndian, &wireKind); err != nil {
		return rn, ierr.Wrap(ierr.Decode, "read node type", err)
	}
	kind, ok := kindFromWire(wireKind)
	if !ok {
		return rn, ierr.New(ierr.Decode, fmt.Sprintf("unknown node type %d", wireKind))
	}
	if err := binary.Read(br, binary.LittleEndian, &flags); err != nil {
		return rn, ierr.Wrap(ierr.Decode, "read node flags", err)
	}

	var index, parentIndex, childCount uint16
	if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
		return rn, ierr.Wrap(ierr.Decode, "read node index", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &parentIndex); err != nil {
		return rn, ierr.Wrap(ierr.Decode, "read node parent", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &childCount); err != nil {
		return rn, ierr.Wrap(ierr.Decode, "read node child count", err)
	}

	rn.kind = kind
	rn.flags = flags
	rn.index = index
	rn.parentIndex = parentIndex

	if flags&flagHasValue != 0 {
		v, op, err := readValueBlock(br, strtab)
		if err != nil {
			return rn, err
		}
		rn.val = v
		rn.operator = op
		rn.hasVal = true

		if isOperatorKind(kind) && kind != ast.Assignment && op == "" {
			return rn, ierr.New(ierr.Decode, fmt.Sprintf("node %d: empty operator string", index))
		}
	}

	if flags&flagHasChildren != 0 && childCount == 0 {
		return rn, ierr.New(ierr.Decode, fmt.Sprintf("node %d: HAS_CHILDREN set with zero child count", index))
	}

	rn.childIdx = make([]uint16, 0, childCount)
	for i := uint16(0); i < childCount; i++ {
		var ci uint16
		if err := binary.Read(br, binary.LittleEndian, &ci); err != nil {
			return rn, ierr.Wrap(ierr.Decode, fmt.Sprintf("node %d: read child %d", index, i), err)
		}
		rn.childIdx = append(rn.childIdx, ci)
	}

	return rn, nil
}

func isOperatorKind(k ast.Kind) bool {
	switch k {
	case ast.BinaryOp, ast.UnaryOp, ast.Assignment:
		return true
	default:
		return false
	}
}

func readValueBlock(br *bufio.Reader, strtab []string) (value.Value, string, error) {
	var tag byte
	if err := binary.Read(br, binary.LittleEndian, &tag); err != nil {
		return value.Void, "", ierr.Wrap(ierr.Decode, "read value tag", err)
	}
	switch tag {
	case vtString:
		var idx uint16
		if err := binary.Read(br, binary.LittleEndian, &idx); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read string index", err)
		}
		if int(idx) >= len(strtab) {
			return value.Void, "", ierr.New(ierr.Decode, fmt.Sprintf("string index %d out of range", idx))
		}
		s := strtab[idx]
		return value.String(s), s, nil
	case vtInt32:
		var v int32
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read int32 value", err)
		}
		return value.Int32(v), "", nil
	case vtInt64:
		var v int64
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read int64 value", err)
		}
		return value.Int64(v), "", nil
	case vtUint32:
		var v uint32
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read uint32 value", err)
		}
		return value.Uint32(v), "", nil
	case vtFloat32:
		var v float32
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read float32 value", err)
		}
		return value.Float32(v), "", nil
	case vtFloat64:
		var v float64
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read float64 value", err)
		}
		return value.Float64(v), "", nil
	case vtBool:
		var v uint8
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return value.Void, "", ierr.Wrap(ierr.Decode, "read bool value", err)
		}
		return value.Bool(v != 0), "", nil
	case vtNull:
		return value.Void, "", nil
	default:
		return value.Void, "", ierr.New(ierr.Decode, fmt.Sprintf("unknown value tag %d", tag))
	}
}

// link performs pass two: wiring children and parents by index, installing
// each node's decoded value into its kind-specific field, then projecting
// Children onto the named operand fields (Left, Right, Body, …). Value
// installation runs to completion for every node before any
// wireChildRoles call, since a parent's role-wiring (VarDecl, Param,
// FuncDef) reads fields — like a child's Name — that only installValue
// sets.
func link(raws []rawNode) (*ast.Node, error) {
	if len(raws) == 0 {
		return nil, ierr.New(ierr.Decode, "empty node table")
	}

	nodes := make([]*ast.Node, len(raws))
	for i, rn := range raws {
		nodes[i] = &ast.Node{Kind: rn.kind, WireIndex: rn.index}
	}

	for i, rn := range raws {
		n := nodes[i]
		for _, ci := range rn.childIdx {
			if int(ci) >= len(nodes) {
				return nil, ierr.New(ierr.Decode, fmt.Sprintf("node %d: child index %d out of range", i, ci))
			}
			n.Children = append(n.Children, nodes[ci])
		}
	}

	for i, rn := range raws {
		n := nodes[i]
		if i == 0 {
			n.Parent = nil // root is linked specially, never by parentIndex
			continue
		}
		if rn.parentIndex == 0xFFFF || int(rn.parentIndex) >= len(nodes) {
			return nil, ierr.New(ierr.Decode, fmt.Sprintf("node %d: missing parent", i))
		}
		n.Parent = nodes[rn.parentIndex]
	}

	if nodes[0].Kind != ast.Program {
		return nil, ierr.New(ierr.Decode, "root is not a Program node")
	}

	for i, rn := range raws {
		if rn.hasVal {
			if err := installValue(nodes[i], rn); err != nil {
				return nil, err
			}
		}
		if rn.flags&flagConst != 0 {
			nodes[i].IsConst = true
		}
	}

	for _, n := range nodes {
		wireChildRoles(n)
	}

	return nodes[0], nil
}

func installValue(n *ast.Node, rn rawNode) error {
	switch n.Kind {
	case ast.BinaryOp, ast.UnaryOp, ast.Assignment:
		if rn.operator == "" {
			if n.Kind == ast.Assignment {
				n.Operator = "="
			} else {
				return ierr.New(ierr.Decode, fmt.Sprintf("node %d: empty operator on non-assignment operator node", n.WireIndex))
			}
		} else {
			n.Operator = rn.operator
		}
	case ast.Identifier, ast.Constant, ast.TypeNode, ast.MemberAccess, ast.Param, ast.FuncDef, ast.DeclaratorNode:
		n.Name = rn.val.String()
	case ast.VarDecl, ast.Cast, ast.ConstructorCall:
		n.DeclType = rn.val.String()
	case ast.NumberLiteral, ast.StringLiteral, ast.CharLiteral:
		n.Value = rn.val
	default:
		n.Value = rn.val
	}
	return nil
}

// wireChildRoles populates the named operand fields (Left, Right, Body, …)
// from Children so the evaluator/executor never index into Children
// positionally. Each kind below has a fixed child arity and order that
// Encode produces and this switch reverses.
func wireChildRoles(n *ast.Node) {
	c := n.Children
	switch n.Kind {
	case ast.BinaryOp:
		if len(c) >= 2 {
			n.Left, n.Right = c[0], c[1]
		}
	case ast.UnaryOp:
		if len(c) >= 1 {
			n.Expr = c[0]
		}
	case ast.Assignment:
		if len(c) >= 2 {
			n.Left, n.Right = c[0], c[1]
		}
	case ast.Ternary:
		if len(c) >= 3 {
			n.Cond, n.Then, n.Else = c[0], c[1], c[2]
		}
	case ast.If:
		if len(c) >= 2 {
			n.Cond, n.Then = c[0], c[1]
		}
		if len(c) >= 3 {
			n.Else = c[2]
		}
	case ast.While, ast.DoWhile:
		if len(c) >= 2 {
			n.Cond, n.Body = c[0], c[1]
		}
	case ast.For:
		// child order: init, cond, post, body
		if len(c) >= 4 {
			n.Left, n.Cond, n.Right, n.Body = c[0], c[1], c[2], c[3]
		}
	case ast.RangeFor:
		if len(c) >= 3 {
			n.Left, n.Array, n.Body = c[0], c[1], c[2]
		}
	case ast.Switch:
		if len(c) >= 1 {
			n.Cond = c[0]
		}
	case ast.Case:
		// Children[0] is the match expression, or an Empty node for the
		// default case; Children[1] is the Compound body.
		if len(c) >= 1 && c[0].Kind != ast.Empty {
			n.Expr = c[0]
		}
		if len(c) >= 2 {
			n.Body = c[1]
		}
	case ast.Return:
		if len(c) >= 1 {
			n.Expr = c[0]
		}
	case ast.FunctionCall:
		if len(c) >= 1 {
			n.Callee = c[0]
			n.Args = c[1:]
		}
	case ast.MemberAccess:
		// the property name travels as this node's own HAS_VALUE string
		// payload (see installValue), not as a child node.
		if len(c) >= 1 {
			n.Object = c[0]
		}
	case ast.ArrayAccess:
		if len(c) >= 2 {
			n.Array, n.Index = c[0], c[1]
		}
	case ast.Cast, ast.ConstructorCall:
		n.Args = c
	case ast.VarDecl:
		// each child is a DeclaratorNode carrying one declared name.
		n.Declarators = make([]ast.Declarator, 0, len(c))
		for _, dc := range c {
			d := ast.Declarator{Name: dc.Name}
			dcc := dc.Children
			if len(dcc) >= 1 && dcc[0].Kind != ast.Empty {
				d.Initializer = dcc[0]
			}
			for _, dim := range dcc[1:] {
				d.ArrayDims = append(d.ArrayDims, int(dim.Value.Int64()))
			}
			n.Declarators = append(n.Declarators, d)
		}
	case ast.Param:
		// child 0 is a TypeNode carrying the declared type; child 1, if
		// present, is the default-value expression.
		if len(c) >= 1 {
			n.DeclType = c[0].Name
		}
		if len(c) >= 2 {
			n.Default = c[1]
		}
	case ast.FuncDef:
		// children are the Param list followed by the Compound body.
		if len(c) > 0 {
			n.Body = c[len(c)-1]
			n.Params = c[:len(c)-1]
		}
	}
}
