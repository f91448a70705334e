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

// Encode serialises a tree back into the compact binary format, assigning
// a fresh pre-order index to every node (index 0 is always the root).
// Re-encoding a decoded tree and decoding it again must yield a
// structurally identical AST.
func Encode(w io.Writer, root *ast.Node) error {
	if root == nil || root.Kind != ast.Program {
		return ierr.New(ierr.Internal, "encode: root must be a Program node")
	}

	order, indexOf := flatten(root)
	strtab, stringIndex := collectStrings(order)

	bw := bufio.NewWriter(w)

	if _, err := bw.Write(Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, Version); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(0)); err != nil { // flags, none defined
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(order))); err != nil {
		return err
	}
	// string table immediately follows the header; offset recorded for
	// wire compatibility with seekable readers even though Decode here
	// consumes the stream sequentially.
	headerSize := uint32(4 + 2 + 2 + 4 + 4)
	if err := binary.Write(bw, binary.LittleEndian, headerSize); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(strtab))); err != nil {
		return err
	}
	for _, s := range strtab {
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(s))); err != nil {
			return err
		}
		if _, err := bw.WriteString(s); err != nil {
			return err
		}
	}

	for _, n := range order {
		if err := writeNodeRecord(bw, n, indexOf, stringIndex); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// flatten assigns indices in pre-order (root is always 0) and returns the
// flat slice plus a pointer-to-index map.
func flatten(root *ast.Node) ([]*ast.Node, map[*ast.Node]uint16) {
	var order []*ast.Node
	indexOf := map[*ast.Node]uint16{}
	var visit func(n *ast.Node)
	visit = func(n *ast.Node) {
		indexOf[n] = uint16(len(order))
		order = append(order, n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
	return order, indexOf
}

func collectStrings(order []*ast.Node) ([]string, map[string]uint16) {
	var table []string
	index := map[string]uint16{}
	add := func(s string) {
		if _, ok := index[s]; ok {
			return
		}
		index[s] = uint16(len(table))
		table = append(table, s)
	}
	for _, n := range order {
		switch n.Kind {
		case ast.BinaryOp, ast.UnaryOp, ast.Assignment:
			add(n.Operator)
		case ast.Identifier, ast.Constant, ast.TypeNode, ast.MemberAccess,
			ast.Param, ast.FuncDef, ast.DeclaratorNode:
			add(n.Name)
		case ast.VarDecl, ast.Cast, ast.ConstructorCall:
			add(n.DeclType)
		case ast.StringLiteral:
			add(n.Value.String())
		}
	}
	return table, index
}

func writeNodeRecord(bw *bufio.Writer, n *ast.Node, indexOf map[*ast.Node]uint16, stringIndex map[string]uint16) error {
	wireKind, ok := wireKindOf(n.Kind)
	if !ok {
		return ierr.New(ierr.Internal, fmt.Sprintf("encode: unknown node kind %v", n.Kind))
	}

	hasValue, operatorOrName := encodedPayload(n)
	var flags byte
	if len(n.Children) > 0 {
		flags |= flagHasChildren
	}
	if hasValue {
		flags |= flagHasValue
	}
	if n.Kind == ast.VarDecl && n.IsConst {
		flags |= flagConst
	}

	if err := binary.Write(bw, binary.LittleEndian, wireKind); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, flags); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, indexOf[n]); err != nil {
		return err
	}
	var parentIdx uint16 = 0xFFFF
	if n.Parent != nil {
		parentIdx = indexOf[n.Parent]
	}
	if err := binary.Write(bw, binary.LittleEndian, parentIdx); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(n.Children))); err != nil {
		return err
	}

	if hasValue {
		if err := writeValueBlock(bw, n, operatorOrName, stringIndex); err != nil {
			return err
		}
	}

	for _, c := range n.Children {
		if err := binary.Write(bw, binary.LittleEndian, indexOf[c]); err != nil {
			return err
		}
	}
	return nil
}

// encodedPayload reports whether n carries a HAS_VALUE payload and, for
// string-backed kinds, which string it refers to.
func encodedPayload(n *ast.Node) (bool, string) {
	switch n.Kind {
	case ast.BinaryOp, ast.UnaryOp, ast.Assignment:
		return true, n.Operator
	case ast.Identifier, ast.Constant, ast.TypeNode, ast.MemberAccess,
		ast.Param, ast.FuncDef, ast.DeclaratorNode:
		return true, n.Name
	case ast.VarDecl, ast.Cast, ast.ConstructorCall:
		return true, n.DeclType
	case ast.StringLiteral:
		return true, n.Value.String()
	case ast.NumberLiteral, ast.CharLiteral:
		return true, "" // numeric payload lives on n.Value, not the string table
	default:
		return false, ""
	}
}

func writeValueBlock(bw *bufio.Writer, n *ast.Node, strVal string, stringIndex map[string]uint16) error {
	switch n.Kind {
	case ast.BinaryOp, ast.UnaryOp, ast.Assignment, ast.Identifier, ast.Constant, ast.TypeNode,
		ast.MemberAccess, ast.StringLiteral, ast.Param, ast.FuncDef, ast.DeclaratorNode,
		ast.VarDecl, ast.Cast, ast.ConstructorCall:
		if err := binary.Write(bw, binary.LittleEndian, vtString); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, stringIndex[strVal])
	case ast.NumberLiteral, ast.CharLiteral:
		return writeNumericValue(bw, n)
	default:
		return binary.Write(bw, binary.LittleEndian, vtNull)
	}
}

func writeNumericValue(bw *bufio.Writer, n *ast.Node) error {
	v := n.Value
	switch v.Kind {
	case value.KindInt32:
		if err := binary.Write(bw, binary.LittleEndian, vtInt32); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, int32(v.Int64()))
	case value.KindInt64:
		if err := binary.Write(bw, binary.LittleEndian, vtInt64); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, v.Int64())
	case value.KindUint32:
		if err := binary.Write(bw, binary.LittleEndian, vtUint32); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, uint32(v.Int64()))
	case value.KindFloat32:
		if err := binary.Write(bw, binary.LittleEndian, vtFloat32); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, float32(v.Float64()))
	case value.KindFloat64:
		if err := binary.Write(bw, binary.LittleEndian, vtFloat64); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, v.Float64())
	case value.KindChar:
		if err := binary.Write(bw, binary.LittleEndian, vtInt32); err != nil {
			return err
		}
		return binary.Write(bw, binary.LittleEndian, int32(v.Int64()))
	default:
		return binary.Write(bw, binary.LittleEndian, vtNull)
	}
}
