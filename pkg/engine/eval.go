// Package engine implements the tree-walking expression evaluator and
// statement executor: a type switch over ast.Kind that walks a decoded
// sketch and drives it one node at a time.
package engine

import (
	"fmt"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/builtins"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// namedConstants covers the Arduino digital/pin constants a sketch refers
// to by name; A0-A5 are the analog input pin numbers on an Uno-class board.
var namedConstants = map[string]value.Value{
	"HIGH": value.Int32(1), "LOW": value.Int32(0),
	"OUTPUT": value.Int32(1), "INPUT": value.Int32(0), "INPUT_PULLUP": value.Int32(2),
	"A0": value.Int32(14), "A1": value.Int32(15), "A2": value.Int32(16),
	"A3": value.Int32(17), "A4": value.Int32(18), "A5": value.Int32(19),
	"true": value.Bool(true), "false": value.Bool(false),
	"LED_BUILTIN": value.Int32(13),
}

// Evaluate computes the Value of expression node n. It is a pure function
// of (node, context) except for its two documented side effects: emitting
// commands and suspending via ctx.Dispatch.
func Evaluate(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	if n == nil {
		return value.Void, nil
	}
	switch n.Kind {
	case ast.NumberLiteral, ast.StringLiteral, ast.CharLiteral:
		return n.Value, nil

	case ast.Identifier:
		b, ok := ctx.Scope.Lookup(n.Name)
		if !ok {
			return value.Void, ierr.New(ierr.Name, "undefined identifier "+n.Name)
		}
		return b.Value, nil

	case ast.Constant:
		if v, ok := namedConstants[n.Name]; ok {
			return v, nil
		}
		if b, ok := ctx.Scope.Lookup(n.Name); ok {
			return b.Value, nil
		}
		return value.Void, ierr.New(ierr.Name, "undefined constant "+n.Name)

	case ast.BinaryOp:
		return evalBinary(n, ctx)

	case ast.UnaryOp:
		return evalUnary(n, ctx)

	case ast.Assignment:
		return evalAssignment(n, ctx)

	case ast.Ternary:
		cond, err := Evaluate(n.Cond, ctx)
		if err != nil {
			return value.Void, err
		}
		if cond.Bool() {
			return Evaluate(n.Then, ctx)
		}
		return Evaluate(n.Else, ctx)

	case ast.Cast:
		return evalCast(n, ctx)

	case ast.ArrayAccess:
		return evalArrayAccess(n, ctx)

	case ast.MemberAccess:
		return evalMemberRead(n, ctx)

	case ast.FunctionCall:
		return evalCall(n, ctx)

	case ast.ConstructorCall:
		return evalConstructor(n, ctx)

	default:
		return value.Void, ierr.New(ierr.Internal, fmt.Sprintf("evaluate: unhandled node kind %v", n.Kind))
	}
}

// evalArgs evaluates a call's arguments strictly left-to-right; unlike
// && and ||, a function call never elides an argument evaluation.
func evalArgs(nodes []*ast.Node, ctx *rt.Context) ([]value.Value, error) {
	out := make([]value.Value, len(nodes))
	for i, a := range nodes {
		v, err := Evaluate(a, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalBinary(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	op := n.Operator
	if op == "" {
		return value.Void, ierr.New(ierr.Internal, "binary operator node with empty operator reached evaluation")
	}

	// Short-circuit operators evaluate the right operand only when needed,
	// in evaluation order.
	if op == "&&" {
		l, err := Evaluate(n.Left, ctx)
		if err != nil {
			return value.Void, err
		}
		if !l.Bool() {
			return value.Bool(false), nil
		}
		r, err := Evaluate(n.Right, ctx)
		if err != nil {
			return value.Void, err
		}
		return value.Bool(r.Bool()), nil
	}
	if op == "||" {
		l, err := Evaluate(n.Left, ctx)
		if err != nil {
			return value.Void, err
		}
		if l.Bool() {
			return value.Bool(true), nil
		}
		r, err := Evaluate(n.Right, ctx)
		if err != nil {
			return value.Void, err
		}
		return value.Bool(r.Bool()), nil
	}

	l, err := Evaluate(n.Left, ctx)
	if err != nil {
		return value.Void, err
	}
	r, err := Evaluate(n.Right, ctx)
	if err != nil {
		return value.Void, err
	}
	return applyBinary(op, l, r)
}

func applyBinary(op string, l, r value.Value) (value.Value, error) {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return compare(op, l, r)
	case "&", "|", "^", "<<", ">>":
		return bitwise(op, l, r)
	case "+":
		if l.Kind == value.KindString || r.Kind == value.KindString {
			return value.Void, ierr.New(ierr.Type, "'+' is not defined between a string and a number (implicit concatenation is not supported)")
		}
		return arithmetic(op, l, r)
	case "-", "*", "/", "%":
		return arithmetic(op, l, r)
	default:
		return value.Void, ierr.New(ierr.Internal, "unknown binary operator "+op)
	}
}

func compare(op string, l, r value.Value) (value.Value, error) {
	if l.Kind == value.KindFloat32 || l.Kind == value.KindFloat64 || r.Kind == value.KindFloat32 || r.Kind == value.KindFloat64 {
		a, b := l.Float64(), r.Float64()
		return value.Bool(compareFloat(op, a, b)), nil
	}
	// Mixed-sign comparisons promote both operands to signed 64-bit first.
	a, b := l.Int64(), r.Int64()
	return value.Bool(compareInt(op, a, b)), nil
}

func compareFloat(op string, a, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func compareInt(op string, a, b int64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func bitwise(op string, l, r value.Value) (value.Value, error) {
	isFloat := func(v value.Value) bool { return v.Kind == value.KindFloat32 || v.Kind == value.KindFloat64 }
	if !l.IsNumeric() || !r.IsNumeric() || isFloat(l) || isFloat(r) {
		return value.Void, ierr.New(ierr.Type, "bitwise operator requires integer operands")
	}
	a, b := l.Int64(), r.Int64()
	var res int64
	switch op {
	case "&":
		res = a & b
	case "|":
		res = a | b
	case "^":
		res = a ^ b
	case "<<":
		res = a << uint(b)
	case ">>":
		res = a >> uint(b)
	}
	return resultForPromotedKind(value.Promote(l.Kind, r.Kind), float64(res), res), nil
}

func arithmetic(op string, l, r value.Value) (value.Value, error) {
	if !l.IsNumeric() || !r.IsNumeric() {
		return value.Void, ierr.New(ierr.Type, fmt.Sprintf("operator %q applied to incompatible values", op))
	}
	k := value.Promote(l.Kind, r.Kind)
	if k == value.KindFloat32 || k == value.KindFloat64 {
		a, b := l.Float64(), r.Float64()
		var res float64
		switch op {
		case "+":
			res = a + b
		case "-":
			res = a - b
		case "*":
			res = a * b
		case "/":
			res = a / b // IEEE-754 inf/NaN on zero divisor
		case "%":
			res = floatMod(a, b)
		}
		return resultForPromotedKind(k, res, int64(res)), nil
	}

	a, b := l.Int64(), r.Int64()
	var res int64
	switch op {
	case "+":
		res = a + b
	case "-":
		res = a - b
	case "*":
		res = a * b
	case "/":
		if b == 0 {
			return value.Void, ierr.New(ierr.DivideByZero, "integer division by zero")
		}
		res = a / b
	case "%":
		if b == 0 {
			return value.Void, ierr.New(ierr.DivideByZero, "integer modulo by zero")
		}
		res = a % b
	}
	return resultForPromotedKind(k, float64(res), res), nil
}

func floatMod(a, b float64) float64 {
	if b == 0 {
		return a / b // produces +/-Inf or NaN, matching float division semantics
	}
	m := a - b*float64(int64(a/b))
	return m
}

// resultForPromotedKind wraps an arithmetic result at the promoted type's
// declared width, so e.g. int32 overflow wraps instead of widening.
func resultForPromotedKind(k value.Kind, f float64, i int64) value.Value {
	switch k {
	case value.KindFloat32:
		return value.Float32(float32(f))
	case value.KindFloat64:
		return value.Float64(f)
	case value.KindInt64:
		return value.Int64(i)
	case value.KindUint32:
		return value.Uint32(value.WrapUint32(i))
	default:
		return value.Int32(value.WrapInt32(i))
	}
}

func evalUnary(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	switch n.Operator {
	case "++", "--":
		return evalIncDec(n, ctx)
	case "-":
		v, err := Evaluate(n.Expr, ctx)
		if err != nil {
			return value.Void, err
		}
		if v.Kind == value.KindFloat32 || v.Kind == value.KindFloat64 {
			return resultForPromotedKind(v.Kind, -v.Float64(), 0), nil
		}
		return resultForPromotedKind(v.Kind, 0, -v.Int64()), nil
	case "+":
		return Evaluate(n.Expr, ctx)
	case "!":
		v, err := Evaluate(n.Expr, ctx)
		if err != nil {
			return value.Void, err
		}
		return value.Bool(!v.Bool()), nil
	case "~":
		v, err := Evaluate(n.Expr, ctx)
		if err != nil {
			return value.Void, err
		}
		return resultForPromotedKind(v.Kind, 0, ^v.Int64()), nil
	default:
		return value.Void, ierr.New(ierr.Internal, "unknown unary operator "+n.Operator)
	}
}

// evalIncDec implements prefix/postfix ++/--: prefix returns the
// post-update value, postfix returns the pre-update value.
func evalIncDec(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	old, err := Evaluate(n.Expr, ctx)
	if err != nil {
		return value.Void, err
	}
	delta := int64(1)
	if n.Operator == "--" {
		delta = -1
	}
	var updated value.Value
	if old.Kind == value.KindFloat32 || old.Kind == value.KindFloat64 {
		updated = resultForPromotedKind(old.Kind, old.Float64()+float64(delta), 0)
	} else {
		updated = resultForPromotedKind(old.Kind, 0, old.Int64()+delta)
	}
	if err := storeLvalue(n.Expr, updated, ctx); err != nil {
		return value.Void, err
	}
	if n.Prefix {
		return updated, nil
	}
	return old, nil
}

func evalAssignment(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	op := n.Operator
	if op == "" {
		op = "="
	}

	rhs, err := Evaluate(n.Right, ctx)
	if err != nil {
		return value.Void, err
	}

	newVal := rhs
	if op != "=" {
		cur, err := Evaluate(n.Left, ctx)
		if err != nil {
			return value.Void, err
		}
		newVal, err = applyBinary(op[:len(op)-1], cur, rhs)
		if err != nil {
			return value.Void, err
		}
	}

	if err := storeLvalue(n.Left, newVal, ctx); err != nil {
		return value.Void, err
	}

	if n.Left.Kind == ast.Identifier {
		isConst := false
		if b, ok := ctx.Scope.Lookup(n.Left.Name); ok {
			isConst = b.Const
		}
		ctx.Emit(command.Command{Type: command.VarSet, Variable: n.Left.Name, Value: newVal, IsConst: isConst})
	}

	return newVal, nil
}

// storeLvalue writes newVal into the container an lvalue expression names:
// an identifier, an array element, or a struct field.
func storeLvalue(lv *ast.Node, newVal value.Value, ctx *rt.Context) error {
	switch lv.Kind {
	case ast.Identifier:
		return ctx.Scope.Assign(lv.Name, newVal)

	case ast.ArrayAccess:
		arr, err := Evaluate(lv.Array, ctx)
		if err != nil {
			return err
		}
		idxV, err := Evaluate(lv.Index, ctx)
		if err != nil {
			return err
		}
		if !idxV.IsNumeric() {
			return ierr.New(ierr.Type, "array index must be numeric")
		}
		updated, ok := arr.WithAt(int(idxV.Int64()), newVal)
		if !ok {
			return ierr.New(ierr.Bounds, "array index out of range")
		}
		return storeLvalue(lv.Array, updated, ctx)

	case ast.MemberAccess:
		obj, err := Evaluate(lv.Object, ctx)
		if err != nil {
			return err
		}
		updated := obj.WithField(lv.Name, newVal)
		return storeLvalue(lv.Object, updated, ctx)

	default:
		return ierr.New(ierr.Internal, fmt.Sprintf("node kind %v is not an lvalue", lv.Kind))
	}
}

func evalCast(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	var arg value.Value
	if len(n.Args) > 0 {
		v, err := Evaluate(n.Args[0], ctx)
		if err != nil {
			return value.Void, err
		}
		arg = v
	}
	return castTo(n.DeclType, arg)
}

func castTo(targetType string, v value.Value) (value.Value, error) {
	switch targetType {
	case "int", "int16_t", "short":
		return value.Int32(int32(int16(v.Int64()))), nil
	case "long", "int32_t":
		return value.Int32(value.WrapInt32(v.Int64())), nil
	case "unsigned int", "uint16_t", "word":
		return value.Uint32(uint32(uint16(v.Int64()))), nil
	case "unsigned long", "uint32_t":
		return value.Uint32(value.WrapUint32(v.Int64())), nil
	case "byte", "uint8_t":
		return value.Int32(int32(uint8(v.Int64()))), nil
	case "char":
		return value.Char(byte(v.Int64())), nil
	case "float":
		return value.Float32(float32(v.Float64())), nil
	case "double":
		return value.Float64(v.Float64()), nil
	case "bool", "boolean":
		return value.Bool(v.Bool()), nil
	case "String", "string":
		return value.String(v.String()), nil
	default:
		return value.Void, ierr.New(ierr.Type, "unknown cast target type "+targetType)
	}
}

func evalArrayAccess(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	arr, err := Evaluate(n.Array, ctx)
	if err != nil {
		return value.Void, err
	}
	idxV, err := Evaluate(n.Index, ctx)
	if err != nil {
		return value.Void, err
	}
	if !idxV.IsNumeric() {
		return value.Void, ierr.New(ierr.Type, "array index must be numeric")
	}
	elem, ok := arr.At(int(idxV.Int64()))
	if !ok {
		return value.Void, ierr.New(ierr.Bounds, "array index out of range")
	}
	return elem, nil
}

func evalMemberRead(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	obj, err := Evaluate(n.Object, ctx)
	if err != nil {
		return value.Void, err
	}
	f, ok := obj.Field(n.Name)
	if !ok {
		return value.Void, ierr.New(ierr.Name, "undefined member "+n.Name)
	}
	return f, nil
}

func evalConstructor(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	_, err := evalArgs(n.Args, ctx)
	if err != nil {
		return value.Void, err
	}
	switch n.DeclType {
	case "String", "string":
		if len(n.Args) > 0 {
			v, _ := Evaluate(n.Args[0], ctx)
			return value.String(v.String()), nil
		}
		return value.String(""), nil
	default:
		return castTo(n.DeclType, value.Int32(0))
	}
}

// evalCall resolves a FunctionCall's callee: Arduino builtins first, then
// user-defined functions, and member-access callees routed to the
// library-method request path.
func evalCall(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	switch n.Callee.Kind {
	case ast.Identifier:
		name := n.Callee.Name
		if fn, ok := builtins.Lookup(name); ok {
			args, err := evalArgs(n.Args, ctx)
			if err != nil {
				return value.Void, err
			}
			return fn(args, ctx)
		}
		if fn, ok := ctx.Functions[name]; ok {
			args, err := evalArgs(n.Args, ctx)
			if err != nil {
				return value.Void, err
			}
			return CallFunction(name, fn, args, ctx)
		}
		return value.Void, ierr.New(ierr.Name, "undefined function "+name)

	case ast.MemberAccess:
		return evalLibraryMethodCall(n, ctx)

	default:
		return value.Void, ierr.New(ierr.Internal, "unsupported call callee kind")
	}
}

// evalLibraryMethodCall handles a member-access call object.method(...):
// a registered builtin under that qualified name (Serial.begin/print/
// println) runs directly; any other object.method issues a
// LIBRARY_METHOD_REQUEST and suspends for the host's response.
func evalLibraryMethodCall(n *ast.Node, ctx *rt.Context) (value.Value, error) {
	object := n.Callee.Object.Name
	method := n.Callee.Name
	qualified := object + "." + method

	if fn, ok := builtins.Lookup(qualified); ok {
		args, err := evalArgs(n.Args, ctx)
		if err != nil {
			return value.Void, err
		}
		return fn(args, ctx)
	}

	args, err := evalArgs(n.Args, ctx)
	if err != nil {
		return value.Void, err
	}
	id := ctx.IssueRequest(qualified)
	ctx.Emit(command.Command{
		Type: command.LibraryMethodRequest, RequestID: id, Function: qualified,
		Arguments: argsToStrings(args),
	})
	return ctx.AwaitResponse(qualified, id, args), nil
}

func argsToStrings(args []value.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}
