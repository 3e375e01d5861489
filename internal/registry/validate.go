package registry

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/talgya/macrosim/internal/errs"
)

// requiredEntryPoint is the function every script must declare; the
// Sandbox Executor invokes it with the trimmed per-tick context.
const requiredEntryPoint = "generate_decisions"

var forbiddenIdentifiers = map[string]bool{
	"eval":       true,
	"require":    true,
	"import":     true,
	"Function":   true,
	"globalThis": true,
	"process":    true,
}

// Validate statically rejects a script body that could attempt to escape
// the sandbox or otherwise violate the script isolation invariant, walking
// the parsed AST rather than pattern-matching source text. It does not run
// the script.
func Validate(code string) error {
	program, err := parser.ParseFile(nil, "script.js", code, 0)
	if err != nil {
		return errs.Wrap(errs.KindInvalidScript, "", "script does not parse as JavaScript", err)
	}

	v := &validator{}
	for _, stmt := range program.Body {
		v.checkTopLevelStatement(stmt)
		if v.err != nil {
			break
		}
	}
	if v.err != nil {
		return errs.Wrap(errs.KindInvalidScript, "", v.err.Error(), v.err)
	}
	if !v.sawEntryPoint {
		return errs.New(errs.KindInvalidScript, "", fmt.Sprintf("script must declare function %s(context)", requiredEntryPoint))
	}
	return nil
}

type validator struct {
	err           error
	sawEntryPoint bool
}

func (v *validator) fail(msg string) {
	if v.err == nil {
		v.err = fmt.Errorf("%s", msg)
	}
}

// checkTopLevelStatement allows only the entry point function declaration,
// whitelisted helper declarations (function/var/const/let) and empty
// statements at the top level, per the script isolation invariant.
func (v *validator) checkTopLevelStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.FunctionDeclaration:
		if s.Function != nil && s.Function.Name != nil && nodeText(s.Function.Name.Name) == requiredEntryPoint {
			v.sawEntryPoint = true
		}
	case *ast.VariableStatement, *ast.LexicalDeclaration, *ast.EmptyStatement:
		// whitelisted top-level shapes
	default:
		v.fail("top-level statements are restricted to function, const, and let declarations")
		return
	}
	v.walk(reflect.ValueOf(stmt))
}

// walk recursively inspects a goja AST subtree via reflection, so the
// traversal itself never needs to know every statement/expression type's
// exact field layout — only the handful of node kinds that are
// semantically forbidden.
func (v *validator) walk(val reflect.Value) {
	if v.err != nil || !val.IsValid() {
		return
	}
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface:
		if val.IsNil() {
			return
		}
		v.inspect(val.Interface())
		v.walk(val.Elem())
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			f := val.Field(i)
			if !f.CanInterface() {
				continue
			}
			v.walk(f)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < val.Len(); i++ {
			v.walk(val.Index(i))
		}
	default:
		// scalar leaf, nothing to recurse into
	}
}

// inspect applies the semantic forbidden-construct checks to one node,
// without altering how walk recurses into it.
func (v *validator) inspect(node any) {
	switch n := node.(type) {
	case *ast.Identifier:
		name := nodeText(n.Name)
		if forbiddenIdentifiers[name] {
			v.fail(fmt.Sprintf("use of %q is not allowed", name))
		}
	case *ast.NewExpression:
		v.fail("the new operator is not allowed")
	case *ast.DotExpression:
		prop := nodeText(n.Identifier.Name)
		if strings.HasPrefix(prop, "__") {
			v.fail(fmt.Sprintf("access to %q is not allowed", prop))
		}
	}
}

func nodeText(n any) string {
	switch v := n.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
