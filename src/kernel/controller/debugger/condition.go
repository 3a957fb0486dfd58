package debugger

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// expression is a parsed CEL expression. Identifiers are resolved against the paused frame's
// variables at evaluation time, so no declarations are needed up front.
type expression struct {
	source  string
	program cel.Program
}

func compile(env *cel.Env, source string) (*expression, error) {
	ast, iss := env.Parse(source)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &expression{source: source, program: prg}, nil
}

func (e *expression) eval(vars map[string]any) (ref.Val, error) {
	out, _, err := e.program.Eval(vars)
	if err != nil {
		return nil, err
	}
	if types.IsError(out) {
		return nil, fmt.Errorf("%v", out)
	}
	return out, nil
}

// holds evaluates the expression as a breakpoint condition.
func (e *expression) holds(vars map[string]any) (bool, error) {
	out, err := e.eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("condition %q is %s, not bool", e.source, out.Type().TypeName())
	}
	return bool(b), nil
}

// activation merges globals and locals, with locals shadowing globals.
func activation(locals, globals map[string]any) map[string]any {
	vars := make(map[string]any, len(locals)+len(globals))
	for k, v := range globals {
		vars[k] = v
	}
	for k, v := range locals {
		vars[k] = v
	}
	return vars
}
