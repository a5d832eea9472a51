package capture

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"audittrail/internal/audit"
)

// Filter decides whether a tracked entry is audited.
type Filter interface {
	Match(ctx context.Context, table string, action audit.Action) (bool, error)
}

// CELFilter evaluates a boolean CEL expression over the variables table and
// action, for example:
//
//	table != "sessions" && action != "DELETE"
type CELFilter struct {
	expr string
	prg  cel.Program
}

func NewCELFilter(expr string) (*CELFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("table", cel.StringType),
		cel.Variable("action", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile audit filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("audit filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build audit filter %q: %w", expr, err)
	}
	return &CELFilter{expr: expr, prg: prg}, nil
}

func (f *CELFilter) Match(ctx context.Context, table string, action audit.Action) (bool, error) {
	out, _, err := f.prg.ContextEval(ctx, map[string]any{
		"table":  table,
		"action": string(action),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate audit filter %q: %w", f.expr, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("audit filter %q returned %T", f.expr, out.Value())
	}
	return match, nil
}

func (f *CELFilter) String() string { return f.expr }
