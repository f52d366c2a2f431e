// Package policyopa runs control tests written in rego. A policy package
// grc.controls declares the codes it covers and a deny set of
// {"control", "message"} objects; a control passes when nothing is denied.
package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/yokoszn/CreatureGRC/internal/usecase"
)

const (
	coversQuery = "data.grc.controls.covers"
	denyQuery   = "data.grc.controls.deny"
)

type Engine struct {
	deny   rego.PreparedEvalQuery
	covers map[string]struct{}
}

// NewEngineFromPath loads every .rego file under path.
func NewEngineFromPath(ctx context.Context, path string) (*Engine, error) {
	return newEngine(ctx, rego.Load([]string{path}, nil))
}

func NewEngineFromModules(ctx context.Context, modules map[string]string) (*Engine, error) {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make([]func(*rego.Rego), 0, len(names))
	for _, name := range names {
		opts = append(opts, rego.Module(name, modules[name]))
	}
	return newEngine(ctx, opts...)
}

func newEngine(ctx context.Context, sources ...func(*rego.Rego)) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)

	prepare := func(query string) (rego.PreparedEvalQuery, error) {
		opts := append([]func(*rego.Rego){
			rego.Query(query),
			rego.Compiler(ast.NewCompiler().WithCapabilities(capabilities)),
			rego.StrictBuiltinErrors(true),
		}, sources...)
		return rego.New(opts...).PrepareForEval(ctx)
	}

	deny, err := prepare(denyQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare control policies: %w", err)
	}
	coversEval, err := prepare(coversQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare control policies: %w", err)
	}
	rs, err := coversEval.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate covers: %w", err)
	}
	covers := make(map[string]struct{})
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		var codes []string
		if err := remarshal(rs[0].Expressions[0].Value, &codes); err != nil {
			return nil, fmt.Errorf("covers must be a set of control codes: %w", err)
		}
		for _, code := range codes {
			covers[code] = struct{}{}
		}
	}
	return &Engine{deny: deny, covers: covers}, nil
}

func (e *Engine) Covers(controlCode string) bool {
	if e == nil {
		return false
	}
	_, ok := e.covers[controlCode]
	return ok
}

func (e *Engine) Codes() []string {
	out := make([]string, 0, len(e.covers))
	for code := range e.covers {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

type policyInput struct {
	ControlCode string `json:"control_code"`
	usecase.ControlTestInput
}

type denial struct {
	Control string `json:"control"`
	Message string `json:"message"`
}

func (e *Engine) Evaluate(ctx context.Context, controlCode string, in usecase.ControlTestInput) (usecase.ControlTestOutcome, error) {
	if e == nil {
		return usecase.ControlTestOutcome{}, errors.New("policy engine is nil")
	}
	var input map[string]any
	if err := remarshal(policyInput{ControlCode: controlCode, ControlTestInput: in}, &input); err != nil {
		return usecase.ControlTestOutcome{}, err
	}
	input["as_of"] = in.AsOf.UTC().Format(time.RFC3339)

	rs, err := e.deny.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return usecase.ControlTestOutcome{}, err
	}
	var denials []denial
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if err := remarshal(rs[0].Expressions[0].Value, &denials); err != nil {
			return usecase.ControlTestOutcome{}, fmt.Errorf("deny must be a set of {control, message}: %w", err)
		}
	}
	findings := []string{}
	for _, d := range denials {
		if d.Control == controlCode {
			findings = append(findings, d.Message)
		}
	}
	sort.Strings(findings)
	return usecase.ControlTestOutcome{Passed: len(findings) == 0, Findings: findings}, nil
}

func remarshal(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
