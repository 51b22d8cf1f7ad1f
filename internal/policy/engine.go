// Package policy decides whether a code execution request may run.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Actions a policy may return.
const (
	ActionAllow = "allow"
	ActionBlock = "block"
)

// Input is the document the policy is evaluated against.
type Input struct {
	SessionID        string   `json:"session_id"`
	Language         string   `json:"language"`
	Size             int      `json:"size"`
	MaxSize          int      `json:"max_size"`
	AllowedLanguages []string `json:"allowed_languages"`
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Action string
	Reason string
}

// Allowed reports whether the request may run.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares policyContent. The module must define
// data.code_policy.decision as an object with action and reason.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.code_policy.decision"),
		rego.Module("code_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// Evaluate runs the policy for one request.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined decision means the module has no default; fail closed.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: ActionBlock, Reason: "undefined"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result %T", results[0].Expressions[0].Value)
	}
	action, _ := obj["action"].(string)
	reason, _ := obj["reason"].(string)
	if action != ActionAllow && action != ActionBlock {
		return Decision{}, fmt.Errorf("unknown policy action %q", action)
	}
	return Decision{Action: action, Reason: reason}, nil
}

// DefaultPolicy blocks empty or oversized code and languages outside the
// allow-list.
const DefaultPolicy = `
package code_policy

default decision = {"action": "allow", "reason": "allowed"}

decision = {"action": "block", "reason": "language_not_allowed"} {
	not language_allowed
} else = {"action": "block", "reason": "empty_code"} {
	input.size == 0
} else = {"action": "block", "reason": "code_too_large"} {
	input.max_size > 0
	input.size > input.max_size
}

language_allowed {
	input.allowed_languages[_] == input.language
}
`
