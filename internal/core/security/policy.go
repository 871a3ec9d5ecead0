// Package security evaluates access rules over the authenticated actor.
//
// Rules are CEL expressions compiled once at startup. Each rule sees the
// variables user_id, branch_id (strings), roles, permissions (lists of
// strings) and is_admin (bool), and must evaluate to a bool.
package security

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
)

// Rule names used by the ledger.
const (
	RuleTransferSubToSub  = "transfer.sub_to_sub"
	RuleTransferSubToHead = "transfer.sub_to_head"
)

// Policy holds compiled rules.
type Policy struct {
	programs map[string]cel.Program
}

// NewPolicy compiles rules keyed by name. A rule that does not compile or
// does not yield a bool fails the whole policy.
func NewPolicy(rules map[string]string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("branch_id", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("permissions", cel.ListType(cel.StringType)),
		cel.Variable("is_admin", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	p := &Policy{programs: make(map[string]cel.Program, len(rules))}
	for _, name := range names {
		ast, iss := env.Compile(rules[name])
		if iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", name, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s must evaluate to bool, got %s", name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", name, err)
		}
		p.programs[name] = prg
	}
	return p, nil
}

// Allowed evaluates a rule for the actor in ctx. Unknown rules and anonymous
// actors are denied.
func (p *Policy) Allowed(ctx context.Context, rule string) (bool, error) {
	prg, ok := p.programs[rule]
	if !ok {
		return false, nil
	}
	user := appctx.GetUser(ctx)
	if user == nil {
		return false, nil
	}

	out, _, err := prg.Eval(map[string]any{
		"user_id":     user.UserID,
		"branch_id":   user.BranchID,
		"roles":       nonNil(user.Roles),
		"permissions": nonNil(user.Permissions),
		"is_admin":    user.IsAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate rule %s: %w", rule, err)
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed, nil
}

// Require returns FORBIDDEN unless the rule allows the actor.
func (p *Policy) Require(ctx context.Context, rule string) error {
	allowed, err := p.Allowed(ctx, rule)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if !allowed {
		return apperror.NewForbidden("operation not permitted").WithDetail("rule", rule)
	}
	return nil
}

// TransferGrants are the explicit grants a transfer type may need.
type TransferGrants struct {
	SubToSub  bool
	SubToHead bool
}

// TransferGrants evaluates both transfer rules. Evaluation errors deny.
func (p *Policy) TransferGrants(ctx context.Context) TransferGrants {
	subToSub, _ := p.Allowed(ctx, RuleTransferSubToSub)
	subToHead, _ := p.Allowed(ctx, RuleTransferSubToHead)
	return TransferGrants{SubToSub: subToSub, SubToHead: subToHead}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
