package fraud

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
)

// DefaultRule allows every redemption
const DefaultRule = "true"

// CELScreener decides redemptions with a CEL expression over the variables
// amount (double), currency, code, user_id and merchant_id (strings).
// The expression must evaluate to a bool; true allows the redemption.
type CELScreener struct {
	program cel.Program
	rule    string
	logger  ports.Logger
}

var _ ports.RedemptionScreener = (*CELScreener)(nil)

// NewCELScreener compiles rule. An empty rule falls back to DefaultRule.
func NewCELScreener(rule string, logger ports.Logger) (*CELScreener, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		rule = DefaultRule
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("merchant_id", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}

	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile screening rule %q: %w", rule, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("screening rule %q must evaluate to bool, got %s", rule, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build screening program: %w", err)
	}
	return &CELScreener{program: program, rule: rule, logger: logger}, nil
}

// Screen evaluates the rule against one redemption
func (s *CELScreener) Screen(ctx context.Context, r ports.RedemptionScreening) (*ports.ScreeningResult, error) {
	out, _, err := s.program.ContextEval(ctx, map[string]any{
		"amount":      r.Amount.InexactFloat64(),
		"currency":    r.Currency,
		"code":        r.Code,
		"user_id":     r.UserID.String(),
		"merchant_id": r.MerchantID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate screening rule: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("screening rule returned %T, want bool", out.Value())
	}
	if allowed {
		return &ports.ScreeningResult{Allowed: true}, nil
	}

	s.logger.Warn("Redemption rejected by screening rule",
		ports.String("code", r.Code),
		ports.Stringer("user_id", r.UserID),
		ports.String("amount", r.Amount.StringFixed(2)),
	)
	return &ports.ScreeningResult{Allowed: false, Reason: "rule: " + s.rule}, nil
}
