package bulwark

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultPasswordMinLength = 8
	// DefaultPasswordMaxLength is bcrypt's input limit in bytes.
	DefaultPasswordMaxLength = 72
)

// PasswordRule is a pure predicate over a candidate password. Check returns
// nil when the candidate passes, or an error whose message is the reason.
type PasswordRule interface {
	Name() string
	Check(candidate string) error
}

// PasswordRuleFunc adapts a function to the PasswordRule interface.
type PasswordRuleFunc struct {
	RuleName string
	Fn       func(candidate string) error
}

func (f PasswordRuleFunc) Name() string { return f.RuleName }

func (f PasswordRuleFunc) Check(candidate string) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(candidate)
}

// PasswordViolation is one failed rule.
type PasswordViolation struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// PasswordPolicy evaluates every registered rule against a candidate and
// collects all failures.
type PasswordPolicy struct {
	mu    sync.RWMutex
	rules []PasswordRule
}

// NewPasswordPolicy returns a policy with the given rules in order.
func NewPasswordPolicy(rules ...PasswordRule) *PasswordPolicy {
	p := &PasswordPolicy{}
	for _, r := range rules {
		p.Register(r)
	}
	return p
}

// DefaultPasswordPolicy enforces length bounds, lowercase, uppercase,
// symbol and digit.
func DefaultPasswordPolicy() *PasswordPolicy {
	return NewPasswordPolicy(
		LengthRule(DefaultPasswordMinLength, DefaultPasswordMaxLength),
		LowercaseRule(),
		UppercaseRule(),
		SymbolRule(),
		DigitRule(),
	)
}

// Register appends a rule. Intended for startup.
func (p *PasswordPolicy) Register(rule PasswordRule) *PasswordPolicy {
	if rule == nil {
		return p
	}
	p.mu.Lock()
	p.rules = append(p.rules, rule)
	p.mu.Unlock()
	return p
}

// Rules returns a copy of the registered rules.
func (p *PasswordPolicy) Rules() []PasswordRule {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PasswordRule(nil), p.rules...)
}

// Evaluate runs every rule and returns all violations in registration
// order. An empty result means the candidate is acceptable.
func (p *PasswordPolicy) Evaluate(candidate string) []PasswordViolation {
	var violations []PasswordViolation
	for _, rule := range p.Rules() {
		if err := rule.Check(candidate); err != nil {
			violations = append(violations, PasswordViolation{
				Rule:   rule.Name(),
				Reason: err.Error(),
			})
		}
	}
	return violations
}

// Check returns an ErrWeakPassword error listing every violation, or nil.
func (p *PasswordPolicy) Check(candidate string) error {
	violations := p.Evaluate(candidate)
	if len(violations) == 0 {
		return nil
	}

	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Reason)
	}

	clone := ErrWeakPassword.Clone()
	if clone == nil {
		return ErrWeakPassword
	}
	clone.Message = fmt.Sprintf("password rejected: %s", strings.Join(reasons, "; "))
	return clone.WithMetadata(map[string]any{
		"violations": violations,
	})
}

// Violations extracts the violations attached to an ErrWeakPassword error.
func Violations(err error) []PasswordViolation {
	if !IsKind(err, ErrWeakPassword) {
		return nil
	}
	var target *goerrors.Error
	if !goerrors.As(err, &target) {
		return nil
	}
	v, _ := target.Metadata["violations"].([]PasswordViolation)
	return v
}

func normalizePasswordPolicy(p *PasswordPolicy) *PasswordPolicy {
	if p == nil {
		return DefaultPasswordPolicy()
	}
	return p
}

// LengthRule requires between min and max characters.
func LengthRule(min, max int) PasswordRule {
	reason := fmt.Sprintf("must be between %d and %d characters long", min, max)
	return PasswordRuleFunc{
		RuleName: "length",
		Fn: func(candidate string) error {
			return validation.Validate(candidate,
				validation.Required.Error(reason),
				validation.Length(min, max).Error(reason),
			)
		},
	}
}

// LowercaseRule requires at least one lowercase letter.
func LowercaseRule() PasswordRule {
	return containsRule("lowercase", "must contain a lowercase letter", unicode.IsLower)
}

// UppercaseRule requires at least one uppercase letter.
func UppercaseRule() PasswordRule {
	return containsRule("uppercase", "must contain an uppercase letter", unicode.IsUpper)
}

// SymbolRule requires at least one punctuation or symbol character.
func SymbolRule() PasswordRule {
	return containsRule("symbol", "must contain a symbol", func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// DigitRule requires at least one digit.
func DigitRule() PasswordRule {
	return containsRule("digit", "must contain a number", unicode.IsDigit)
}

func containsRule(name, reason string, match func(rune) bool) PasswordRule {
	return PasswordRuleFunc{
		RuleName: name,
		Fn: func(candidate string) error {
			if strings.IndexFunc(candidate, match) < 0 {
				return errors.New(reason)
			}
			return nil
		},
	}
}
