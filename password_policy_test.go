package bulwark_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-bulwark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPasswordPolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		rules    []string
	}{
		{name: "strong password", password: "CorrectHorse9!", rules: nil},
		{name: "empty", password: "", rules: []string{"length", "lowercase", "uppercase", "symbol", "digit"}},
		{name: "too short", password: "Ab1!", rules: []string{"length"}},
		{name: "too long", password: "Aa1!" + strings.Repeat("x", 69), rules: []string{"length"}},
		{name: "no uppercase", password: "correcthorse9!", rules: []string{"uppercase"}},
		{name: "no lowercase", password: "CORRECTHORSE9!", rules: []string{"lowercase"}},
		{name: "no symbol", password: "CorrectHorse9", rules: []string{"symbol"}},
		{name: "no digit", password: "CorrectHorse!", rules: []string{"digit"}},
		{name: "unicode symbol", password: "CorrectHorse9€", rules: nil},
	}

	policy := bulwark.DefaultPasswordPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, v := range policy.Evaluate(tt.password) {
				got = append(got, v.Rule)
			}
			assert.Equal(t, tt.rules, got)

			err := policy.Check(tt.password)
			if len(tt.rules) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, bulwark.IsKind(err, bulwark.ErrWeakPassword))
			assert.Len(t, bulwark.Violations(err), len(tt.rules))
		})
	}
}

func TestPasswordPolicyReportsUnionOfViolations(t *testing.T) {
	failing := func(name string) bulwark.PasswordRule {
		return bulwark.PasswordRuleFunc{RuleName: name, Fn: func(string) error {
			return errors.New(name + " failed")
		}}
	}

	policy := bulwark.NewPasswordPolicy(
		failing("first"),
		bulwark.PasswordRuleFunc{RuleName: "passing", Fn: func(string) error { return nil }},
		failing("second"),
	)

	violations := policy.Evaluate("anything")
	require.Len(t, violations, 2)
	assert.Equal(t, "first", violations[0].Rule)
	assert.Equal(t, "second failed", violations[1].Reason)

	err := policy.Check("anything")
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "second failed")
}

func TestPasswordPolicyRegister(t *testing.T) {
	policy := bulwark.NewPasswordPolicy()
	assert.NoError(t, policy.Check("x"))

	policy.Register(bulwark.LengthRule(2, 4))
	assert.Len(t, policy.Rules(), 1)
	assert.Error(t, policy.Check("x"))
	assert.NoError(t, policy.Check("xyz"))
}

func TestViolationsIgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, bulwark.Violations(errors.New("boom")))
	assert.Nil(t, bulwark.Violations(bulwark.ErrInvalidToken))
}
