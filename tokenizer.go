package bulwark

import (
	"context"

	"github.com/google/uuid"
)

// CompactTokenizerName names the tokenizer that omits permissions, for
// clients that only need role claims.
const CompactTokenizerName = "compact"

// Tokenizer is one named token encoding scheme. Each tokenizer may carry
// its own issuer, audience and claim shape.
type Tokenizer struct {
	Name      string
	Issuer    string
	Audience  []string
	Decorator ClaimsDecorator
}

// DefaultTokenizer embeds roles and permissions in access tokens.
func DefaultTokenizer(issuer string, audience ...string) Tokenizer {
	return Tokenizer{
		Name:     DefaultTokenizerName,
		Issuer:   issuer,
		Audience: audience,
	}
}

// CompactTokenizer embeds roles only.
func CompactTokenizer(issuer string, audience ...string) Tokenizer {
	return Tokenizer{
		Name:     CompactTokenizerName,
		Issuer:   issuer,
		Audience: audience,
		Decorator: ClaimsDecoratorFunc(func(_ context.Context, _ uuid.UUID, claims *Claims) error {
			claims.Permissions = nil
			return nil
		}),
	}
}

func (t Tokenizer) acceptsAudience(audience []string) bool {
	if len(t.Audience) == 0 {
		return true
	}
	for _, want := range t.Audience {
		for _, got := range audience {
			if want == got {
				return true
			}
		}
	}
	return false
}
