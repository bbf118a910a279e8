package bulwark

import (
	"context"

	"github.com/google/uuid"
)

// ClaimsDecorator can mutate extension claims before a token is signed.
// Roles, Permissions and Metadata may change. Registered claims and the
// generation, tokenizer, use and pair claims are protected.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, accountID uuid.UUID, claims *Claims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, accountID uuid.UUID, claims *Claims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, accountID uuid.UUID, claims *Claims) error {
	if f == nil {
		return nil
	}
	return f(ctx, accountID, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, uuid.UUID, *Claims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
