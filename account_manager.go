package bulwark

import (
	"context"
)

// AccountManager guards self service account changes behind a valid
// access token of the account being changed.
type AccountManager struct {
	directory *Directory
	tokens    TokenIssuer
}

func NewAccountManager(directory *Directory, tokens TokenIssuer) *AccountManager {
	return &AccountManager{directory: directory, tokens: tokens}
}

// Delete soft deletes the account that owns accessToken.
func (m *AccountManager) Delete(ctx context.Context, email, accessToken string) error {
	if err := m.authorize(ctx, email, accessToken); err != nil {
		return err
	}
	return m.directory.Delete(ctx, email)
}

// ChangeEmail moves the account that owns accessToken to newEmail.
func (m *AccountManager) ChangeEmail(ctx context.Context, email, newEmail, accessToken string) error {
	if err := m.authorize(ctx, email, accessToken); err != nil {
		return err
	}
	return m.directory.ChangeEmail(ctx, email, newEmail)
}

// ChangePassword sets a new password on the account that owns accessToken.
func (m *AccountManager) ChangePassword(ctx context.Context, email, newPassword, accessToken string) error {
	if err := m.authorize(ctx, email, accessToken); err != nil {
		return err
	}
	return m.directory.ChangePassword(ctx, email, newPassword)
}

func (m *AccountManager) authorize(ctx context.Context, email, accessToken string) error {
	account, err := m.directory.GetAccount(ctx, email)
	if err != nil {
		return err
	}
	if err := CheckAccountHealth(account); err != nil {
		return err
	}
	_, err = m.tokens.ValidateAccessToken(ctx, account.ID, accessToken)
	return err
}
