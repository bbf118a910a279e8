package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-bulwark"
	"github.com/uptrace/bun"
)

type mngr struct {
	db            *bun.DB
	accounts      *Accounts
	tokens        *Tokens
	magicCodes    *MagicCodes
	signingKeys   *SigningKeys
	authorization *Authorization
}

var _ bulwark.RepositoryManager = (*mngr)(nil)

func NewRepositoryManager(db *bun.DB) bulwark.RepositoryManager {
	return &mngr{
		db:            db,
		accounts:      NewAccounts(db),
		tokens:        NewTokens(db),
		magicCodes:    NewMagicCodes(db),
		signingKeys:   NewSigningKeys(db),
		authorization: NewAuthorization(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	if m.magicCodes == nil {
		return errors.New("repository magic codes should be initialized")
	}

	if m.signingKeys == nil {
		return errors.New("repository signing keys should be initialized")
	}

	if m.authorization == nil {
		return errors.New("repository authorization should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() bulwark.AccountRepository {
	return m.accounts
}

func (m mngr) Tokens() bulwark.TokenRepository {
	return m.tokens
}

func (m mngr) MagicCodes() bulwark.MagicCodeRepository {
	return m.magicCodes
}

func (m mngr) SigningKeys() bulwark.SigningKeyRepository {
	return m.signingKeys
}

func (m mngr) Authorization() bulwark.AuthorizationSource {
	return m.authorization
}
