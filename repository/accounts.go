package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts implements bulwark.AccountRepository with bun. Reads go through
// the generic repository, writes are conditional single statement updates
// so their row counts decide the outcome.
type Accounts struct {
	db      *bun.DB
	records repository.Repository[*bulwark.Account]
}

var _ bulwark.AccountRepository = (*Accounts)(nil)

func NewAccounts(db *bun.DB) *Accounts {
	records := repository.NewRepository[*bulwark.Account](db, repository.ModelHandlers[*bulwark.Account]{
		NewRecord: func() *bulwark.Account { return &bulwark.Account{} },
		GetID: func(a *bulwark.Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *bulwark.Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &Accounts{db: db, records: records}
}

func withSocialIdentities(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Relation("SocialIdentities")
}

// Create inserts the account and, when given, its verification token in
// one transaction.
func (r *Accounts) Create(ctx context.Context, account *bulwark.Account, verification *bulwark.VerificationToken) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
			return err
		}
		if verification == nil {
			return nil
		}
		_, err := tx.NewInsert().Model(verification).Exec(ctx)
		return err
	})

	if isUniqueViolation(err) {
		return bulwark.Fail(bulwark.ErrDuplicateAccount, err, map[string]any{"email": account.Email})
	}
	return bulwark.PersistenceError(err, "accounts.create")
}

func (r *Accounts) GetByEmail(ctx context.Context, email string) (*bulwark.Account, error) {
	account, err := r.records.GetByIdentifier(ctx, email, withSocialIdentities)
	if err != nil {
		if isNotFound(err) {
			return nil, bulwark.Fail(bulwark.ErrAccountNotFound, nil, map[string]any{"email": email})
		}
		return nil, bulwark.PersistenceError(err, "accounts.get_by_email")
	}
	return account, nil
}

func (r *Accounts) GetByID(ctx context.Context, id uuid.UUID) (*bulwark.Account, error) {
	account, err := r.records.GetByID(ctx, id.String(), withSocialIdentities)
	if err != nil {
		if isNotFound(err) {
			return nil, bulwark.Fail(bulwark.ErrAccountNotFound, nil, map[string]any{"id": id.String()})
		}
		return nil, bulwark.PersistenceError(err, "accounts.get_by_id")
	}
	return account, nil
}

// Update applies changes to the non deleted account with email.
func (r *Accounts) Update(ctx context.Context, email string, changes bulwark.AccountChanges, modified time.Time) error {
	q := r.db.NewUpdate().
		Model((*bulwark.Account)(nil)).
		Set("modified = ?", modified.UTC()).
		Where("email = ?", email).
		Where("is_deleted = ?", false)

	if changes.Email != nil {
		q = q.Set("email = ?", *changes.Email)
	}
	if changes.PasswordHash != nil {
		q = q.Set("password_hash = ?", *changes.PasswordHash)
	}
	if changes.Salt != nil {
		q = q.Set("salt = ?", *changes.Salt)
	}
	if changes.IsVerified != nil {
		q = q.Set("is_verified = ?", *changes.IsVerified)
	}
	if changes.IsEnabled != nil {
		q = q.Set("is_enabled = ?", *changes.IsEnabled)
	}
	if changes.IsDeleted != nil {
		q = q.Set("is_deleted = ?", *changes.IsDeleted)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return bulwark.Fail(bulwark.ErrDuplicateAccount, err, nil)
		}
		return bulwark.PersistenceError(err, "accounts.update")
	}

	if rowsAffected(res) != 1 {
		return bulwark.Fail(bulwark.ErrAccountNotFound, nil, map[string]any{"email": email})
	}
	return nil
}

func (r *Accounts) ConsumeVerificationToken(ctx context.Context, email, token string, issuedAfter time.Time) error {
	res, err := r.db.NewDelete().
		Model((*bulwark.VerificationToken)(nil)).
		Where("token = ?", token).
		Where("email = ?", email).
		Where("created >= ?", issuedAfter.UTC()).
		Exec(ctx)
	return consumed(res, err, "verification_tokens.consume")
}

func (r *Accounts) AddForgotToken(ctx context.Context, token *bulwark.ForgotToken) error {
	_, err := r.db.NewInsert().Model(token).Exec(ctx)
	return bulwark.PersistenceError(err, "forgot_tokens.add")
}

func (r *Accounts) ConsumeForgotToken(ctx context.Context, email, token string, issuedAfter time.Time) error {
	res, err := r.db.NewDelete().
		Model((*bulwark.ForgotToken)(nil)).
		Where("token = ?", token).
		Where("email = ?", email).
		Where("created >= ?", issuedAfter.UTC()).
		Exec(ctx)
	return consumed(res, err, "forgot_tokens.consume")
}

// LinkSocial is a no-op when the provider is already linked to the
// account. A subject linked to another account is a duplicate.
func (r *Accounts) LinkSocial(ctx context.Context, identity *bulwark.SocialIdentity) error {
	_, err := r.db.NewInsert().
		Model(identity).
		On("CONFLICT (account_id, provider) DO NOTHING").
		Exec(ctx)
	if isUniqueViolation(err) {
		return bulwark.Fail(bulwark.ErrDuplicateAccount, err, map[string]any{"provider": identity.Provider})
	}
	return bulwark.PersistenceError(err, "social_identities.link")
}

func (r *Accounts) PurgeVerificationTokens(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*bulwark.VerificationToken)(nil)).
		Where("created < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, bulwark.PersistenceError(err, "verification_tokens.purge")
	}
	return rowsAffected(res), nil
}

func (r *Accounts) PurgeForgotTokens(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*bulwark.ForgotToken)(nil)).
		Where("created < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, bulwark.PersistenceError(err, "forgot_tokens.purge")
	}
	return rowsAffected(res), nil
}

func consumed(res sql.Result, err error, operation string) error {
	if err != nil {
		return bulwark.PersistenceError(err, operation)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bulwark.PersistenceError(err, operation)
	}
	if n != 1 {
		return bulwark.Fail(bulwark.ErrInvalidOrConsumedToken, nil, map[string]any{"operation": operation})
	}
	return nil
}
