package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultMagicCodeAttempts is how many wrong guesses an outstanding code
// survives.
const DefaultMagicCodeAttempts = 5

// MagicCodes implements bulwark.MagicCodeRepository.
type MagicCodes struct {
	db          *bun.DB
	maxAttempts int
}

var _ bulwark.MagicCodeRepository = (*MagicCodes)(nil)

func NewMagicCodes(db *bun.DB) *MagicCodes {
	return &MagicCodes{db: db, maxAttempts: DefaultMagicCodeAttempts}
}

func (r *MagicCodes) WithMaxAttempts(n int) *MagicCodes {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// Add stores code as the only outstanding code of its account.
func (r *MagicCodes) Add(ctx context.Context, code *bulwark.MagicCode) error {
	code.Expires = code.Expires.UTC()
	code.Attempts = 0
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*bulwark.MagicCode)(nil)).
			Where("account_id = ?", code.AccountID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(code).Exec(ctx)
		return err
	})
	return bulwark.PersistenceError(err, "magic_codes.add")
}

// Consume deletes an unexpired code. Exactly one concurrent caller wins.
func (r *MagicCodes) Consume(ctx context.Context, accountID uuid.UUID, code string, now time.Time) error {
	matched := false
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*bulwark.MagicCode)(nil)).
			Where("account_id = ?", accountID).
			Where("code = ?", code).
			Where("expires > ?", now.UTC()).
			Exec(ctx)
		if err != nil {
			return err
		}
		if rowsAffected(res) == 1 {
			matched = true
			return nil
		}

		if _, err := tx.NewUpdate().
			Model((*bulwark.MagicCode)(nil)).
			Set("attempts = attempts + 1").
			Where("account_id = ?", accountID).
			Exec(ctx); err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*bulwark.MagicCode)(nil)).
			Where("account_id = ?", accountID).
			Where("attempts >= ?", r.maxAttempts).
			Exec(ctx)
		return err
	})
	if err != nil {
		return bulwark.PersistenceError(err, "magic_codes.consume")
	}
	if !matched {
		return bulwark.Fail(bulwark.ErrInvalidMagicCode, nil, nil)
	}
	return nil
}

func (r *MagicCodes) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*bulwark.MagicCode)(nil)).
		Where("expires <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, bulwark.PersistenceError(err, "magic_codes.purge")
	}
	return rowsAffected(res), nil
}
