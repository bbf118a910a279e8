package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens implements bulwark.TokenRepository.
type Tokens struct {
	db    *bun.DB
	clock bulwark.Clock
}

var _ bulwark.TokenRepository = (*Tokens)(nil)

func NewTokens(db *bun.DB) *Tokens {
	return &Tokens{db: db, clock: time.Now}
}

func (r *Tokens) WithClock(c bulwark.Clock) *Tokens {
	if c != nil {
		r.clock = c
	}
	return r
}

// Acknowledge writes or overwrites the pair of (accountID, deviceID).
func (r *Tokens) Acknowledge(ctx context.Context, accountID uuid.UUID, deviceID, accessToken, refreshToken string) error {
	record := &bulwark.AcknowledgedToken{
		AccountID:    accountID,
		DeviceID:     deviceID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Modified:     r.clock().UTC(),
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (account_id, device_id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("modified = EXCLUDED.modified").
		Exec(ctx)
	return bulwark.PersistenceError(err, "acknowledged_tokens.upsert")
}

func (r *Tokens) Get(ctx context.Context, accountID uuid.UUID, deviceID string) (*bulwark.AcknowledgedToken, error) {
	record := &bulwark.AcknowledgedToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("account_id = ?", accountID).
		Where("device_id = ?", deviceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, bulwark.PersistenceError(err, "acknowledged_tokens.get")
	}
	return record, nil
}

func (r *Tokens) Delete(ctx context.Context, accountID uuid.UUID, deviceID string) error {
	_, err := r.db.NewDelete().
		Model((*bulwark.AcknowledgedToken)(nil)).
		Where("account_id = ?", accountID).
		Where("device_id = ?", deviceID).
		Exec(ctx)
	return bulwark.PersistenceError(err, "acknowledged_tokens.delete")
}

// Supersede clears the stored refresh token if it still equals
// refreshToken and records the tombstone in the same transaction. The
// access token stays in place until the next pair is acknowledged.
func (r *Tokens) Supersede(ctx context.Context, accountID uuid.UUID, deviceID, refreshToken string, tombstone *bulwark.RetiredToken) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*bulwark.AcknowledgedToken)(nil)).
			Set("refresh_token = ?", "").
			Set("modified = ?", r.clock().UTC()).
			Where("account_id = ?", accountID).
			Where("device_id = ?", deviceID).
			Where("refresh_token = ?", refreshToken).
			Exec(ctx)
		if err != nil {
			return err
		}

		if rowsAffected(res) != 1 {
			return bulwark.Fail(bulwark.ErrNotAcknowledged, nil, map[string]any{"reason": "refresh token already superseded"})
		}

		return retire(ctx, tx, tombstone)
	})
	return bulwark.PersistenceError(err, "acknowledged_tokens.supersede")
}

func (r *Tokens) Retire(ctx context.Context, tombstone *bulwark.RetiredToken) error {
	return bulwark.PersistenceError(retire(ctx, r.db, tombstone), "retired_tokens.insert")
}

func (r *Tokens) IsRetired(ctx context.Context, pairID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*bulwark.RetiredToken)(nil)).
		Where("pair_id = ?", pairID).
		Exists(ctx)
	if err != nil {
		return false, bulwark.PersistenceError(err, "retired_tokens.exists")
	}
	return exists, nil
}

// PurgeRetired drops tombstones whose tokens have expired anyway.
func (r *Tokens) PurgeRetired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*bulwark.RetiredToken)(nil)).
		Where("expires <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, bulwark.PersistenceError(err, "retired_tokens.purge")
	}
	return rowsAffected(res), nil
}

func retire(ctx context.Context, db bun.IDB, tombstone *bulwark.RetiredToken) error {
	if tombstone == nil || tombstone.PairID == "" {
		return nil
	}
	tombstone.Expires = tombstone.Expires.UTC()
	_, err := db.NewInsert().
		Model(tombstone).
		On("CONFLICT (pair_id) DO NOTHING").
		Exec(ctx)
	return err
}
