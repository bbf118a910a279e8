package repository

import (
	"context"

	"github.com/goliatone/go-bulwark"
	"github.com/uptrace/bun"
)

// SigningKeys implements bulwark.SigningKeyRepository.
type SigningKeys struct {
	db *bun.DB
}

var _ bulwark.SigningKeyRepository = (*SigningKeys)(nil)

func NewSigningKeys(db *bun.DB) *SigningKeys {
	return &SigningKeys{db: db}
}

func (r *SigningKeys) List(ctx context.Context) ([]*bulwark.SigningKeyGeneration, error) {
	var keys []*bulwark.SigningKeyGeneration
	err := r.db.NewSelect().
		Model(&keys).
		Order("generation ASC").
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, bulwark.PersistenceError(err, "signing_keys.list")
	}
	return keys, nil
}

// Insert relies on the unique generation index to detect concurrent
// rotations.
func (r *SigningKeys) Insert(ctx context.Context, key *bulwark.SigningKeyGeneration) error {
	_, err := r.db.NewInsert().Model(key).Exec(ctx)
	if isUniqueViolation(err) {
		return bulwark.Fail(bulwark.ErrGenerationConflict, err, map[string]any{"generation": key.Generation})
	}
	return bulwark.PersistenceError(err, "signing_keys.insert")
}

func (r *SigningKeys) Delete(ctx context.Context, generation int) error {
	_, err := r.db.NewDelete().
		Model((*bulwark.SigningKeyGeneration)(nil)).
		Where("generation = ?", generation).
		Exec(ctx)
	return bulwark.PersistenceError(err, "signing_keys.delete")
}
