package repository

import (
	"context"

	"github.com/goliatone/go-bulwark"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Authorization stores role and permission grants written by an external
// authority and implements bulwark.AuthorizationSource.
type Authorization struct {
	db *bun.DB
}

var _ bulwark.AuthorizationSource = (*Authorization)(nil)

func NewAuthorization(db *bun.DB) *Authorization {
	return &Authorization{db: db}
}

func (r *Authorization) ReadAccountRoles(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	roles := []string{}
	err := r.db.NewSelect().
		Model((*bulwark.AccountRole)(nil)).
		Column("role").
		Where("account_id = ?", accountID).
		Order("position ASC").
		Scan(ctx, &roles)
	if err != nil && !isNotFound(err) {
		return nil, bulwark.PersistenceError(err, "account_roles.read")
	}
	return roles, nil
}

func (r *Authorization) ReadAccountPermissions(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	permissions := []string{}
	err := r.db.NewSelect().
		Model((*bulwark.AccountPermission)(nil)).
		Column("permission").
		Where("account_id = ?", accountID).
		Order("position ASC").
		Scan(ctx, &permissions)
	if err != nil && !isNotFound(err) {
		return nil, bulwark.PersistenceError(err, "account_permissions.read")
	}
	return permissions, nil
}

// GrantRoles replaces the roles of accountID, keeping the given order.
func (r *Authorization) GrantRoles(ctx context.Context, accountID uuid.UUID, roles ...string) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*bulwark.AccountRole)(nil)).
			Where("account_id = ?", accountID).
			Exec(ctx); err != nil {
			return err
		}
		if len(roles) == 0 {
			return nil
		}
		rows := make([]*bulwark.AccountRole, 0, len(roles))
		for i, role := range roles {
			rows = append(rows, &bulwark.AccountRole{AccountID: accountID, Role: role, Position: i})
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	return bulwark.PersistenceError(err, "account_roles.grant")
}

// GrantPermissions replaces the permissions of accountID, keeping the
// given order.
func (r *Authorization) GrantPermissions(ctx context.Context, accountID uuid.UUID, permissions ...string) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*bulwark.AccountPermission)(nil)).
			Where("account_id = ?", accountID).
			Exec(ctx); err != nil {
			return err
		}
		if len(permissions) == 0 {
			return nil
		}
		rows := make([]*bulwark.AccountPermission, 0, len(permissions))
		for i, permission := range permissions {
			rows = append(rows, &bulwark.AccountPermission{AccountID: accountID, Permission: permission, Position: i})
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	return bulwark.PersistenceError(err, "account_permissions.grant")
}
